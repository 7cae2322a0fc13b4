package s3_client

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/pkg/errors"
)

var (
	client *s3.Client
	once   sync.Once
)

type Options struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	Endpoint         string // e.g., "https://s3.amazonaws.com" or "https://s3.minio.local:9000"
	UsePathStyle     bool   // true for MinIO/on-prem
	HTTPClient       *http.Client
	RetryMaxAttempts int           // default AWS SDK policy if 0
	RetryMaxBackoff  time.Duration // cap; 0 = default

	// InsecureSkipVerify disables server certificate checks on the SDK's own client.
	InsecureSkipVerify bool
}

// Client returns the singleton S3 client (after NewS3Client).
func Client() *s3.Client {
	if client == nil {
		panic("s3 client not initialized; call NewS3Client first")
	}
	return client
}

// Option mutates Options.
type Option func(*Options)

func WithRegion(r string) Option { return func(o *Options) { o.Region = r } }

func WithStaticCredentials(id, secret, token string) Option {
	return func(o *Options) { o.AccessKeyID, o.SecretAccessKey, o.SessionToken = id, secret, token }
}

func WithEndpoint(endpoint string, pathStyle bool) Option {
	return func(o *Options) { o.Endpoint, o.UsePathStyle = endpoint, pathStyle }
}
func WithHTTPClient(h *http.Client) Option { return func(o *Options) { o.HTTPClient = h } }

func WithInsecureSkipVerify(v bool) Option { return func(o *Options) { o.InsecureSkipVerify = v } }

func WithRetry(maxAttempts int, maxBackoff time.Duration) Option {
	return func(o *Options) { o.RetryMaxAttempts, o.RetryMaxBackoff = maxAttempts, maxBackoff }
}

func defaultOptionsFromViper() Options {
	return Options{
		Region:             config.GetString(config.S3Region, "us-east-1"),
		AccessKeyID:        config.GetString(config.S3AccessKey, ""),
		SecretAccessKey:    config.GetString(config.S3SecretKey, ""),
		Endpoint:           config.GetString(config.S3Endpoint, ""),
		UsePathStyle:       config.GetBool(config.S3UsePathStyle, false),
		InsecureSkipVerify: config.GetBool(config.S3TLSInsecureSkipVerify, false),
	}
}

// New builds an independent client from the viper settings overridden by opts.
func New(ctx context.Context, opts ...Option) (*s3.Client, error) {
	conf := defaultOptionsFromViper()
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}

	awsCfg, err := loadAWSConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	if conf.RetryMaxAttempts > 0 || conf.RetryMaxBackoff > 0 {
		awsCfg.RetryMaxAttempts = conf.RetryMaxAttempts
		if conf.RetryMaxBackoff > 0 {
			awsCfg.Retryer = func() aws.Retryer {
				return retry.AddWithMaxBackoffDelay(
					retry.AddWithMaxAttempts(retry.NewStandard(), awsCfg.RetryMaxAttempts),
					conf.RetryMaxBackoff,
				)
			}
		}
	}

	var s3Opts []func(*s3.Options)
	if conf.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	if conf.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// NewS3Client initialises the process-wide client returned by Client.
func NewS3Client(ctx context.Context, opts ...Option) error {
	var err error
	once.Do(func() {
		client, err = New(ctx, opts...)
	})
	return err
}

func loadAWSConfig(ctx context.Context, o Options) (aws.Config, error) {
	var lo []func(*awscfg.LoadOptions) error

	if o.Region != "" {
		lo = append(lo, awscfg.WithRegion(o.Region))
	}

	switch {
	case o.HTTPClient != nil:
		lo = append(lo, awscfg.WithHTTPClient(o.HTTPClient))
	case o.InsecureSkipVerify:
		// The buildable client still accepts AWS_CA_BUNDLE through WithTransportOptions.
		lo = append(lo, awscfg.WithHTTPClient(awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		})))
	}

	if o.AccessKeyID != "" {
		creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken))
		lo = append(lo, awscfg.WithCredentialsProvider(creds))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, lo...)
	if err != nil {
		return aws.Config{}, err
	}

	return cfg, nil
}
