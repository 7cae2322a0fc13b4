// Package log_archiver copies the audit log files to object storage.
package log_archiver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/okieraised/greenhouse-agent/internal/config"
	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/okieraised/greenhouse-agent/internal/utilities"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Uploader is satisfied by *s3.Client.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Options struct {
	Bucket   string
	Prefix   string
	Interval time.Duration
	Logger   *log.Logger
}

type Option func(*Options)

func WithBucket(bucket string) Option {
	return func(o *Options) {
		o.Bucket = bucket
	}
}

func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Interval = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func defaultOptionsFromViper() Options {
	return Options{
		Bucket:   config.GetString(config.S3ArchiveBucket, ""),
		Prefix:   config.GetString(config.S3ArchivePrefix, constants.S3DefaultArchivePrefix),
		Interval: config.GetDuration(config.S3ArchiveInterval, constants.S3DefaultArchiveInterval),
		Logger:   log.Default(),
	}
}

// Archiver uploads every *.log file under root that changed since its last
// upload, keeping the relative layout below the prefix.
type Archiver struct {
	root     string
	uploader Uploader
	conf     Options

	mu       sync.Mutex
	uploaded map[string]time.Time
}

func New(root string, uploader Uploader, opts ...Option) (*Archiver, error) {
	conf := defaultOptionsFromViper()
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if conf.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if conf.Interval <= 0 {
		conf.Interval = constants.S3DefaultArchiveInterval
	}
	return &Archiver{
		root:     root,
		uploader: uploader,
		conf:     conf,
		uploaded: make(map[string]time.Time),
	}, nil
}

// KeyFor maps a file below root to its object key.
func (a *Archiver) KeyFor(file string) (string, error) {
	absRoot, err := filepath.Abs(a.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, file)
	if err != nil {
		return "", err
	}
	return path.Join(a.conf.Prefix, filepath.ToSlash(rel)), nil
}

// Run archives once per interval until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.conf.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.conf.Logger.Info("log archiver stopped")
			return nil
		case <-ticker.C:
			n, err := a.ArchiveOnce(ctx)
			if err != nil && ctx.Err() == nil {
				a.conf.Logger.Error("log archive run incomplete", zap.Int("uploaded", n), zap.Error(err))
				continue
			}
			if n > 0 {
				a.conf.Logger.Info(fmt.Sprintf("archived %d log files to s3://%s/%s", n, a.conf.Bucket, a.conf.Prefix))
			}
		}
	}
}

// ArchiveOnce uploads the changed files and returns how many were uploaded.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	if _, err := os.Stat(a.root); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	files, err := utilities.ListFilesWithExt(a.root, ".log", true)
	if err != nil {
		return 0, errors.Wrapf(err, "list %s", a.root)
	}

	var (
		n    int
		errs error
	)
	for _, file := range files {
		if ctx.Err() != nil {
			return n, multierr.Append(errs, ctx.Err())
		}
		uploaded, uErr := a.archiveFile(ctx, file)
		if uErr != nil {
			metrics.ArchivedFiles.WithLabelValues("error").Inc()
			errs = multierr.Append(errs, uErr)
			continue
		}
		if uploaded {
			metrics.ArchivedFiles.WithLabelValues("ok").Inc()
			n++
		}
	}
	return n, errs
}

func (a *Archiver) archiveFile(ctx context.Context, file string) (bool, error) {
	info, err := os.Stat(file)
	if err != nil {
		return false, err
	}
	a.mu.Lock()
	last, seen := a.uploaded[file]
	a.mu.Unlock()
	if seen && !info.ModTime().After(last) {
		return false, nil
	}

	key, err := a.KeyFor(file)
	if err != nil {
		return false, err
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", file)
	}
	_, err = a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.conf.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(constants.ContentTypeTextUTF8),
	})
	if err != nil {
		return false, errors.Wrapf(err, "upload %s", key)
	}

	a.mu.Lock()
	a.uploaded[file] = info.ModTime()
	a.mu.Unlock()
	a.conf.Logger.Debug("log file archived", zap.String("file", file), zap.String("key", key))
	return true, nil
}
