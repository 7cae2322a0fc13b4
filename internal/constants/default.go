package constants

import "time"

const (
	AgentDefaultHTTPPort       = 8080
	AgentDefaultMonitoringPort = 6060
	AgentDefaultGRPCPort       = 50051
)

const (
	DefaultHTTPRequestTimeout = 10
	GraceWaitPeriod           = 10 * time.Second
)

const (
	MqttDefaultEndpoint            = "tcp://localhost:1883"
	MqttDefaultClientID            = "MQTTLogger"
	MqttDefaultQoS                 = 1
	MqttDefaultWriteTimeout        = 10 * time.Second
	MqttDefaultKeepAlive           = 30 * time.Second
	MqttDefaultPingTimeout         = 5 * time.Second
	MqttDefaultConnectTimeout      = 10 * time.Second
	MqttDefaultConnectAttempts     = 3
	MqttDefaultConnectRetryDelay   = 5 * time.Second
	MqttDefaultBootstrapRetryDelay = 30 * time.Second
	MqttDefaultReconnectDelay      = 5 * time.Second
)

const (
	StoreDefaultDriver           = "sqlite"
	StoreDefaultDSN              = "file:greenhouse.db?cache=shared"
	StoreDefaultRetryAttempts    = 3
	StoreDefaultRetryBackoff     = 200 * time.Millisecond
	StoreDefaultRetryMaxBackoff  = 2 * time.Second
	StoreDefaultBreakerThreshold = 5
	StoreDefaultBreakerTimeout   = 15 * time.Second
)

const (
	PipelineDefaultMessageTimeout      = 30 * time.Second
	PipelineDefaultInactivityThreshold = 30 * time.Second
	PipelineDefaultLaneBuffer          = 64
	PipelineDefaultSensorCacheTTL      = time.Minute
)

const (
	AlertsDefaultRefreshInterval      = 5 * time.Minute
	AlertsDefaultRefreshPollInterval  = time.Second
	AlertsDefaultStaleNotificationAge = 7 * 24 * time.Hour
)

const (
	FileLogDefaultRootDir         = "Logs"
	FileLogDefaultWriteAttempts   = 3
	FileLogDefaultWriteRetryDelay = 100 * time.Millisecond
	FileLogTimestampLayout        = "2006-01-02 15:04:05.000"
)

const (
	S3DefaultArchivePrefix   = "sensor-logs"
	S3DefaultArchiveInterval = time.Hour
)

const (
	TracingDefaultServiceName = "greenhouse-agent"
	TracingDefaultInitTimeout = 10 * time.Second
)
