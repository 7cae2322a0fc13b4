package config

const (
	AgentID                 = "agent.id"
	AgentEnableMonitoring   = "agent.enable_monitoring"
	AgentMonitoringPort     = "agent.monitoring_port"
	AgentLogLevel           = "agent.log_level"
	AgentHTTPPort           = "agent.http_port"
	AgentGRPCPort           = "agent.grpc_port"
	AgentHTTPMode           = "agent.http_mode"
	AgentHTTPRequestTimeout = "agent.http_request_timeout"
	AgentTLSCertFile        = "agent.tls_cert_file"
	AgentTLSKeyFile         = "agent.tls_key_file"
	AgentTLSClientCAFile    = "agent.tls_client_ca_file"
	AgentEnableTracing      = "agent.enable_tracing"
	AgentEnableS3           = "agent.enable_s3"
	AgentEnablePush         = "agent.enable_push"
	AgentEnableGRPC         = "agent.enable_grpc"
)

const (
	MqttEndpoint              = "mqtt.endpoint"
	MqttClientId              = "mqtt.client_id"
	MqttUsername              = "mqtt.username"
	MqttPassword              = "mqtt.password"
	MqttCleanSession          = "mqtt.clean_session"
	MqttQoS                   = "mqtt.qos"
	MqttWriteTimeout          = "mqtt.write_timeout"
	MqttPingTimeout           = "mqtt.ping_timeout"
	MqttKeepAliveDuration     = "mqtt.keep_alive_duration"
	MqttConnectTimeout        = "mqtt.connect_timeout"
	MqttConnectAttempts       = "mqtt.connect_attempts"
	MqttConnectRetryDelay     = "mqtt.connect_retry_delay"
	MqttBootstrapRetryDelay   = "mqtt.bootstrap_retry_delay"
	MqttReconnectDelay        = "mqtt.reconnect_delay"
	MqttTLSInsecureSkipVerify = "mqtt.tls_insecure_skip_verify"
	MqttNotificationTopic     = "mqtt.notification_topic"
)

const (
	StoreDriver                  = "store.driver"
	StoreDSN                     = "store.dsn"
	StoreAutoMigrate             = "store.auto_migrate"
	StoreRetryAttempts           = "store.retry_attempts"
	StoreBreakerFailureThreshold = "store.breaker_failure_threshold"
	StoreBreakerOpenTimeout      = "store.breaker_open_timeout"
)

const (
	PipelineMessageTimeout      = "pipeline.message_timeout"
	PipelineInactivityThreshold = "pipeline.inactivity_threshold"
	PipelineLaneBuffer          = "pipeline.lane_buffer"
	PipelineSensorCacheTTL      = "pipeline.sensor_cache_ttl"
)

const (
	AlertsRefreshInterval      = "alerts.refresh_interval"
	AlertsRefreshPollInterval  = "alerts.refresh_poll_interval"
	AlertsStaleNotificationAge = "alerts.stale_notification_age"
)

const (
	FileLogRootDir         = "filelog.root_dir"
	FileLogWriteAttempts   = "filelog.write_attempts"
	FileLogWriteRetryDelay = "filelog.write_retry_delay"
)

const (
	S3Region                = "s3.region"
	S3Endpoint              = "s3.endpoint"
	S3AccessKey             = "s3.access_key"
	S3SecretKey             = "s3.secret_key"
	S3UsePathStyle          = "s3.use_path_style"
	S3TLSInsecureSkipVerify = "s3.tls_insecure_skip_verify"
	S3ArchiveBucket         = "s3.archive_bucket"
	S3ArchivePrefix         = "s3.archive_prefix"
	S3ArchiveInterval       = "s3.archive_interval"
)

const (
	TracingEndpoint    = "tracing.endpoint"
	TracingInsecure    = "tracing.insecure"
	TracingServiceName = "tracing.service_name"
)
