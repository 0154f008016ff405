package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the gateway.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// The configuration automatically detects the execution environment
// (Kubernetes vs local) and adjusts defaults accordingly.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("infergate"),
//	    WithPort(8000),
//	    WithRedisURL("redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name    string `json:"name" yaml:"name" env:"INFERGATE_NAME"`
	Port    int    `json:"port" yaml:"port" env:"INFERGATE_PORT"`
	Address string `json:"address" yaml:"address" env:"INFERGATE_ADDRESS"`

	// HTTP server configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Redis connection shared by the task store and the pending queue
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Executor configuration (worker pool, task TTL)
	Executor ExecutorConfig `json:"executor" yaml:"executor"`

	// Upstream model registry
	Models ModelsConfig `json:"models" yaml:"models"`

	// Object storage configuration (optional module)
	OSS OSSConfig `json:"oss" yaml:"oss"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Kubernetes specific configuration
	Kubernetes KubernetesConfig `json:"kubernetes" yaml:"kubernetes"`
}

// HTTPConfig contains HTTP server configuration.
// All timeout values use time.Duration for flexibility.
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" env:"INFERGATE_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" env:"INFERGATE_HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"INFERGATE_HTTP_IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `json:"max_header_bytes" yaml:"max_header_bytes" env:"INFERGATE_HTTP_MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"INFERGATE_HTTP_SHUTDOWN_TIMEOUT"`
}

// RedisConfig contains the Redis connection settings.
// Format: redis://[user:password@]host:port/db
type RedisConfig struct {
	URL         string        `json:"url" yaml:"url" env:"INFERGATE_REDIS_URL,REDIS_URL"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"INFERGATE_REDIS_DIAL_TIMEOUT"`
}

// ExecutorConfig controls the asynchronous task executor.
//
// MaxWorkers bounds the number of concurrently running workers.
// WorkerLifetime is how long an idle worker blocks on the pending queue
// before exiting. TaskExpiration is the TTL applied to every task record;
// once it elapses the task disappears from the store entirely.
type ExecutorConfig struct {
	MaxWorkers     int           `json:"max_workers" yaml:"max_workers" env:"INFERGATE_MAX_WORKERS"`
	QueueName      string        `json:"queue_name" yaml:"queue_name" env:"INFERGATE_QUEUE_NAME"`
	WorkerLifetime time.Duration `json:"worker_lifetime" yaml:"worker_lifetime" env:"INFERGATE_WORKER_LIFETIME"`
	TaskExpiration time.Duration `json:"task_expiration" yaml:"task_expiration" env:"INFERGATE_TASK_EXPIRATION"`
}

// ModelEntry describes one upstream OpenAI-compatible model.
// Model is the identifier sent to the upstream API, which may differ
// from the registry name the entry is stored under.
type ModelEntry struct {
	Model      string `json:"model" yaml:"model"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Multimodal bool   `json:"multimodal" yaml:"multimodal"`
}

// ModelsConfig contains the registry of upstream models and the two
// routing aliases. Payloads carrying images or videos are routed to
// MultimodalModel, plain text payloads to TextModel, unless the request
// names a model explicitly.
type ModelsConfig struct {
	Entries         map[string]ModelEntry `json:"entries" yaml:"entries"`
	TextModel       string                `json:"text_model" yaml:"text_model" env:"INFERGATE_TEXT_MODEL"`
	MultimodalModel string                `json:"multimodal_model" yaml:"multimodal_model" env:"INFERGATE_MULTIMODAL_MODEL"`
	Manifest        string                `json:"manifest" yaml:"manifest" env:"INFERGATE_MODELS_FILE"`

	// Fallbacks applied to entries that omit their own values.
	BaseURL string `json:"base_url" yaml:"base_url" env:"INFERGATE_MODEL_BASE_URL"`
	APIKey  string `json:"api_key" yaml:"api_key" env:"INFERGATE_MODEL_API_KEY,OPENAI_API_KEY"`

	Timeout       time.Duration `json:"timeout" yaml:"timeout" env:"INFERGATE_MODEL_TIMEOUT"`
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts" env:"INFERGATE_MODEL_RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay" env:"INFERGATE_MODEL_RETRY_DELAY"`
}

// OSSConfig contains the object storage settings. The module is optional:
// leave the section empty to run the gateway without the /file routes.
// Endpoint is the plain OSS endpoint host, e.g. oss-cn-hangzhou.aliyuncs.com.
type OSSConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint" env:"INFERGATE_OSS_ENDPOINT,OSS_ENDPOINT"`
	Bucket          string `json:"bucket" yaml:"bucket" env:"INFERGATE_OSS_BUCKET,OSS_BUCKET"`
	Prefix          string `json:"prefix" yaml:"prefix" env:"INFERGATE_OSS_PREFIX,OSS_PREFIX"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" env:"OSS_ACCESS_KEY_ID"`
	AccessKeySecret string `json:"access_key_secret" yaml:"access_key_secret" env:"OSS_ACCESS_KEY_SECRET"`
}

var ossRegionPattern = regexp.MustCompile(`oss-(.*?)(-internal)?\.aliyuncs\.com`)

// Configured reports whether the section carries enough settings to build
// an object storage client.
func (o OSSConfig) Configured() bool {
	return o.Endpoint != "" && o.Bucket != "" && o.AccessKeyID != "" && o.AccessKeySecret != ""
}

// Region extracts the region identifier from the endpoint, e.g.
// "cn-hangzhou" from both oss-cn-hangzhou.aliyuncs.com and its -internal
// variant. Returns an error when the endpoint does not look like an OSS
// endpoint, since the V4 signature scope cannot be derived without it.
func (o OSSConfig) Region() (string, error) {
	m := ossRegionPattern.FindStringSubmatch(o.Endpoint)
	if m == nil {
		return "", &GatewayError{
			Op:      "OSSConfig.Region",
			Kind:    "config",
			Message: fmt.Sprintf("Invalid OSS endpoint '%s'", o.Endpoint),
			Err:     ErrInvalidConfiguration,
		}
	}
	return m[1], nil
}

// TelemetryConfig contains observability configuration for metrics and
// distributed tracing. This is an optional module: telemetry is only
// initialized when Enabled=true. The endpoint should be an OTLP receiver.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"INFERGATE_TELEMETRY_ENABLED"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"INFERGATE_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled" env:"INFERGATE_TELEMETRY_METRICS"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled" env:"INFERGATE_TELEMETRY_TRACING"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" env:"INFERGATE_TELEMETRY_SAMPLING_RATE"`
	Insecure       bool    `json:"insecure" yaml:"insecure" env:"INFERGATE_TELEMETRY_INSECURE"`
}

// LoggingConfig contains logging configuration.
// JSON format is selected automatically in Kubernetes environments.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"INFERGATE_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"INFERGATE_LOG_FORMAT"`
}

// KubernetesConfig contains Kubernetes-specific settings. The gateway
// detects Kubernetes by checking for the KUBERNETES_SERVICE_HOST
// environment variable and adjusts defaults for containerized
// environments (binding to 0.0.0.0, JSON logging).
type KubernetesConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" env:"KUBERNETES_SERVICE_HOST"`
	PodName      string `json:"pod_name" yaml:"pod_name" env:"HOSTNAME"`
	PodNamespace string `json:"pod_namespace" yaml:"pod_namespace" env:"INFERGATE_K8S_NAMESPACE"`
}

// Option is a functional option for configuring the gateway.
// Options are applied in order and can return an error if the
// configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// The defaults are adjusted based on the detected environment:
//   - Kubernetes: 0.0.0.0 binding, JSON logging
//   - Local: localhost binding, text logging
//
// These defaults can be overridden using functional options or
// environment variables.
func DefaultConfig() *Config {
	cfg := &Config{
		Name: "infergate",
		Port: 8000,
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming responses must not be cut off
			IdleTimeout:     120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			DialTimeout: 5 * time.Second,
		},
		Executor: ExecutorConfig{
			MaxWorkers:     8,
			QueueName:      "PENDING_QUEUE",
			WorkerLifetime: 60 * time.Second,
			TaskExpiration: 1 * time.Hour,
		},
		Models: ModelsConfig{
			Entries:         map[string]ModelEntry{},
			TextModel:       "qwen3",
			MultimodalModel: "qwen3-vl",
			Timeout:         5 * time.Minute,
			RetryAttempts:   3,
			RetryDelay:      1 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts configuration based on the detected
// environment. Called automatically by DefaultConfig().
//
// Detection criteria:
//   - Kubernetes: KUBERNETES_SERVICE_HOST environment variable is set
//   - Local: no Kubernetes environment variables detected
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Kubernetes.Enabled = true
		c.Address = "0.0.0.0"
		c.Redis.URL = "redis://redis.default.svc.cluster.local:6379"
		c.Logging.Format = "json"
	} else {
		c.Address = "localhost"
		c.Redis.URL = "redis://localhost:6379"
		c.Logging.Format = "text"
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden
// by functional options.
//
// Variable naming convention:
//   - Gateway-specific: INFERGATE_<SETTING>
//   - Standard variables: REDIS_URL, OPENAI_API_KEY, OSS_ACCESS_KEY_ID,
//     OSS_ACCESS_KEY_SECRET, OTEL_EXPORTER_OTLP_ENDPOINT
func (c *Config) LoadFromEnv() error {
	// Core settings
	if v := os.Getenv("INFERGATE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("INFERGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("INFERGATE_ADDRESS"); v != "" {
		c.Address = v
	}

	// HTTP settings
	if v := os.Getenv("INFERGATE_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("INFERGATE_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("INFERGATE_HTTP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ShutdownTimeout = d
		}
	}

	// Redis settings
	if v := os.Getenv("INFERGATE_REDIS_URL"); v != "" {
		c.Redis.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}

	// Executor settings
	if v := os.Getenv("INFERGATE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Executor.MaxWorkers = n
		}
	}
	if v := os.Getenv("INFERGATE_QUEUE_NAME"); v != "" {
		c.Executor.QueueName = v
	}
	if v := os.Getenv("INFERGATE_WORKER_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Executor.WorkerLifetime = d
		}
	}
	if v := os.Getenv("INFERGATE_TASK_EXPIRATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Executor.TaskExpiration = d
		}
	}

	// Model settings
	if v := os.Getenv("INFERGATE_TEXT_MODEL"); v != "" {
		c.Models.TextModel = v
	}
	if v := os.Getenv("INFERGATE_MULTIMODAL_MODEL"); v != "" {
		c.Models.MultimodalModel = v
	}
	if v := os.Getenv("INFERGATE_MODEL_BASE_URL"); v != "" {
		c.Models.BaseURL = v
	}
	if v := os.Getenv("INFERGATE_MODEL_API_KEY"); v != "" {
		c.Models.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Models.APIKey = v
	}
	if v := os.Getenv("INFERGATE_MODEL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Models.Timeout = d
		}
	}
	if v := os.Getenv("INFERGATE_MODELS_FILE"); v != "" {
		c.Models.Manifest = v
	}
	if c.Models.Manifest != "" {
		if err := c.LoadModelsFile(c.Models.Manifest); err != nil {
			return err
		}
	}

	// OSS settings
	if v := os.Getenv("INFERGATE_OSS_ENDPOINT"); v != "" {
		c.OSS.Endpoint = v
	} else if v := os.Getenv("OSS_ENDPOINT"); v != "" {
		c.OSS.Endpoint = v
	}
	if v := os.Getenv("INFERGATE_OSS_BUCKET"); v != "" {
		c.OSS.Bucket = v
	} else if v := os.Getenv("OSS_BUCKET"); v != "" {
		c.OSS.Bucket = v
	}
	if v := os.Getenv("INFERGATE_OSS_PREFIX"); v != "" {
		c.OSS.Prefix = v
	} else if v := os.Getenv("OSS_PREFIX"); v != "" {
		c.OSS.Prefix = v
	}
	if v := os.Getenv("OSS_ACCESS_KEY_ID"); v != "" {
		c.OSS.AccessKeyID = v
	}
	if v := os.Getenv("OSS_ACCESS_KEY_SECRET"); v != "" {
		c.OSS.AccessKeySecret = v
	}

	// Telemetry settings
	if v := os.Getenv("INFERGATE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("INFERGATE_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}

	// Logging settings
	if v := os.Getenv("INFERGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INFERGATE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Kubernetes settings (auto-detect)
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Kubernetes.Enabled = true
		if v := os.Getenv("HOSTNAME"); v != "" {
			c.Kubernetes.PodName = v
		}
		if v := os.Getenv("INFERGATE_K8S_NAMESPACE"); v != "" {
			c.Kubernetes.PodNamespace = v
		}
	}

	return nil
}

// LoadModelsFile loads the model registry from a YAML manifest.
// Entries are merged over any already present, so a manifest can extend
// a registry built with WithModel.
//
// Example manifest:
//
//	qwen3:
//	  model: qwen3-235b-a22b
//	  base_url: https://dashscope.aliyuncs.com/compatible-mode/v1
//	  api_key: sk-...
//	qwen3-vl:
//	  model: qwen3-vl-plus
//	  base_url: https://dashscope.aliyuncs.com/compatible-mode/v1
//	  api_key: sk-...
//	  multimodal: true
func (c *Config) LoadModelsFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read models file %s: %w", path, err)
	}

	entries := map[string]ModelEntry{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse models file %s: %w", path, ErrInvalidConfiguration)
	}

	if c.Models.Entries == nil {
		c.Models.Entries = map[string]ModelEntry{}
	}
	for name, entry := range entries {
		c.Models.Entries[name] = entry
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// File settings override environment variables but are overridden by
// functional options.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if
// not. Called automatically by NewConfig() but can also be called manually
// after modifying configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Redis.URL == "" {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Executor.MaxWorkers < 1 {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid worker count: %d", c.Executor.MaxWorkers),
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.Executor.WorkerLifetime <= 0 || c.Executor.TaskExpiration <= 0 {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "worker lifetime and task expiration must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.Executor.QueueName == "" {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "queue name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	for name, entry := range c.Models.Entries {
		if entry.Model == "" {
			return &GatewayError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("model entry '%s' is missing the upstream model identifier", name),
				Err:     ErrMissingConfiguration,
			}
		}
		if entry.BaseURL == "" && c.Models.BaseURL == "" {
			return &GatewayError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("model entry '%s' is missing a base URL", name),
				Err:     ErrMissingConfiguration,
			}
		}
	}

	if c.OSS != (OSSConfig{}) && !c.OSS.Configured() {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "OSS configuration is incomplete: endpoint, bucket, access key ID and secret are all required",
			Err:     ErrMissingConfiguration,
		}
	}
	if c.OSS.Configured() {
		if _, err := c.OSS.Region(); err != nil {
			return err
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return &GatewayError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the service name, used in logging and telemetry.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port. Must be between 1 and 65535.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return &GatewayError{
				Op:      "WithPort",
				Kind:    "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Port = port
		return nil
	}
}

// WithAddress sets the bind address for the HTTP server.
// Use "0.0.0.0" in containers, "localhost" for local only.
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

// WithRedisURL sets the Redis connection URL used by the task store and
// the pending queue.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		return nil
	}
}

// WithWorkers sets the maximum number of concurrent executor workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return &GatewayError{
				Op:      "WithWorkers",
				Kind:    "config",
				Message: fmt.Sprintf("invalid worker count: %d", n),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Executor.MaxWorkers = n
		return nil
	}
}

// WithWorkerLifetime sets how long an idle worker waits for work before
// exiting.
func WithWorkerLifetime(d time.Duration) Option {
	return func(c *Config) error {
		c.Executor.WorkerLifetime = d
		return nil
	}
}

// WithTaskExpiration sets the TTL applied to every task record.
func WithTaskExpiration(d time.Duration) Option {
	return func(c *Config) error {
		c.Executor.TaskExpiration = d
		return nil
	}
}

// WithModel registers an upstream model under the given name.
func WithModel(name string, entry ModelEntry) Option {
	return func(c *Config) error {
		if c.Models.Entries == nil {
			c.Models.Entries = map[string]ModelEntry{}
		}
		c.Models.Entries[name] = entry
		return nil
	}
}

// WithModelAliases sets the registry names that text and multimodal
// payloads are routed to by default.
func WithModelAliases(text, multimodal string) Option {
	return func(c *Config) error {
		c.Models.TextModel = text
		c.Models.MultimodalModel = multimodal
		return nil
	}
}

// WithModelsFile loads the model registry from a YAML manifest.
func WithModelsFile(path string) Option {
	return func(c *Config) error {
		c.Models.Manifest = path
		return c.LoadModelsFile(path)
	}
}

// WithOSS configures the object storage client.
func WithOSS(endpoint, bucket, prefix, accessKeyID, accessKeySecret string) Option {
	return func(c *Config) error {
		c.OSS = OSSConfig{
			Endpoint:        endpoint,
			Bucket:          bucket,
			Prefix:          prefix,
			AccessKeyID:     accessKeyID,
			AccessKeySecret: accessKeySecret,
		}
		return nil
	}
}

// WithTelemetry enables telemetry with the specified OTLP endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = c.Name
		}
		return nil
	}
}

// WithOTELEndpoint sets the OpenTelemetry endpoint and enables telemetry.
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the minimum logging level: error, warn, info or debug.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format: json or text.
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file.
// File configuration is applied in option order, so later options can
// override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
//
// Returns an error if any option fails or if the final configuration is
// invalid.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
