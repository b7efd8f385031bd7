package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the complete simulator configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Evaluation engine settings
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Event publication after parse/evaluate
	EventBus EventBusConfig `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Worker  WorkerConfig  `json:"worker" yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	ReadTimeout    int    `json:"readTimeout" yaml:"readTimeout"`       // seconds
	WriteTimeout   int    `json:"writeTimeout" yaml:"writeTimeout"`     // seconds
	RequestTimeout int    `json:"requestTimeout" yaml:"requestTimeout"` // seconds

	// AllowedOrigins lists the browser origins the API answers CORS requests
	// for. "*" allows any origin.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

// EngineConfig holds decision engine settings.
type EngineConfig struct {
	// ProgramCacheSize bounds the number of compiled expressions kept.
	ProgramCacheSize int `json:"programCacheSize" yaml:"programCacheSize"`

	// ProgramCacheTTL is the lifetime of a compiled expression, in seconds.
	ProgramCacheTTL int `json:"programCacheTTL" yaml:"programCacheTTL"`

	// MaxDocumentBytes caps the size of a request body.
	MaxDocumentBytes int64 `json:"maxDocumentBytes" yaml:"maxDocumentBytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"` // OTLP/gRPC collector host:port
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio"`
}

// WorkerConfig holds settings for the bus-driven async evaluator.
type WorkerConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	Concurrency int  `json:"concurrency" yaml:"concurrency"`
	QueueSize   int  `json:"queueSize" yaml:"queueSize"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Path      string `json:"path" yaml:"path"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a configuration that runs without any external service.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RequestTimeout: 60,
			AllowedOrigins: []string{"*"},
		},
		Engine: EngineConfig{
			ProgramCacheSize: 4096,
			ProgramCacheTTL:  600,
			MaxDocumentBytes: 5 << 20,
		},
		EventBus: EventBusConfig{
			Type:              BusChannel,
			ChannelBufferSize: 1000,
			NATSSubjectPrefix: "dmnsim",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "dmnsim",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "dmnsim",
		},
		Worker: WorkerConfig{
			Enabled:     false,
			Concurrency: 5,
			QueueSize:   100,
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies DMNSIM_* environment variables to cfg.
func ApplyEnvOverrides(cfg *Config) {
	if val := os.Getenv("DMNSIM_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("DMNSIM_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("DMNSIM_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if os.Getenv("DMNSIM_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if val := os.Getenv("DMNSIM_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = strings.ToLower(val)
	}
	if val := os.Getenv("DMNSIM_BUS"); val != "" {
		cfg.EventBus.Type = strings.ToLower(val)
	}
	if val := os.Getenv("DMNSIM_NATS_URL"); val != "" {
		cfg.EventBus.NATSUrl = val
	}
	if val := os.Getenv("DMNSIM_CORS_ORIGINS"); val != "" {
		var origins []string
		for _, origin := range strings.Split(val, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	if val := os.Getenv("DMNSIM_METRICS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = enabled
		}
	}
	if os.Getenv("DMNSIM_TRACING") == "true" {
		cfg.Tracing.Enabled = true
	}
	if val := os.Getenv("DMNSIM_OTLP_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}
	if os.Getenv("DMNSIM_ASYNC_WORKER") == "true" {
		cfg.Worker.Enabled = true
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	switch c.EventBus.Type {
	case BusNone, BusChannel, BusNATS:
	default:
		return fmt.Errorf("unsupported event bus type: %s", c.EventBus.Type)
	}

	if c.EventBus.Type == BusNATS && strings.ContainsAny(c.EventBus.NATSSubjectPrefix, " *>") {
		return fmt.Errorf("eventBus.natsSubjectPrefix must not contain spaces or wildcards, got %q", c.EventBus.NATSSubjectPrefix)
	}

	if c.Engine.ProgramCacheSize < 0 {
		return fmt.Errorf("engine.programCacheSize must not be negative")
	}
	if c.Engine.MaxDocumentBytes <= 0 {
		return fmt.Errorf("engine.maxDocumentBytes must be positive")
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("tracing.sampleRatio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
		}
	}

	if c.Worker.Enabled {
		if c.EventBus.Type == BusNone {
			return fmt.Errorf("worker requires an event bus")
		}
		if c.Worker.Concurrency <= 0 {
			return fmt.Errorf("worker.concurrency must be positive")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}
