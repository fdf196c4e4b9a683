package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Stream struct {
		AssetPath     string        `yaml:"asset_path"`
		ChunkSize     int           `yaml:"chunk_size"`
		HighWaterMark uint64        `yaml:"high_water_mark"`
		SendInterval  time.Duration `yaml:"send_interval"`
	} `yaml:"stream"`

	Client struct {
		SignalingURL           string        `yaml:"signaling_url"`
		BufferThresholdSeconds float64       `yaml:"buffer_threshold_seconds"`
		MaxReconnectAttempts   int           `yaml:"max_reconnect_attempts"`
		ReconnectInitialDelay  time.Duration `yaml:"reconnect_initial_delay"`
		ReconnectMaxDelay      time.Duration `yaml:"reconnect_max_delay"`
		AssumedByteRate        int           `yaml:"assumed_byte_rate"`
	} `yaml:"client"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Stream
	if c.Stream.AssetPath == "" {
		return fmt.Errorf("stream.asset_path must not be empty")
	}
	if c.Stream.ChunkSize <= 0 {
		return fmt.Errorf("stream.chunk_size must be > 0")
	}
	if c.Stream.HighWaterMark == 0 {
		return fmt.Errorf("stream.high_water_mark must be > 0")
	}
	if c.Stream.SendInterval <= 0 {
		return fmt.Errorf("stream.send_interval must be > 0")
	}

	// Client
	if c.Client.SignalingURL == "" {
		return fmt.Errorf("client.signaling_url must not be empty")
	}
	if c.Client.BufferThresholdSeconds <= 0 {
		return fmt.Errorf("client.buffer_threshold_seconds must be > 0")
	}
	if c.Client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("client.max_reconnect_attempts must be >= 0")
	}
	if c.Client.ReconnectInitialDelay <= 0 {
		return fmt.Errorf("client.reconnect_initial_delay must be > 0")
	}
	if c.Client.ReconnectMaxDelay < c.Client.ReconnectInitialDelay {
		return fmt.Errorf("client.reconnect_max_delay must be >= reconnect_initial_delay")
	}
	if c.Client.AssumedByteRate <= 0 {
		return fmt.Errorf("client.assumed_byte_rate must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Stream.AssetPath = "assets/track.mp3"
	cfg.Stream.ChunkSize = 64 * 1024
	cfg.Stream.HighWaterMark = 256 * 1024
	cfg.Stream.SendInterval = 50 * time.Millisecond

	cfg.Client.SignalingURL = "http://localhost:8080"
	cfg.Client.BufferThresholdSeconds = 10
	cfg.Client.MaxReconnectAttempts = 3
	cfg.Client.ReconnectInitialDelay = time.Second
	cfg.Client.ReconnectMaxDelay = 5 * time.Second
	cfg.Client.AssumedByteRate = 12 * 1024

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 10
	cfg.RateLimiting.Burst = 20

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "audiocast"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("AUDIOCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if path := os.Getenv("AUDIOCAST_ASSET_PATH"); path != "" {
		c.Stream.AssetPath = path
	}
	if url := os.Getenv("AUDIOCAST_SIGNALING_URL"); url != "" {
		c.Client.SignalingURL = url
	}
	if level := os.Getenv("AUDIOCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if attempts := os.Getenv("AUDIOCAST_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			c.Client.MaxReconnectAttempts = n
		}
	}
}
