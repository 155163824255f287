package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/scorelink/go/internal/relay"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/mcdev12/scorelink/go/internal/transport"
	"github.com/mcdev12/scorelink/go/internal/wear"
	"gopkg.in/yaml.v3"
)

// Config is the optional YAML tuning file named by CONFIG_PATH
type Config struct {
	Backoff   session.BackoffConfig `yaml:"backoff"`
	Transport struct {
		ServiceID        string        `yaml:"service_id"`
		SubjectPrefix    string        `yaml:"subject_prefix"`
		AnnounceInterval time.Duration `yaml:"announce_interval"`
		PayloadFormat    string        `yaml:"payload_format"`
	} `yaml:"transport"`
	Wear struct {
		Enabled       bool   `yaml:"enabled"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"wear"`
}

// Settings is the resolved process configuration
type Settings struct {
	Role          session.Role
	Transport     string
	Port          string
	NATSURL       string
	AdvertiseURL  string
	Format        transport.Format
	Backoff       session.BackoffConfig
	Net           transport.NetConfig
	WearEnabled   bool
	WearSubject   string
	QueueSize     int
	ShutdownGrace time.Duration
}

func defaultConfig() *Config {
	cfg := &Config{Backoff: session.DefaultBackoffConfig()}
	netCfg := transport.DefaultNetConfig()
	cfg.Transport.ServiceID = netCfg.ServiceID
	cfg.Transport.SubjectPrefix = netCfg.SubjectPrefix
	cfg.Transport.AnnounceInterval = netCfg.AnnounceInterval
	cfg.Transport.PayloadFormat = transport.FormatToken.String()
	cfg.Wear.Enabled = true
	cfg.Wear.SubjectPrefix = wear.DefaultSubjectPrefix
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// loadSettings merges the YAML config with environment variables, which take precedence
func loadSettings() (Settings, error) {
	config, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return Settings{}, err
	}

	role, err := session.ParseRole(getEnv("ROLE", "host"))
	if err != nil {
		return Settings{}, err
	}
	format, err := transport.ParseFormat(getEnv("PAYLOAD_FORMAT", config.Transport.PayloadFormat))
	if err != nil {
		return Settings{}, err
	}

	mode := getEnv("TRANSPORT", "net")
	if mode != "net" && mode != "memory" {
		return Settings{}, fmt.Errorf("unknown transport %q", mode)
	}

	port := getEnv("PORT", "8080")
	netCfg := transport.DefaultNetConfig()
	netCfg.ServiceID = getEnv("SERVICE_ID", config.Transport.ServiceID)
	netCfg.SubjectPrefix = config.Transport.SubjectPrefix
	netCfg.AnnounceInterval = getEnvAsDuration("ANNOUNCE_INTERVAL", config.Transport.AnnounceInterval)
	netCfg.AdvertiseURL = getEnv("ADVERTISE_URL", fmt.Sprintf("ws://localhost:%s/ws/peer", port))

	backoffCfg := config.Backoff
	backoffCfg.Enabled = getEnvAsBool("BACKOFF_ENABLED", backoffCfg.Enabled)
	backoffCfg.MaxAttempts = getEnvAsInt("BACKOFF_MAX_ATTEMPTS", backoffCfg.MaxAttempts)

	return Settings{
		Role:          role,
		Transport:     mode,
		Port:          port,
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		AdvertiseURL:  netCfg.AdvertiseURL,
		Format:        format,
		Backoff:       backoffCfg,
		Net:           netCfg,
		WearEnabled:   getEnvAsBool("WEAR_ENABLED", config.Wear.Enabled),
		WearSubject:   wear.SubjectForPath(config.Wear.SubjectPrefix, wear.ScoreUpdatePath),
		QueueSize:     getEnvAsInt("COMMAND_QUEUE_SIZE", 64),
		ShutdownGrace: getEnvAsDuration("SHUTDOWN_GRACE", 10*time.Second),
	}, nil
}

// deviceConfig builds the relay configuration for role
func (s Settings) deviceConfig(role session.Role) relay.Config {
	cfg := relay.DefaultConfig(role)
	cfg.Backoff = s.Backoff
	cfg.Format = s.Format
	cfg.QueueSize = s.QueueSize
	return cfg
}
