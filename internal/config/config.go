package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	GinMode     string `yaml:"ginMode"`
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`
	LogLevel    string `yaml:"logLevel"`

	IntercomBaseURL    string        `yaml:"intercomBaseURL"`
	IntercomAPIVersion string        `yaml:"intercomAPIVersion"`
	IntercomTimeout    time.Duration `yaml:"-"`

	// SendRateLimit is the number of sends allowed per client IP per minute.
	// Zero disables limiting.
	SendRateLimit int           `yaml:"sendRateLimitPerMinute"`
	WatchInterval time.Duration `yaml:"-"`

	// UseKeyring enables the OS keyring as a fallback credential source.
	UseKeyring bool `yaml:"credentialKeyring"`
}

// fileConfig carries the durations as plain seconds.
type fileConfig struct {
	Config                 `yaml:",inline"`
	IntercomTimeoutSeconds int `yaml:"intercomTimeoutSeconds"`
	WatchIntervalSeconds   int `yaml:"watchIntervalSeconds"`
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// OSEnv exposes the process environment through Env.
func OSEnv() Env { return osEnv{} }

func Default() Config {
	return Config{
		Port:               3000,
		GinMode:            "release",
		LogLevel:           "info",
		IntercomBaseURL:    "https://api.intercom.io",
		IntercomAPIVersion: "2.11",
		IntercomTimeout:    30 * time.Second,
		SendRateLimit:      30,
		WatchInterval:      5 * time.Second,
	}
}

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

// LoadConfigFromEnv builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE (if any), then environment variables.
func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Default()

	if path := env.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	if raw := env.Getenv("TLS_CERT_FILE"); raw != "" {
		cfg.TLSCertFile = raw
	}
	if raw := env.Getenv("TLS_KEY_FILE"); raw != "" {
		cfg.TLSKeyFile = raw
	}
	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := env.Getenv("INTERCOM_BASE_URL"); raw != "" {
		cfg.IntercomBaseURL = raw
	}
	if raw := env.Getenv("INTERCOM_API_VERSION"); raw != "" {
		cfg.IntercomAPIVersion = raw
	}

	if raw := env.Getenv("INTERCOM_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid INTERCOM_TIMEOUT_SECONDS")
		}
		cfg.IntercomTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("SEND_RATE_LIMIT_PER_MINUTE"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return Config{}, fmt.Errorf("invalid SEND_RATE_LIMIT_PER_MINUTE")
		}
		cfg.SendRateLimit = limit
	}

	if raw := env.Getenv("WATCH_INTERVAL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid WATCH_INTERVAL_SECONDS")
		}
		cfg.WatchInterval = time.Duration(seconds) * time.Second
	}

	if raw := env.Getenv("CREDENTIAL_KEYRING"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CREDENTIAL_KEYRING")
		}
		cfg.UseKeyring = enabled
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if fc.IntercomTimeoutSeconds < 0 || fc.WatchIntervalSeconds < 0 {
		return fmt.Errorf("parsing config file %s: durations must be positive", path)
	}
	if fc.IntercomTimeoutSeconds > 0 {
		fc.IntercomTimeout = time.Duration(fc.IntercomTimeoutSeconds) * time.Second
	}
	if fc.WatchIntervalSeconds > 0 {
		fc.WatchInterval = time.Duration(fc.WatchIntervalSeconds) * time.Second
	}
	*cfg = fc.Config
	return nil
}
