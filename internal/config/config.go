package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Providers      ProvidersConfig      `yaml:"providers"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Database       DatabaseConfig       `yaml:"database"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	AppName     string   `yaml:"app_name"`
	CorsOrigins []string `yaml:"cors_origins"`
}

// ProvidersConfig carries one credential per upstream vendor. Any subset
// may be blank; adapters without a key degrade to the apology response
// instead of failing startup.
type ProvidersConfig struct {
	OpenAIKey    string `yaml:"openai_api_key"`
	AnthropicKey string `yaml:"anthropic_api_key"`
	GoogleKey    string `yaml:"google_api_key"`
	MistralKey   string `yaml:"mistral_api_key"`
}

type EmbeddingConfig struct {
	ServiceType string `yaml:"service_type"`
	ServiceURL  string `yaml:"service_url"`
	MaxWorkers  int    `yaml:"max_workers"`
	CacheSize   int    `yaml:"cache_size"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

type DatabaseConfig struct {
	EnablePersistence bool   `yaml:"enable_persistence"`
	URL               string `yaml:"url"`
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	Name              string `yaml:"name"`
	SSLMode           string `yaml:"ssl_mode"`
	Workers           int    `yaml:"workers"`
	BufferSize        int    `yaml:"buffer_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
	File         string `yaml:"file"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAgeDays   int    `yaml:"max_age_days"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Info("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			AppName:     "MyGPT Stream Core",
			CorsOrigins: []string{"*"},
		},
		Embedding: EmbeddingConfig{
			ServiceType: "local",
			ServiceURL:  "http://localhost:8001",
			MaxWorkers:  4,
			CacheSize:   1000,
			TimeoutMs:   5000,
		},
		Database: DatabaseConfig{
			EnablePersistence: false,
			Host:              "localhost",
			Port:              "5432",
			User:              "mygpt",
			Name:              "mygpt",
			SSLMode:           "disable",
			Workers:           5,
			BufferSize:        1000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
			MaxSizeMB:    50,
			MaxBackups:   3,
			MaxAgeDays:   28,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("APP_NAME"); val != "" {
		config.Server.AppName = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	// Provider credential overrides
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		config.Providers.OpenAIKey = val
	}
	if val := os.Getenv("ANTHROPIC_API_KEY"); val != "" {
		config.Providers.AnthropicKey = val
	}
	if val := os.Getenv("GOOGLE_API_KEY"); val != "" {
		config.Providers.GoogleKey = val
	}
	if val := os.Getenv("MISTRAL_API_KEY"); val != "" {
		config.Providers.MistralKey = val
	}

	// Embedding service overrides
	if val := os.Getenv("EMBEDDING_SERVICE_TYPE"); val != "" {
		config.Embedding.ServiceType = val
	}
	if val := os.Getenv("EMBEDDING_SERVICE_URL"); val != "" {
		config.Embedding.ServiceURL = val
	}
	if val := os.Getenv("EMBEDDING_MAX_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Embedding.MaxWorkers = i
		}
	}
	if val := os.Getenv("EMBEDDING_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Embedding.CacheSize = i
		}
	}
	if val := os.Getenv("EMBEDDING_TIMEOUT_MS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Embedding.TimeoutMs = i
		}
	}

	// Database overrides
	if val := os.Getenv("ENABLE_PERSISTENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.EnablePersistence = b
		}
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_HOST"); val != "" {
		config.Database.Host = val
	}
	if val := os.Getenv("DATABASE_PORT"); val != "" {
		config.Database.Port = val
	}
	if val := os.Getenv("DATABASE_USER"); val != "" {
		config.Database.User = val
	}
	if val := os.Getenv("DATABASE_PASSWORD"); val != "" {
		config.Database.Password = val
	}
	if val := os.Getenv("DATABASE_NAME"); val != "" {
		config.Database.Name = val
	}
	if val := os.Getenv("DATABASE_SSL_MODE"); val != "" {
		config.Database.SSLMode = val
	}
	if val := os.Getenv("DATABASE_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.Workers = i
		}
	}
	if val := os.Getenv("DATABASE_BUFFER_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.BufferSize = i
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration. Missing provider keys only
// warn: the service still serves the apology response without any.
func validateConfig(config *Config) error {
	var errors []string

	if !config.HasAnyProviderKey() {
		logrus.Warn("No provider API keys configured; all chat requests will receive the unavailable response")
	}

	switch config.Embedding.ServiceType {
	case "local", "http", "":
	default:
		errors = append(errors, fmt.Sprintf("EMBEDDING_SERVICE_TYPE must be 'local' or 'http' (current: %s)", config.Embedding.ServiceType))
	}

	if config.Embedding.ServiceType == "http" && config.Embedding.ServiceURL == "" {
		errors = append(errors, "EMBEDDING_SERVICE_URL is required when EMBEDDING_SERVICE_TYPE is 'http'")
	}

	if _, err := strconv.Atoi(config.Server.Port); err != nil {
		errors = append(errors, fmt.Sprintf("PORT must be numeric (current: %s)", config.Server.Port))
	}

	if config.Database.EnablePersistence {
		if config.Database.Workers <= 0 {
			errors = append(errors, fmt.Sprintf("DATABASE_WORKERS must be positive (current: %d)", config.Database.Workers))
		}
		if config.Database.BufferSize <= 0 {
			errors = append(errors, fmt.Sprintf("DATABASE_BUFFER_SIZE must be positive (current: %d)", config.Database.BufferSize))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// HasAnyProviderKey reports whether at least one upstream credential is set.
func (c *Config) HasAnyProviderKey() bool {
	p := c.Providers
	return p.OpenAIKey != "" || p.AnthropicKey != "" || p.GoogleKey != "" || p.MistralKey != ""
}

// GetDatabaseDSN constructs the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Load reads config.yaml from the working directory when present.
func Load() (*Config, error) {
	return LoadYAML("")
}
