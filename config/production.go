// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/specialist-referral/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	JWT          JWTConfig          `json:"jwt"`
	SMS          SMSConfig          `json:"sms"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
	Sentry       SentryConfig       `json:"sentry"`
	Kafka        KafkaConfig        `json:"kafka"`
	MQTT         MQTTConfig         `json:"mqtt"`
	Lookup       LookupConfig       `json:"lookup"`
	Notification NotificationConfig `json:"notification"`
	Referral     ReferralConfig     `json:"referral"`
	Deployment   DeploymentConfig   `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableCompression bool          `json:"enable_compression"`
}

type SecurityConfig struct {
	AllowedOrigins   []string      `json:"allowed_origins"`
	AllowedMethods   []string      `json:"allowed_methods"`
	AllowedHeaders   []string      `json:"allowed_headers"`
	AllowCredentials bool          `json:"allow_credentials"`
	GlobalRateLimit  int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow  time.Duration `json:"rate_limit_window"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	PrivateKey     string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey      string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys     bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

// SMSConfig configures the primary SMS gateway channel
type SMSConfig struct {
	ProviderDomain string        `json:"provider_domain"`
	APIKey         string        `json:"api_key"`
	SourceNumber   string        `json:"source_number"`
	RetryCount     int           `json:"retry_count"`
	ValidityPeriod int           `json:"validity_period"`
	Timeout        time.Duration `json:"timeout"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, console
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type SentryConfig struct {
	DSN              string        `json:"dsn"`
	TracesSampleRate float64       `json:"traces_sample_rate"`
	FlushTimeout     time.Duration `json:"flush_timeout"`
}

type KafkaConfig struct {
	Brokers           []string      `json:"brokers"`
	NotificationTopic string        `json:"notification_topic"`
	BatchTimeout      time.Duration `json:"batch_timeout"`
}

type MQTTConfig struct {
	Broker      string        `json:"broker"`
	ClientID    string        `json:"client_id"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	TopicPrefix string        `json:"topic_prefix"`
	QoS         int           `json:"qos"`
	Timeout     time.Duration `json:"timeout"`
}

// Secondary lookup providers
const (
	LookupProviderNone          = "none"
	LookupProviderHTTP          = "http"
	LookupProviderElasticsearch = "elasticsearch"
)

// LookupConfig configures the secondary order lookup used by the contact resolver
type LookupConfig struct {
	Provider           string        `json:"provider"` // none, http, elasticsearch
	URL                string        `json:"url"`
	ServiceKey         string        `json:"service_key"`
	Timeout            time.Duration `json:"timeout"`
	ElasticsearchURLs  []string      `json:"elasticsearch_urls"`
	ElasticsearchIndex string        `json:"elasticsearch_index"`
	ElasticsearchUser  string        `json:"elasticsearch_user"`
	ElasticsearchPass  string        `json:"elasticsearch_pass"`
	MaxResults         int           `json:"max_results"`
	CacheTTL           time.Duration `json:"cache_ttl"`
}

// NotificationConfig configures the ordered delivery channels and the message
type NotificationConfig struct {
	Channels        []ChannelConfig `json:"channels"`
	ChannelsFile    string          `json:"channels_file"`
	MessageTemplate string          `json:"message_template"`
	DispatchTimeout time.Duration   `json:"dispatch_timeout"`
	Source          string          `json:"source"`
}

// ReferralConfig holds referral workflow settings
type ReferralConfig struct {
	CountryCode        string        `json:"country_code"`
	SwitchboardNumbers []string      `json:"switchboard_numbers"`
	StagingTTL         time.Duration `json:"staging_ttl"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
}

// DefaultMessageTemplate is sent to the specialist after a committed referral
const DefaultMessageTemplate = "Sayın {{.SpecialistName}}, size yeni bir danışan yönlendirildi: {{.ClientName}} {{.ClientSurname}} - İletişim: {{.ClientContact}}"

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "referrals"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:    getEnvDuration("SERVER_REQUEST_TIMEOUT", 20*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 1024*1024),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://admin.example.com"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 600),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:     getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:      getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:     getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", utils.AccessTokenTTL),
			Issuer:         getEnvString("JWT_ISSUER", "specialist-referral"),
			Audience:       getEnvString("JWT_AUDIENCE", "specialist-referral-admin"),
		},
		SMS: SMSConfig{
			ProviderDomain: getEnvString("SMS_PROVIDER_DOMAIN", "mock"),
			APIKey:         getEnvString("SMS_API_KEY", ""),
			SourceNumber:   getEnvString("SMS_SOURCE_NUMBER", ""),
			RetryCount:     getEnvInt("SMS_RETRY_COUNT", 0),
			ValidityPeriod: getEnvInt("SMS_VALIDITY_PERIOD", 300),
			Timeout:        getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Format:           getEnvString("LOG_FORMAT", "json"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/referral/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "referral:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Sentry: SentryConfig{
			DSN:              getEnvString("SENTRY_DSN", ""),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0.2),
			FlushTimeout:     getEnvDuration("SENTRY_FLUSH_TIMEOUT", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationTopic: getEnvString("KAFKA_NOTIFICATION_TOPIC", "specialist-notifications"),
			BatchTimeout:      getEnvDuration("KAFKA_BATCH_TIMEOUT", 50*time.Millisecond),
		},
		MQTT: MQTTConfig{
			Broker:      getEnvString("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnvString("MQTT_CLIENT_ID", "specialist-referral"),
			Username:    getEnvString("MQTT_USERNAME", ""),
			Password:    getEnvString("MQTT_PASSWORD", ""),
			TopicPrefix: getEnvString("MQTT_TOPIC_PREFIX", "notifications/specialists"),
			QoS:         getEnvInt("MQTT_QOS", 1),
			Timeout:     getEnvDuration("MQTT_TIMEOUT", 5*time.Second),
		},
		Lookup: LookupConfig{
			Provider:           getEnvString("LOOKUP_PROVIDER", LookupProviderNone),
			URL:                getEnvString("LOOKUP_URL", ""),
			ServiceKey:         getEnvString("LOOKUP_SERVICE_KEY", ""),
			Timeout:            getEnvDuration("LOOKUP_TIMEOUT", 5*time.Second),
			ElasticsearchURLs:  getEnvStringSlice("LOOKUP_ELASTICSEARCH_URLS", []string{"http://localhost:9200"}),
			ElasticsearchIndex: getEnvString("LOOKUP_ELASTICSEARCH_INDEX", "orders"),
			ElasticsearchUser:  getEnvString("LOOKUP_ELASTICSEARCH_USER", ""),
			ElasticsearchPass:  getEnvString("LOOKUP_ELASTICSEARCH_PASS", ""),
			MaxResults:         getEnvInt("LOOKUP_MAX_RESULTS", 20),
			CacheTTL:           getEnvDuration("LOOKUP_CACHE_TTL", utils.DefaultLookupCacheTTL),
		},
		Notification: NotificationConfig{
			ChannelsFile:    getEnvString("NOTIFY_CHANNELS_FILE", ""),
			MessageTemplate: getEnvString("NOTIFY_MESSAGE_TEMPLATE", DefaultMessageTemplate),
			DispatchTimeout: getEnvDuration("NOTIFY_DISPATCH_TIMEOUT", 30*time.Second),
			Source:          getEnvString("NOTIFY_SOURCE", "referral_admin"),
		},
		Referral: ReferralConfig{
			CountryCode:        getEnvString("REFERRAL_COUNTRY_CODE", utils.DefaultCountryCode),
			SwitchboardNumbers: getEnvStringSlice("REFERRAL_SWITCHBOARD_NUMBERS", utils.DefaultSwitchboardNumbers),
			StagingTTL:         getEnvDuration("REFERRAL_STAGING_TTL", utils.DefaultStagingTTL),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
		},
	}

	channels, err := loadChannels(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Notification.Channels = channels

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
			value = value[1 : len(value)-1]
		}

		// Real environment wins over .env
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errors = append(errors, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when LOG_OUTPUT writes to a file")
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	switch cfg.Lookup.Provider {
	case "", LookupProviderNone:
	case LookupProviderHTTP:
		if cfg.Lookup.URL == "" {
			errors = append(errors, "LOOKUP_URL is required for the http lookup provider")
		}
	case LookupProviderElasticsearch:
		if len(cfg.Lookup.ElasticsearchURLs) == 0 || cfg.Lookup.ElasticsearchIndex == "" {
			errors = append(errors, "LOOKUP_ELASTICSEARCH_URLS and LOOKUP_ELASTICSEARCH_INDEX are required for the elasticsearch lookup provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("LOOKUP_PROVIDER %q is not supported", cfg.Lookup.Provider))
	}

	if len(cfg.Notification.Channels) == 0 {
		errors = append(errors, "at least one notification channel must be configured")
	}
	for i, ch := range cfg.Notification.Channels {
		errors = append(errors, ch.validate(i)...)
	}
	if strings.TrimSpace(cfg.Notification.MessageTemplate) == "" {
		errors = append(errors, "NOTIFY_MESSAGE_TEMPLATE must not be empty")
	}
	if cfg.Notification.DispatchTimeout <= 0 {
		errors = append(errors, "NOTIFY_DISPATCH_TIMEOUT must be positive")
	}

	if cfg.Referral.CountryCode == "" || utils.DigitsOnly(cfg.Referral.CountryCode) != cfg.Referral.CountryCode {
		errors = append(errors, "REFERRAL_COUNTRY_CODE must contain digits only")
	}
	if cfg.Referral.StagingTTL <= 0 {
		errors = append(errors, "REFERRAL_STAGING_TTL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
