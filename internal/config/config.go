package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds top-level application configuration groups.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Couchbase CouchbaseConfig `mapstructure:"couchbase"`
	Search    SearchConfig    `mapstructure:"search"`
	Photos    PhotosConfig    `mapstructure:"photos"`
	Detection DetectionConfig `mapstructure:"detection"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServiceConfig defines basic runtime context of the service.
type ServiceConfig struct {
	Name        string        `mapstructure:"name"`
	Version     string        `mapstructure:"version"`
	Environment string        `mapstructure:"environment"`
	Port        string        `mapstructure:"port"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// KafkaConfig groups settings necessary to connect to Kafka. The changes
// topic carries the synthesized primary-store change feed; events are
// published keyed by entity ID so consumers see per-key ordering.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ReportOpsTopic string        `mapstructure:"report_ops_topic"`
	GroupOpsTopic  string        `mapstructure:"group_ops_topic"`
	KeywordsTopic  string        `mapstructure:"keywords_topic"`
	ChangesTopic   string        `mapstructure:"changes_topic"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	BatchSize      int           `mapstructure:"batch_size"`
	FlushTimeout   time.Duration `mapstructure:"flush_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
}

// CouchbaseConfig groups settings necessary to connect to the entity store.
type CouchbaseConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Bucket           string        `mapstructure:"bucket"`
	Scope            string        `mapstructure:"scope"`
	Collection       string        `mapstructure:"collection"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SearchConfig groups settings for the OpenSearch domain.
type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// PhotosConfig groups settings for the photo object store.
type PhotosConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

// DetectionConfig points at the external key-phrase and image-label services.
type DetectionConfig struct {
	KeyPhrasesURL string        `mapstructure:"key_phrases_url"`
	LabelsURL     string        `mapstructure:"labels_url"`
	MaxLabels     int           `mapstructure:"max_labels"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AuthConfig controls bearer-token verification on the gateway. AdminPool
// and UserPool are the trusted issuer pools; callers from AdminPool are
// privileged.
type AuthConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
	AdminPool     string `mapstructure:"admin_pool"`
	UserPool      string `mapstructure:"user_pool"`
}

// LoggingConfig controls application logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // "info", "debug", etc.
	Format string `mapstructure:"format"` // "json" or "text"
}

// MetricsConfig defines settings for metrics exposure.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("REPORT_PIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/report-pipeline")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		logrus.Info("No config file found, using defaults and environment variables")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults establishes default values for configuration.
func setDefaults() {
	viper.SetDefault("service.name", "report-pipeline")
	viper.SetDefault("service.version", "1.0.0")
	viper.SetDefault("service.environment", "development")
	viper.SetDefault("service.port", "8080")
	viper.SetDefault("service.timeout", "30s")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.report_ops_topic", "reports.ops")
	viper.SetDefault("kafka.group_ops_topic", "groups.ops")
	viper.SetDefault("kafka.keywords_topic", "reports.keywords")
	viper.SetDefault("kafka.changes_topic", "entities.changes")
	viper.SetDefault("kafka.consumer_group", "report-pipeline")
	viper.SetDefault("kafka.batch_size", 100)
	viper.SetDefault("kafka.flush_timeout", "5s")
	viper.SetDefault("kafka.retry_attempts", 3)

	viper.SetDefault("couchbase.connection_string", "couchbase://localhost")
	viper.SetDefault("couchbase.username", "Administrator")
	viper.SetDefault("couchbase.password", "password")
	viper.SetDefault("couchbase.bucket", "entities")
	viper.SetDefault("couchbase.scope", "_default")
	viper.SetDefault("couchbase.collection", "_default")
	viper.SetDefault("couchbase.timeout", "10s")

	viper.SetDefault("search.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("search.username", "admin")
	viper.SetDefault("search.password", "admin")

	viper.SetDefault("photos.endpoint", "localhost:9000")
	viper.SetDefault("photos.access_key", "minioadmin")
	viper.SetDefault("photos.secret_key", "minioadmin")
	viper.SetDefault("photos.bucket", "report-photos")
	viper.SetDefault("photos.use_ssl", false)
	viper.SetDefault("photos.url_expiry", "1h")

	viper.SetDefault("detection.key_phrases_url", "http://localhost:8090/key-phrases")
	viper.SetDefault("detection.labels_url", "http://localhost:8090/labels")
	viper.SetDefault("detection.max_labels", 5)
	viper.SetDefault("detection.timeout", "15s")

	viper.SetDefault("auth.admin_pool", "admins")
	viper.SetDefault("auth.user_pool", "users")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", "9090")
	viper.SetDefault("metrics.path", "/metrics")
}

// Validate ensures critical configuration values are present.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Kafka.ReportOpsTopic == "" || c.Kafka.GroupOpsTopic == "" {
		return fmt.Errorf("kafka operation topics cannot be empty")
	}
	if c.Kafka.ChangesTopic == "" {
		return fmt.Errorf("kafka changes topic cannot be empty")
	}
	if c.Couchbase.ConnectionString == "" {
		return fmt.Errorf("couchbase connection string cannot be empty")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("search addresses cannot be empty")
	}
	if c.Photos.Bucket == "" {
		return fmt.Errorf("photos bucket cannot be empty")
	}
	return nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Service.Environment, "development")
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Service.Environment, "production")
}
