// Package config provides configuration handling for drsplan.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/drsolutions/drsplan/pkg/logging"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// AWS configuration shared by the Step Functions, S3 and SNS clients
	AWS AWSConfig `json:"aws" yaml:"aws"`

	// Workflow configuration
	Workflow WorkflowConfig `json:"workflow" yaml:"workflow"`

	// Results configuration
	Results ResultsConfig `json:"results" yaml:"results"`

	// Executions configuration
	Executions ExecutionsConfig `json:"executions" yaml:"executions"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Notifications configuration
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`

	// Auth configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Validation configuration
	Validation ValidationConfig `json:"validation" yaml:"validation"`

	// Logging configuration
	Logging logging.LogConfig `json:"logging" yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// Duration is a time.Duration written as a string ("30s") in config files
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host" yaml:"host" env:"DRSPLAN_SERVER_HOST"`

	// Port to listen on
	Port int `json:"port" yaml:"port" env:"DRSPLAN_SERVER_PORT"`

	// BasePath mounts every route a second time under a prefix, e.g. "/prod"
	BasePath string `json:"base_path" yaml:"base_path" env:"DRSPLAN_SERVER_BASE_PATH"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"DRSPLAN_SERVER_SHUTDOWN_TIMEOUT"`

	// TLS configuration
	TLS TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled" yaml:"enabled" env:"DRSPLAN_TLS_ENABLED"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file" yaml:"cert_file" env:"DRSPLAN_TLS_CERT_FILE"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file" yaml:"key_file" env:"DRSPLAN_TLS_KEY_FILE"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type" yaml:"type" env:"DRSPLAN_STORAGE_TYPE"` // "memory", "dynamodb", "postgres", "leveldb"

	// DynamoDB configuration
	DynamoDB DynamoDBConfig `json:"dynamodb" yaml:"dynamodb"`

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`

	// LevelDB configuration
	LevelDB LevelDBConfig `json:"leveldb" yaml:"leveldb"`
}

// DynamoDBConfig contains DynamoDB settings
type DynamoDBConfig struct {
	// Endpoint is the DynamoDB endpoint (for local development)
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"DRSPLAN_DYNAMODB_ENDPOINT"`

	// TablePrefix is the prefix for tables without an explicit name
	TablePrefix string `json:"table_prefix" yaml:"table_prefix" env:"DRSPLAN_DYNAMODB_TABLE_PREFIX"`

	// CreateTables creates missing tables at startup
	CreateTables bool `json:"create_tables" yaml:"create_tables" env:"DRSPLAN_DYNAMODB_CREATE_TABLES"`

	// Explicit table names, as deployed by the infrastructure stack
	AccountsTable     string `json:"accounts_table" yaml:"accounts_table" env:"DRS_ACCOUNTS_TABLE_NAME"`
	ApplicationsTable string `json:"applications_table" yaml:"applications_table" env:"DRS_TABLE_NAME"`
	ExecutionsTable   string `json:"executions_table" yaml:"executions_table" env:"DRS_EXECUTION_TABLE_NAME"`
	ResultsTable      string `json:"results_table" yaml:"results_table" env:"DRS_RESULTS_TABLE_NAME"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host" yaml:"host" env:"DRSPLAN_POSTGRES_HOST"`

	// Port is the database port
	Port int `json:"port" yaml:"port" env:"DRSPLAN_POSTGRES_PORT"`

	// Database is the database name
	Database string `json:"database" yaml:"database" env:"DRSPLAN_POSTGRES_DATABASE"`

	// User is the database user
	User string `json:"user" yaml:"user" env:"DRSPLAN_POSTGRES_USER"`

	// Password is the database password
	Password string `json:"password" yaml:"password" env:"DRSPLAN_POSTGRES_PASSWORD"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode" yaml:"ssl_mode" env:"DRSPLAN_POSTGRES_SSL_MODE"`
}

// LevelDBConfig contains LevelDB settings
type LevelDBConfig struct {
	// Path is the database directory
	Path string `json:"path" yaml:"path" env:"DRSPLAN_LEVELDB_PATH"`
}

// AWSConfig contains credentials and endpoint overrides for AWS clients
type AWSConfig struct {
	Region    string `json:"region" yaml:"region" env:"AWS_REGION"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty" env:"AWS_ACCESS_KEY_ID"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" env:"AWS_SECRET_ACCESS_KEY"`

	// Endpoint points every client at a local emulator
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"DRSPLAN_AWS_ENDPOINT"`
}

// WorkflowConfig selects the workflow service
type WorkflowConfig struct {
	// Type is "stepfunctions" or "memory"
	Type string `json:"type" yaml:"type" env:"DRSPLAN_WORKFLOW_TYPE"`

	// StateMachineArn is the recovery state machine
	StateMachineArn string `json:"state_machine_arn" yaml:"state_machine_arn" env:"DRS_STATE_MACHINE_ARN"`
}

// ResultsConfig contains result query settings
type ResultsConfig struct {
	// ArchiveBucket is used for archived results that do not name their bucket
	ArchiveBucket string `json:"archive_bucket" yaml:"archive_bucket" env:"DRS_APPLICATION_S3_BUCKET"`

	// PollInterval is how often a result stream re-reads the store
	PollInterval Duration `json:"poll_interval" yaml:"poll_interval" env:"DRSPLAN_RESULTS_POLL_INTERVAL"`

	// WatchTimeout closes result streams that never reach a terminal status
	WatchTimeout Duration `json:"watch_timeout" yaml:"watch_timeout" env:"DRSPLAN_RESULTS_WATCH_TIMEOUT"`

	// MaxStreams caps the results watched at once; 0 means no limit
	MaxStreams int `json:"max_streams" yaml:"max_streams" env:"DRSPLAN_RESULTS_MAX_STREAMS"`
}

// ExecutionsConfig contains execution record settings
type ExecutionsConfig struct {
	// Outbox is "memory" or "redis"
	Outbox string `json:"outbox" yaml:"outbox" env:"DRSPLAN_EXECUTIONS_OUTBOX"`

	// ReconcileSchedule is a cron spec for retrying unrecorded executions
	ReconcileSchedule string `json:"reconcile_schedule" yaml:"reconcile_schedule" env:"DRSPLAN_EXECUTIONS_RECONCILE_SCHEDULE"`
}

// CacheConfig contains Redis settings for the result cache and the outbox
type CacheConfig struct {
	// Enabled turns on caching of archived results
	Enabled bool `json:"enabled" yaml:"enabled" env:"DRSPLAN_CACHE_ENABLED"`

	// TTL of cached entries
	TTL Duration `json:"ttl" yaml:"ttl" env:"DRSPLAN_CACHE_TTL"`

	// Redis connection
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"DRSPLAN_REDIS_ADDR"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" env:"DRSPLAN_REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"DRSPLAN_REDIS_DB"`
}

// NotificationsConfig contains SNS settings
type NotificationsConfig struct {
	// OnStart publishes to the request's TopicARN when an execution starts
	OnStart bool `json:"on_start" yaml:"on_start" env:"DRSPLAN_NOTIFY_ON_START"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret enables HS256 bearer authentication when set
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" env:"DRSPLAN_JWT_SECRET"`

	// Issuer, when set, must match the token's iss claim
	Issuer string `json:"issuer" yaml:"issuer" env:"DRSPLAN_JWT_ISSUER"`
}

// ValidationConfig contains document validation settings
type ValidationConfig struct {
	// StrictApplications validates applications against the JSON schema before saving
	StrictApplications bool `json:"strict_applications" yaml:"strict_applications" env:"DRSPLAN_STRICT_APPLICATIONS"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"DRSPLAN_METRICS_ENABLED"`
	Namespace string `json:"namespace" yaml:"namespace" env:"DRSPLAN_METRICS_NAMESPACE"`
}

// LoadConfig loads the configuration from a JSON or YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides config values with the environment variables that are set
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Type: "memory",
			DynamoDB: DynamoDBConfig{
				TablePrefix: "drsplan_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "drsplan",
				User:     "drsplan",
				SSLMode:  "disable",
			},
			LevelDB: LevelDBConfig{
				Path: "./data/drsplan.db",
			},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Workflow: WorkflowConfig{
			Type: "memory",
		},
		Results: ResultsConfig{
			PollInterval: Duration(5 * time.Second),
			WatchTimeout: Duration(2 * time.Hour),
			MaxStreams:   1000,
		},
		Executions: ExecutionsConfig{
			Outbox:            "memory",
			ReconcileSchedule: "@every 30s",
		},
		Cache: CacheConfig{
			TTL: Duration(time.Hour),
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Logging: logging.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "drsplan",
		},
	}
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BasePath != "" && (!strings.HasPrefix(c.Server.BasePath, "/") || strings.HasSuffix(c.Server.BasePath, "/")) {
		return fmt.Errorf("server base_path must start with / and not end with /: %q", c.Server.BasePath)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS requires cert_file and key_file")
	}

	switch c.Storage.Type {
	case "memory", "dynamodb", "postgres", "postgresql":
	case "leveldb":
		if c.Storage.LevelDB.Path == "" {
			return fmt.Errorf("leveldb storage requires a path")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	switch c.Workflow.Type {
	case "memory":
	case "stepfunctions":
		if c.Workflow.StateMachineArn == "" {
			return fmt.Errorf("stepfunctions workflow requires state_machine_arn")
		}
	default:
		return fmt.Errorf("unknown workflow type: %s", c.Workflow.Type)
	}

	switch c.Executions.Outbox {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown execution outbox: %s", c.Executions.Outbox)
	}
	if c.Executions.ReconcileSchedule == "" {
		return fmt.Errorf("executions reconcile_schedule is required")
	}

	if c.Results.PollInterval <= 0 {
		return fmt.Errorf("results poll_interval must be positive")
	}
	if c.Results.MaxStreams < 0 {
		return fmt.Errorf("results max_streams must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
