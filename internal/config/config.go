package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	DocumentAI DocumentAIConfig `mapstructure:"documentai"`
	Paddle     PaddleConfig     `mapstructure:"paddle"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// DocumentAIConfig holds Google Document AI processor configuration
type DocumentAIConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	Location           string `mapstructure:"location"`
	InvoiceProcessorID string `mapstructure:"invoice_processor_id"`
	OCRProcessorID     string `mapstructure:"ocr_processor_id"`
	CredentialsFile    string `mapstructure:"credentials_file"`
}

// PaddleConfig holds billing webhook configuration
type PaddleConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	WebhookPath   string `mapstructure:"webhook_path"`
}

// StorageConfig holds upload storage configuration
type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
	ReportDir string `mapstructure:"report_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/fiscion.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Document AI defaults
	viper.SetDefault("documentai.location", "us")

	// Paddle defaults
	viper.SetDefault("paddle.webhook_path", "/webhooks/paddle")

	// Storage defaults
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.report_dir", "reports")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("documentai.project_id", "DOCAI_PROJECT_ID")
	viper.BindEnv("documentai.location", "DOCAI_LOCATION")
	viper.BindEnv("documentai.invoice_processor_id", "DOCAI_INVOICE_PROCESSOR_ID")
	viper.BindEnv("documentai.ocr_processor_id", "DOCAI_OCR_PROCESSOR_ID")
	viper.BindEnv("documentai.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	viper.BindEnv("paddle.webhook_secret", "PADDLE_WEBHOOK_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DocumentAI.ProjectID == "" {
		return fmt.Errorf("documentai.project_id is required")
	}
	if c.DocumentAI.InvoiceProcessorID == "" {
		return fmt.Errorf("documentai.invoice_processor_id is required")
	}

	if c.Paddle.WebhookSecret == "" {
		return fmt.Errorf("paddle.webhook_secret is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}

	return nil
}
