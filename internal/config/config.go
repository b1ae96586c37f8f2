package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Default values
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultAckTimeout     = 5 * time.Second
	DefaultRetention      = 90 * 24 * time.Hour
	DefaultReaperInterval = time.Hour

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the dealer document server
type Config struct {
	// Server configuration
	Host string
	Port int

	// Storage configuration
	DatabasePath string
	GCSBucket    string

	// Preview sync configuration
	AckTimeout time.Duration

	// Signature retention configuration
	Retention      time.Duration
	ReaperInterval time.Duration

	// Application configuration
	Version  string
	LogLevel string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	dbPath, err := defaultDatabasePath()
	if err != nil {
		// Fallback to the working directory if the user config dir is unknown
		dbPath = filepath.Join(".", "dealerdocs.db")
	}

	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		DatabasePath:   dbPath,
		GCSBucket:      "",
		AckTimeout:     DefaultAckTimeout,
		Retention:      DefaultRetention,
		ReaperInterval: DefaultReaperInterval,
		Version:        "1.0.0",
		LogLevel:       DefaultLogLevel,
	}
}

func defaultDatabasePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dealerdocs", "dealerdocs.db"), nil
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.DatabasePath != "" {
		if expandedPath, err := filepath.Abs(cfg.DatabasePath); err == nil {
			cfg.DatabasePath = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("DEALERDOCS")
	viper.AutomaticEnv()

	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("db", cfg.DatabasePath)
	viper.SetDefault("bucket", cfg.GCSBucket)
	viper.SetDefault("acktimeout", cfg.AckTimeout)
	viper.SetDefault("retention", cfg.Retention)
	viper.SetDefault("reaperinterval", cfg.ReaperInterval)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("host", cfg.Host, "Server host address")
	pflag.Int("port", cfg.Port, "Server port")
	pflag.String("db", cfg.DatabasePath, "Path to the SQLite database file")
	pflag.String("bucket", cfg.GCSBucket, "Cloud Storage bucket for documents and signatures")
	pflag.Duration("acktimeout", cfg.AckTimeout, "Preview sync acknowledgement timeout")
	pflag.Duration("retention", cfg.Retention, "Retention horizon for ephemeral signature display copies")
	pflag.Duration("reaperinterval", cfg.ReaperInterval, "Interval between signature retention sweeps")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("host", pflag.Lookup("host"))
	_ = viper.BindPFlag("port", pflag.Lookup("port"))
	_ = viper.BindPFlag("db", pflag.Lookup("db"))
	_ = viper.BindPFlag("bucket", pflag.Lookup("bucket"))
	_ = viper.BindPFlag("acktimeout", pflag.Lookup("acktimeout"))
	_ = viper.BindPFlag("retention", pflag.Lookup("retention"))
	_ = viper.BindPFlag("reaperinterval", pflag.Lookup("reaperinterval"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nDealerdocs - dealership document generation and signature server\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                     # defaults, local database\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --bucket=dealer-docs-prod           # with cloud storage\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --host=0.0.0.0 --port=8081          # listen on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_HOST            Server host\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_PORT            Server port\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_DB              SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_BUCKET          Cloud Storage bucket\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_ACKTIMEOUT      Preview ack timeout\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_RETENTION       Display copy retention horizon\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_REAPERINTERVAL  Retention sweep interval\n")
		fmt.Fprintf(os.Stderr, "  DEALERDOCS_LOGLEVEL        Log level\n")
	}
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DatabasePath = viper.GetString("db")
	cfg.GCSBucket = viper.GetString("bucket")
	cfg.AckTimeout = viper.GetDuration("acktimeout")
	cfg.Retention = viper.GetDuration("retention")
	cfg.ReaperInterval = viper.GetDuration("reaperinterval")
	cfg.LogLevel = viper.GetString("loglevel")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}

	// Ensure the database's parent directory exists
	dir := filepath.Dir(c.DatabasePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access database directory %s: %w", dir, err)
	}

	if c.AckTimeout <= 0 {
		return errors.New("ack timeout must be positive")
	}
	if c.Retention <= 0 {
		return errors.New("retention horizon must be positive")
	}
	if c.ReaperInterval <= 0 {
		return errors.New("reaper interval must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Host: %s, Port: %d, DatabasePath: %s, GCSBucket: %s, LogLevel: %s}",
		c.Host, c.Port, c.DatabasePath, c.GCSBucket, c.LogLevel)
}
