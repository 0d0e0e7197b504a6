package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drivekit/drivekit/internal/auth"
	"github.com/drivekit/drivekit/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for DriveKit
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Public base URL, used for signed and public download URLs
	PublicURL string `mapstructure:"public_url"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	// Storage configuration
	Storage storage.Config `mapstructure:"storage"`

	// Auth configuration
	Auth auth.Config `mapstructure:"auth"`

	// Signing configuration
	Signing SigningConfig `mapstructure:"signing"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SigningConfig bounds signed-URL issuance
type SigningConfig struct {
	// Key is the HMAC key for locally minted signed URLs
	Key string `mapstructure:"key"`

	DefaultExpirySeconds int64 `mapstructure:"default_expiry_seconds"`
	MaxExpirySeconds     int64 `mapstructure:"max_expiry_seconds"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load loads configuration from flags, config file and environment
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DRIVEKIT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("public_url", "http://localhost:8080")

	v.SetDefault("enable_tls", false)

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.root", "") // derived from data_dir when empty
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", true)

	v.SetDefault("auth.token_ttl_minutes", 1440)

	v.SetDefault("signing.default_expiry_seconds", 60)
	v.SetDefault("signing.max_expiry_seconds", 604800)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":     "listen",
		"data-dir":   "data_dir",
		"public-url": "public_url",
		"log-level":  "log_level",
		"enable-tls": "enable_tls",
		"cert-file":  "cert_file",
		"key-file":   "key_file",
	}

	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or DRIVEKIT_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "filesystem" {
		if cfg.Storage.Root == "" {
			cfg.Storage.Root = filepath.Join(cfg.DataDir, "objects")
		}
		if !filepath.IsAbs(cfg.Storage.Root) {
			if absRoot, err := filepath.Abs(cfg.Storage.Root); err == nil {
				cfg.Storage.Root = absRoot
			}
		}
		if err := os.MkdirAll(cfg.Storage.Root, 0755); err != nil {
			return fmt.Errorf("failed to create storage root: %w", err)
		}
	}

	if cfg.Storage.Backend == "s3" && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}

	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
		}
	}

	if cfg.Signing.DefaultExpirySeconds <= 0 {
		cfg.Signing.DefaultExpirySeconds = 60
	}
	if cfg.Signing.MaxExpirySeconds <= 0 {
		cfg.Signing.MaxExpirySeconds = 604800
	}

	// Generate secrets if not provided. These change across restarts, which
	// invalidates outstanding tokens and signed URLs; persistent deployments
	// should configure both explicitly.
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateRandomKey(32)
	}
	if cfg.Signing.Key == "" {
		cfg.Signing.Key = generateRandomKey(32)
	}

	return nil
}

func generateRandomKey(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
