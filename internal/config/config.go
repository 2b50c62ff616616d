// Package config provides configuration management for the storefront backend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Payment record policies
const (
	// RecordPolicyBestEffort logs bookkeeping failures after a successful payment
	RecordPolicyBestEffort = "best_effort"
	// RecordPolicyStrict returns bookkeeping failures to the caller
	RecordPolicyStrict = "strict"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig        `envPrefix:"SERVER_"`
	Stripe    StripeConfig        `envPrefix:"STRIPE_"`
	Privy     PrivyConfig         `envPrefix:"PRIVY_"`
	KV        KVConfig            `envPrefix:"KV_"`
	Chains    ChainsConfig
	Payments  PaymentsConfig      `envPrefix:"PAYMENT_"`
	RateLimit RateLimitConfig     `envPrefix:"RATE_LIMIT_"`
	Logging   LoggingConfig       `envPrefix:"LOG_"`
	Storage   ObjectStorageConfig `envPrefix:"MINIO_"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
}

// StripeConfig holds card-payment collaborator keys
type StripeConfig struct {
	SecretKey      string `env:"SECRET_KEY,required,notEmpty"`
	PublishableKey string `env:"PUBLISHABLE_KEY,required,notEmpty"`
}

// PrivyConfig holds identity provider configuration
type PrivyConfig struct {
	AppID           string `env:"APP_ID,required,notEmpty"`
	AppSecret       string `env:"APP_SECRET"`
	VerificationKey string `env:"VERIFICATION_KEY"`
	APIBaseURL      string `env:"API_BASE_URL" envDefault:"https://auth.privy.io"`
}

// KVConfig holds the key-value store connection
type KVConfig struct {
	URL       string `env:"URL,required,notEmpty"`
	Token     string `env:"TOKEN,required,notEmpty"`
	KeyPrefix string `env:"KEY_PREFIX"`
	PoolSize  int    `env:"POOL_SIZE" envDefault:"10"`
	// ScanFallback keeps the full-keyspace scan for records the account index has not seen
	ScanFallback bool `env:"SCAN_FALLBACK" envDefault:"true"`
}

// ChainsConfig holds chain access configuration
type ChainsConfig struct {
	AlchemyAPIKey string `env:"ALCHEMY_API_KEY"`
	// LocalRPCURL overrides the local test network endpoint
	LocalRPCURL string `env:"LOCAL_RPC_URL" envDefault:"http://localhost:8545"`
}

// PaymentsConfig holds payment bookkeeping configuration
type PaymentsConfig struct {
	RecordPolicy string `env:"RECORD_POLICY" envDefault:"best_effort"`
}

// RateLimitConfig holds per-tier request rates (requests per second)
type RateLimitConfig struct {
	FreeTier int `env:"FREE_TIER" envDefault:"10"`
	PaidTier int `env:"PAID_TIER" envDefault:"50"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// ObjectStorageConfig holds the optional product download bucket
type ObjectStorageConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"storefront-downloads"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Enabled reports whether object storage was configured
func (c ObjectStorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ToolConfig is the subset of configuration the operator tools need
type ToolConfig struct {
	KV       KVConfig `envPrefix:"KV_"`
	Chains   ChainsConfig
	Payments PaymentsConfig `envPrefix:"PAYMENT_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

// StrictRecording reports whether bookkeeping failures must reach the caller
func (c *ToolConfig) StrictRecording() bool {
	return strings.EqualFold(strings.TrimSpace(c.Payments.RecordPolicy), RecordPolicyStrict)
}

func loadDotEnv() error {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return nil
}

// LoadConfig loads configuration from .env file and environment variables.
// Missing required values are reported together.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	return Parse()
}

// LoadToolConfig loads the record store and chain settings without requiring
// the payment or identity provider keys.
func LoadToolConfig() (*ToolConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &ToolConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Parse reads configuration from the process environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that struct tags cannot express
func (c *Config) Validate() error {
	policy := strings.ToLower(strings.TrimSpace(c.Payments.RecordPolicy))
	switch policy {
	case RecordPolicyBestEffort, RecordPolicyStrict:
		c.Payments.RecordPolicy = policy
	default:
		return fmt.Errorf("invalid PAYMENT_RECORD_POLICY %q (must be %q or %q)",
			c.Payments.RecordPolicy, RecordPolicyBestEffort, RecordPolicyStrict)
	}

	if c.RateLimit.FreeTier <= 0 || c.RateLimit.PaidTier <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	return nil
}

// StrictRecording reports whether bookkeeping failures must reach the caller
func (c *Config) StrictRecording() bool {
	return c.Payments.RecordPolicy == RecordPolicyStrict
}
