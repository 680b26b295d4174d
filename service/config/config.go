package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup to ensure
// fail-fast behavior. Values are read-only after Load.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration
	NATSURL string

	// Ledger configuration. SolanaRPCURL and TreasuryKey are optional:
	// when either is missing the engine runs without a real ledger and
	// every settlement uses the synthetic fallback.
	SolanaRPCURL  string
	TreasuryKey   string // base58-encoded private key of the treasury wallet
	LedgerTimeout time.Duration

	// Payment configuration
	MerchantAddress      string
	DiscountRate         float64
	CreditLimitCents     int64
	TreasuryOpeningCents int64
	LamportsPerCent      int64
	CompletionDelay      time.Duration
	FailOnLedgerError    bool
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Ledger configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	cfg.TreasuryKey = os.Getenv("TREASURY_KEY")
	if cfg.TreasuryKey != "" && cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required when TREASURY_KEY is set"))
	}

	ledgerTimeout, err := parseDuration("LEDGER_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LedgerTimeout = ledgerTimeout
	}

	// Payment configuration
	cfg.MerchantAddress = os.Getenv("MERCHANT_ADDRESS")
	if cfg.MerchantAddress == "" {
		errs = append(errs, fmt.Errorf("MERCHANT_ADDRESS is required"))
	}

	discountRate, err := parseFloat("DISCOUNT_RATE", 0.03)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DiscountRate = discountRate
	}

	creditLimit, err := parseInt64("CREDIT_LIMIT_CENTS", 50_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CreditLimitCents = creditLimit
	}

	treasuryOpening, err := parseInt64("TREASURY_OPENING_CENTS", 5_000_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TreasuryOpeningCents = treasuryOpening
	}

	lamportsPerCent, err := parseInt64("LAMPORTS_PER_CENT", 10_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.LamportsPerCent = lamportsPerCent
	}

	completionDelay, err := parseDuration("COMPLETION_DELAY", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CompletionDelay = completionDelay
	}

	cfg.FailOnLedgerError = os.Getenv("FAIL_ON_LEDGER_ERROR") == "true"

	// Validate ranges
	if cfg.DiscountRate < 0 || cfg.DiscountRate >= 1 {
		errs = append(errs, fmt.Errorf("DISCOUNT_RATE must be in [0, 1), got %v", cfg.DiscountRate))
	}
	if cfg.CreditLimitCents <= 0 {
		errs = append(errs, fmt.Errorf("CREDIT_LIMIT_CENTS must be positive, got %d", cfg.CreditLimitCents))
	}
	if cfg.TreasuryOpeningCents < 0 {
		errs = append(errs, fmt.Errorf("TREASURY_OPENING_CENTS cannot be negative, got %d", cfg.TreasuryOpeningCents))
	}
	if cfg.LamportsPerCent <= 0 {
		errs = append(errs, fmt.Errorf("LAMPORTS_PER_CENT must be positive, got %d", cfg.LamportsPerCent))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful for
// server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// LedgerEnabled reports whether enough configuration is present to submit
// real transfers.
func (c *Config) LedgerEnabled() bool {
	return c.SolanaRPCURL != "" && c.TreasuryKey != ""
}

// Validate checks if the configuration is valid. This is useful for
// testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.MerchantAddress == "" {
		errs = append(errs, fmt.Errorf("MerchantAddress is required"))
	}
	if c.DiscountRate < 0 || c.DiscountRate >= 1 {
		errs = append(errs, fmt.Errorf("DiscountRate must be in [0, 1)"))
	}
	if c.CreditLimitCents <= 0 {
		errs = append(errs, fmt.Errorf("CreditLimitCents must be positive"))
	}
	if c.TreasuryOpeningCents < 0 {
		errs = append(errs, fmt.Errorf("TreasuryOpeningCents cannot be negative"))
	}
	if c.LamportsPerCent <= 0 {
		errs = append(errs, fmt.Errorf("LamportsPerCent must be positive"))
	}
	if c.TreasuryKey != "" && c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required when TreasuryKey is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseInt64 parses an integer from an environment variable or uses a default.
func parseInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
