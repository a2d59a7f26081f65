package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/stellar/go/strkey"
)

type Config struct {
	Port         int
	DatabasePath string
	ContractID   string // PIFP contract address (C... strkey)
	Network      string // testnet, futurenet, pubnet
	RPCURL       string // Soroban RPC URL (overrides network preset)
	StartLedger  uint32 // effective genesis when no cursor is saved
	LogLevel     string

	// Pipeline pacing and resilience. No effect on stored data.
	PollInterval   time.Duration
	MaxBatchSize   int
	FetchTimeout   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		DatabasePath:   getEnv("DATABASE_PATH", "./pifp_events.db"),
		ContractID:     getEnv("CONTRACT_ID", ""),
		Network:        getEnv("STELLAR_NETWORK", "testnet"),
		RPCURL:         getEnv("STELLAR_RPC_URL", ""),
		StartLedger:    uint32(getEnvInt("START_LEDGER", 0)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 5*time.Second),
		MaxBatchSize:   getEnvInt("MAX_BATCH_SIZE", 100),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		BackoffInitial: getEnvDuration("BACKOFF_INITIAL", 2*time.Second),
		BackoffMax:     getEnvDuration("BACKOFF_MAX", 60*time.Second),
	}

	if cfg.ContractID == "" {
		return nil, fmt.Errorf("CONTRACT_ID environment variable is required")
	}
	if _, err := strkey.Decode(strkey.VersionByteContract, cfg.ContractID); err != nil {
		return nil, fmt.Errorf("CONTRACT_ID is not a valid contract address: %w", err)
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// StellarRPCURL returns the configured RPC endpoint, falling back to the
// network preset.
func (c *Config) StellarRPCURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	switch c.Network {
	case "futurenet":
		return "https://rpc-futurenet.stellar.org"
	case "pubnet":
		return "https://soroban-rpc.mainnet.stellar.gateway.fm"
	default:
		return "https://soroban-testnet.stellar.org"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
