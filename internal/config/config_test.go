package config

import (
	"testing"
	"time"
)

// Native asset contract on pubnet; any well-formed C... strkey works here.
const validContract = "CAS3J7GYLGXMF6TDJBBYYSE3HQ6BBSMLNUQ34T6TZMYMW2EVH34XOWMA"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONTRACT_ID", validContract)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d; want 8080", cfg.Port)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %s; want testnet", cfg.Network)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v; want 5s", cfg.PollInterval)
	}
	if cfg.MaxBatchSize != 100 {
		t.Errorf("MaxBatchSize = %d; want 100", cfg.MaxBatchSize)
	}
	if cfg.BackoffInitial != 2*time.Second || cfg.BackoffMax != 60*time.Second {
		t.Errorf("Backoff = %v/%v; want 2s/60s", cfg.BackoffInitial, cfg.BackoffMax)
	}
	if cfg.StartLedger != 0 {
		t.Errorf("StartLedger = %d; want 0", cfg.StartLedger)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONTRACT_ID", validContract)
	t.Setenv("PORT", "3001")
	t.Setenv("STELLAR_NETWORK", "pubnet")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("MAX_BATCH_SIZE", "250")
	t.Setenv("START_LEDGER", "123456")
	t.Setenv("FETCH_TIMEOUT", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Port = %d; want 3001", cfg.Port)
	}
	if cfg.Network != "pubnet" {
		t.Errorf("Network = %s; want pubnet", cfg.Network)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v; want 10s", cfg.PollInterval)
	}
	if cfg.MaxBatchSize != 250 {
		t.Errorf("MaxBatchSize = %d; want 250", cfg.MaxBatchSize)
	}
	if cfg.StartLedger != 123456 {
		t.Errorf("StartLedger = %d; want 123456", cfg.StartLedger)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v; want 15s", cfg.FetchTimeout)
	}
}

func TestLoad_MissingContractID(t *testing.T) {
	t.Setenv("CONTRACT_ID", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded without CONTRACT_ID; want error")
	}
}

func TestLoad_InvalidContractID(t *testing.T) {
	t.Setenv("CONTRACT_ID", "GNOTACONTRACT")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a non-contract strkey; want error")
	}
}

func TestStellarRPCURL_Presets(t *testing.T) {
	tests := []struct {
		network string
		rpcURL  string
		want    string
	}{
		{"testnet", "", "https://soroban-testnet.stellar.org"},
		{"futurenet", "", "https://rpc-futurenet.stellar.org"},
		{"pubnet", "", "https://soroban-rpc.mainnet.stellar.gateway.fm"},
		{"testnet", "http://localhost:8000", "http://localhost:8000"},
	}

	for _, tc := range tests {
		cfg := &Config{Network: tc.network, RPCURL: tc.rpcURL}
		if got := cfg.StellarRPCURL(); got != tc.want {
			t.Errorf("StellarRPCURL(%s, %q) = %s; want %s", tc.network, tc.rpcURL, got, tc.want)
		}
	}
}
