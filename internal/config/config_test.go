package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Test defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if cfg.HTTPAddr != ":8080" || cfg.DevAccounts != 10 || cfg.Randomness != RandomnessBlock {
			t.Errorf("Expected default config, but got %+v", cfg)
		}
		if cfg.AuditInterval != 10*time.Minute {
			t.Errorf("Expected a 10m audit interval, but got %s", cfg.AuditInterval)
		}
		if cfg.GasPriceWei().String() != "20000000000" || cfg.MinStakeWei().String() != "1" {
			t.Errorf("Expected default wei values, but got %s and %s", cfg.GasPriceWei(), cfg.MinStakeWei())
		}
	})

	t.Run("Test overrides", func(t *testing.T) {
		t.Setenv("LOTTERY_HTTP_ADDR", "127.0.0.1:9000")
		t.Setenv("LOTTERY_DB_PATH", "/tmp/round.db")
		t.Setenv("LOTTERY_RANDOMNESS", "beacon")
		t.Setenv("LOTTERY_DEV_BALANCE", "5")
		t.Setenv("LOTTERY_AUDIT_INTERVAL", "30s")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.DBPath != "/tmp/round.db" || cfg.Randomness != RandomnessBeacon {
			t.Errorf("Expected overrides, but got %+v", cfg)
		}
		if cfg.DevBalanceWei().Int64() != 5 || cfg.AuditInterval != 30*time.Second {
			t.Errorf("Expected overrides, but got %+v", cfg)
		}
	})

	t.Run("Test invalid values", func(t *testing.T) {
		cases := map[string]string{
			"LOTTERY_GAS_PRICE":      "0.5",
			"LOTTERY_MIN_STAKE":      "-1",
			"LOTTERY_RANDOMNESS":     "dice",
			"LOTTERY_DEV_ACCOUNTS":   "0",
			"LOTTERY_AUDIT_INTERVAL": "soon",
		}
		for name, value := range cases {
			t.Run(name, func(t *testing.T) {
				t.Setenv(name, value)
				if _, err := Load(); err == nil {
					t.Fatalf("Expected an error for %s=%s, but got nil", name, value)
				}
			})
		}
	})
}
