package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lotteryledger/internal/config"
	"lotteryledger/internal/models"
	"lotteryledger/internal/storage/sqlite"
)

func testConfig(dbPath string) config.Config {
	return config.Config{
		HTTPAddr:      "127.0.0.1:0",
		DBPath:        dbPath,
		GasPrice:      "1",
		MinStake:      "1",
		DevAccounts:   1,
		DevBalance:    "1000000000000000000",
		DevPhrase:     "run test accounts",
		Randomness:    config.RandomnessBlock,
		AuditInterval: time.Minute,
	}
}

func TestRun(t *testing.T) {
	t.Run("Test unopenable store is returned as an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "round.db")
		err := run(testConfig(path))
		if err == nil || !strings.Contains(err.Error(), "open round store") {
			t.Fatalf("Expected an open round store error, but got %v", err)
		}
	})

	t.Run("Test reverted deploy closes the store", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "round.db")
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		if err := store.SetOwner(ctx, models.Address{0xaa}); err != nil {
			t.Fatalf("set owner: %v", err)
		}
		store.Close()

		err = run(testConfig(path))
		if err == nil || !strings.Contains(err.Error(), "reverted") {
			t.Fatalf("Expected a reverted deployment error, but got %v", err)
		}

		reopened, err := sqlite.Open(ctx, path)
		if err != nil {
			t.Fatalf("Expected the store to be reopenable, but got %v", err)
		}
		defer reopened.Close()
		owner, ok, err := reopened.Owner(ctx)
		if err != nil || !ok || owner != (models.Address{0xaa}) {
			t.Errorf("Expected the stored owner untouched, but got %s %v %v", owner, ok, err)
		}
	})
}
