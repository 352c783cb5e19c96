package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"lotteryledger/internal/chain"
	"lotteryledger/internal/config"
	"lotteryledger/internal/handlers"
	"lotteryledger/internal/services"
	"lotteryledger/internal/storage/sqlite"
)

func main() {
	// 1. Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	l := logger.Init("lottery", cfg.Verbose, false, io.Discard)

	err = run(cfg)
	l.Close()
	if err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx := context.Background()

	// 2. Pick the randomness source for settlements
	var source services.RandomnessSource = services.BlockRandomness{}
	if cfg.Randomness == config.RandomnessBeacon {
		beacon := services.NewBeacon()
		source = services.NewBeaconRandomness(beacon, beacon.PublicKey())
		logger.Infof("Settling with beacon key %s", beacon.PublicKey())
	}

	// 3. Start the dev chain and fund its accounts
	devChain := chain.New(chain.Config{
		GasPrice:   cfg.GasPriceWei(),
		Randomness: source,
		MinStake:   cfg.MinStakeWei(),
	})
	var deployer *chain.Key
	for i := 0; i < cfg.DevAccounts; i++ {
		key := chain.DevKey(cfg.DevPhrase, i)
		devChain.Fund(key.Address(), cfg.DevBalanceWei())
		logger.Infof("(%d) %s key %s", i, key.Address(), key.Hex())
		if i == 0 {
			deployer = key
		}
	}

	// 4. Open the round store
	var store services.Store = services.NewMemoryStore()
	if cfg.DBPath != "" {
		sqliteStore, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open round store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	// 5. Deploy the ledger from the first account
	ledgerAddr, receipt, err := chain.NewClient(devChain, deployer).Deploy(ctx, store)
	if err != nil {
		return fmt.Errorf("deploy ledger: %w", err)
	}
	if receipt.Status != 1 {
		return fmt.Errorf("ledger deployment reverted: %s", receipt.Error)
	}
	logger.Infof("Lottery ledger at %s, owner %s", ledgerAddr, deployer.Address())

	// 6. Set up the Gin router
	r := gin.Default()
	handlers.NewHTTPHandler(devChain).RegisterRoutes(r)

	// 7. Audit the custody invariant in the background
	go func() {
		for {
			time.Sleep(cfg.AuditInterval)
			if err := devChain.Audit(ctx, ledgerAddr); err != nil {
				logger.Errorf("Custody audit failed: %v", err)
				continue
			}
			logger.Infof("Custody audit passed for %s.", ledgerAddr)
		}
	}()

	// 8. Run the server
	logger.Infof("Server starting on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
