// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	RandomnessBlock  = "block"
	RandomnessBeacon = "beacon"
)

// Config is the runtime configuration of the lottery node.
type Config struct {
	HTTPAddr string `env:"LOTTERY_HTTP_ADDR" envDefault:":8080"`
	// DBPath is the SQLite file holding the round; empty keeps it in memory.
	DBPath        string        `env:"LOTTERY_DB_PATH"`
	GasPrice      string        `env:"LOTTERY_GAS_PRICE" envDefault:"20000000000"`
	MinStake      string        `env:"LOTTERY_MIN_STAKE" envDefault:"1"`
	DevAccounts   int           `env:"LOTTERY_DEV_ACCOUNTS" envDefault:"10"`
	DevBalance    string        `env:"LOTTERY_DEV_BALANCE" envDefault:"100000000000000000000"`
	DevPhrase     string        `env:"LOTTERY_DEV_PHRASE" envDefault:"lottery development accounts"`
	Randomness    string        `env:"LOTTERY_RANDOMNESS" envDefault:"block"`
	AuditInterval time.Duration `env:"LOTTERY_AUDIT_INTERVAL" envDefault:"10m"`
	Verbose       bool          `env:"LOTTERY_VERBOSE" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	for name, value := range map[string]string{
		"LOTTERY_GAS_PRICE":   c.GasPrice,
		"LOTTERY_MIN_STAKE":   c.MinStake,
		"LOTTERY_DEV_BALANCE": c.DevBalance,
	} {
		if _, err := parseWei(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.DevAccounts < 1 {
		return fmt.Errorf("LOTTERY_DEV_ACCOUNTS: need at least one account, got %d", c.DevAccounts)
	}
	if c.Randomness != RandomnessBlock && c.Randomness != RandomnessBeacon {
		return fmt.Errorf("LOTTERY_RANDOMNESS: unknown source %q", c.Randomness)
	}
	if c.AuditInterval <= 0 {
		return fmt.Errorf("LOTTERY_AUDIT_INTERVAL: must be positive, got %s", c.AuditInterval)
	}
	return nil
}

func (c Config) GasPriceWei() *big.Int {
	v, _ := parseWei(c.GasPrice)
	return v
}

func (c Config) MinStakeWei() *big.Int {
	v, _ := parseWei(c.MinStake)
	return v
}

func (c Config) DevBalanceWei() *big.Int {
	v, _ := parseWei(c.DevBalance)
	return v
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q is negative", s)
	}
	return v, nil
}
