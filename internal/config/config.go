// Package config loads the immutable service configuration from the
// environment. Every component receives the values it needs at construction
// time; nothing reads the environment after startup.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all facilitator settings.
type Config struct {
	Port string

	// Chain access.
	RPCURL  string
	ChainID int64

	// Contract surface.
	TokenAddress      string // reward token with the distribute entry point
	StablecoinAddress string // EIP-3009 stablecoin accepted as payment
	Treasury          string // address that must receive payment
	DistributorKey    string // hex private key paying gas for distributions

	// Payment terms.
	MintUnit *big.Int // required payment in smallest stablecoin units

	// EIP-712 domain of the stablecoin.
	StablecoinName    string
	StablecoinVersion string

	// Authorization time-window policy.
	AuthWindow time.Duration // max validBefore-validAfter span accepted
	ClockDrift time.Duration // tolerance applied to both window bounds

	// Replay store.
	RedisURL  string        // empty selects the in-process fallback
	RecordTTL time.Duration // retention for replay records

	// HTTP throttling.
	RateLimitEnabled bool
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", "3001"),
		RPCURL:            os.Getenv("RPC_URL_BASE"),
		TokenAddress:      os.Getenv("TOKEN_ADDRESS"),
		StablecoinAddress: os.Getenv("USDC_ADDRESS"),
		Treasury:          os.Getenv("TREASURY_ADDRESS"),
		DistributorKey:    os.Getenv("DISTRIBUTOR_PRIVATE_KEY"),
		StablecoinName:    envOr("USDC_NAME", "USD Coin"),
		StablecoinVersion: envOr("USDC_VERSION", "2"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RateLimitEnabled:  envOr("ENABLE_RATE_LIMIT", "true") != "false",
	}

	if cfg.RPCURL == "" || cfg.TokenAddress == "" || cfg.StablecoinAddress == "" ||
		cfg.Treasury == "" || cfg.DistributorKey == "" {
		return nil, fmt.Errorf("missing required env vars (RPC_URL_BASE, TOKEN_ADDRESS, USDC_ADDRESS, TREASURY_ADDRESS, DISTRIBUTOR_PRIVATE_KEY)")
	}
	for _, addr := range []string{cfg.TokenAddress, cfg.StablecoinAddress, cfg.Treasury} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address: %s", addr)
		}
	}

	chainID, err := envInt("CHAIN_ID", 8453)
	if err != nil {
		return nil, err
	}
	cfg.ChainID = chainID

	mintUnit, ok := new(big.Int).SetString(envOr("MINT_USDC_6", "1000000"), 10)
	if !ok || mintUnit.Sign() <= 0 {
		return nil, fmt.Errorf("invalid MINT_USDC_6")
	}
	cfg.MintUnit = mintUnit

	windowSecs, err := envInt("AUTH_WINDOW_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	cfg.AuthWindow = time.Duration(windowSecs) * time.Second

	driftSecs, err := envInt("CLOCK_DRIFT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ClockDrift = time.Duration(driftSecs) * time.Second

	ttlHours, err := envInt("RECORD_TTL_HOURS", 30*24)
	if err != nil {
		return nil, err
	}
	cfg.RecordTTL = time.Duration(ttlHours) * time.Hour

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
