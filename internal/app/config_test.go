package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.SequenceMaxAttempts)
	require.EqualValues(t, 3, cfg.CurrencyPrecision)
	require.Equal(t, accountledger.PolicyRecompute, cfg.ReversalPolicy())
	require.Equal(t, 10*time.Minute, cfg.JobLockTTL)
	require.True(t, cfg.MigrationsEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCOUNT_REVERSAL_POLICY", "latest_only")
	t.Setenv("SEQUENCE_MAX_ATTEMPTS", "9")
	t.Setenv("CATALOG_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, accountledger.PolicyLatestOnly, cfg.ReversalPolicy())
	require.Equal(t, 9, cfg.SequenceMaxAttempts)
	require.Equal(t, 90*time.Second, cfg.CatalogCacheTTL)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			PGDSN:                 "postgres://localhost/ledger",
			SequenceMaxAttempts:   5,
			CurrencyPrecision:     3,
			AccountReversalPolicy: "recompute",
			JobLockTTL:            time.Minute,
		}
	}

	cases := map[string]func(*Config){
		"missing dsn":    func(c *Config) { c.PGDSN = "" },
		"zero attempts":  func(c *Config) { c.SequenceMaxAttempts = 0 },
		"precision":      func(c *Config) { c.CurrencyPrecision = 9 },
		"unknown policy": func(c *Config) { c.AccountReversalPolicy = "rewind" },
		"negative stock": func(c *Config) { c.CriticalStockLevel = -1 },
		"zero lock ttl":  func(c *Config) { c.JobLockTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
}
