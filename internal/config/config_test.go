package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
system:
  data_dir: /tmp/bot-data
  update_interval: 3s
venues:
  - name: binance
    api_key: ${TEST_BOT_API_KEY:fallback-key}
    api_secret: secret
    is_primary: true
strategies:
  - id: btc-grid
    symbol: BTC/USDT
    low_price: 100
    high_price: 200
    grid_number: 5
    investment: 1000
    risk_controls:
      max_price_deviation: 0.1
`

func TestLoadExpandsEnvWithDefault(t *testing.T) {
	os.Unsetenv("TEST_BOT_API_KEY")
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", cfg.Venues[0].APIKey)
}

func TestLoadExpandsEnvFromEnvironment(t *testing.T) {
	t.Setenv("TEST_BOT_API_KEY", "real-key")
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "real-key", cfg.Venues[0].APIKey)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.System.Storage)
	assert.Equal(t, 3*time.Second, cfg.System.UpdateInterval)
	assert.Equal(t, 30*time.Second, cfg.System.StatusInterval)
	assert.Equal(t, "info", cfg.System.Log.Level)
	assert.Equal(t, "console", cfg.System.Log.Output)
	assert.Equal(t, "limit", cfg.Strategies[0].OrderType)
	assert.True(t, cfg.Strategies[0].Risk.MaxPriceDeviation.Equal(decimal.RequireFromString("0.1")))
}

func TestLoadRejectsMissingVenues(t *testing.T) {
	_, err := Load(writeConfig(t, `
strategies:
  - id: s1
    symbol: BTC/USDT
    low_price: 100
    high_price: 200
    grid_number: 5
    investment: 1000
`))
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateStrategyIDs(t *testing.T) {
	_, err := Load(writeConfig(t, `
venues:
  - name: binance
strategies:
  - id: s1
    symbol: BTC/USDT
    low_price: 100
    high_price: 200
    grid_number: 5
    investment: 1000
  - id: s1
    symbol: ETH/USDT
    low_price: 10
    high_price: 20
    grid_number: 5
    investment: 100
`))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidGrid(t *testing.T) {
	_, err := Load(writeConfig(t, `
venues:
  - name: binance
strategies:
  - id: s1
    symbol: BTC/USDT
    low_price: 200
    high_price: 100
    grid_number: 5
    investment: 1000
`))
	assert.Error(t, err)
}
