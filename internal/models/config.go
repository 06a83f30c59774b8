package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root of the YAML configuration file.
type Config struct {
	System     SystemConfig     `yaml:"system"`
	Venues     []VenueConfig    `yaml:"venues"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// SystemConfig carries process-wide settings.
type SystemConfig struct {
	DataDir        string        `yaml:"data_dir"`
	Storage        string        `yaml:"storage"` // "file" or "badger"
	UpdateInterval time.Duration `yaml:"update_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
	Log            LogConfig     `yaml:"log"`
}

// LogConfig mirrors the logger setup: level, output target and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output     string `yaml:"output"` // "console", "file", "both"
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// VenueConfig configures one exchange connection.
type VenueConfig struct {
	Name         string `yaml:"name"` // "binance" or "binance_future"
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	AccountAlias string `yaml:"account_alias"`
	IsPrimary    bool   `yaml:"is_primary"`
	IsHedge      bool   `yaml:"is_hedge"`
	Testnet      bool   `yaml:"testnet"`
}

// RiskControls holds per-strategy alerting thresholds, expressed in percent.
type RiskControls struct {
	MaxPriceDeviation decimal.Decimal `yaml:"max_price_deviation"`
	StopLoss          decimal.Decimal `yaml:"stop_loss"`
}

// StrategyConfig configures one grid strategy.
type StrategyConfig struct {
	ID          string          `yaml:"id"`
	Symbol      string          `yaml:"symbol"`
	LowPrice    decimal.Decimal `yaml:"low_price"`
	HighPrice   decimal.Decimal `yaml:"high_price"`
	GridNumber  int             `yaml:"grid_number"`
	Investment  decimal.Decimal `yaml:"investment"`
	EnableHedge bool            `yaml:"enable_hedge"`
	OrderType   string          `yaml:"order_type"` // only "limit" is supported
	IsFuture    bool            `yaml:"is_future"`
	Risk        RiskControls    `yaml:"risk_controls"`
}

// Validate checks the fields the engine cannot start without.
func (c *StrategyConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("strategy id is required")
	}
	if c.Symbol == "" {
		return fmt.Errorf("strategy %s: symbol is required", c.ID)
	}
	if c.GridNumber < 2 {
		return fmt.Errorf("strategy %s: grid_number must be at least 2, got %d", c.ID, c.GridNumber)
	}
	if !c.HighPrice.GreaterThan(c.LowPrice) {
		return fmt.Errorf("strategy %s: high_price %s must exceed low_price %s",
			c.ID, c.HighPrice, c.LowPrice)
	}
	if !c.Investment.IsPositive() {
		return fmt.Errorf("strategy %s: investment must be positive, got %s", c.ID, c.Investment)
	}
	return nil
}
