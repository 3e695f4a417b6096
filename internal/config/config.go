package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ducminhle1904/crypto-signal-trader/internal/agent"
	"github.com/ducminhle1904/crypto-signal-trader/internal/risk"
)

// Config is the full controller configuration, loaded from environment
// variables with an optional JSON file overlay.
type Config struct {
	Environment string `json:"environment"`
	Instance    string `json:"instance"`

	Exchange struct {
		Name      string `json:"name"` // "bybit" or "paper"
		APIKey    string `json:"-"`
		APISecret string `json:"-"`
		Category  string `json:"category"`
		Testnet   bool   `json:"testnet"`
		Demo      bool   `json:"demo"`
	} `json:"exchange"`

	Gate struct {
		DedupWindow        time.Duration `json:"-"`
		DedupWindowSec     int           `json:"dedup_window_sec"`
		MinPriceChangePct  float64       `json:"min_price_change_pct"`
		CooldownSec        int           `json:"cooldown_sec"`
		MaxOrdersPerSymbol int           `json:"max_orders_per_symbol"`
		MinConfidence      float64       `json:"min_confidence"`
	} `json:"gate"`

	Risk risk.Limits `json:"risk"`

	InitialBalance float64 `json:"initial_balance"`

	Monitoring struct {
		MetricsPort int `json:"metrics_port"`
		HealthPort  int `json:"health_port"`
	} `json:"monitoring"`

	JournalPath string `json:"journal_path"`
}

// Load builds the configuration from the environment, then overlays the
// JSON file named by CONFIG_FILE when set.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Environment = getEnv("ENV", "development")
	cfg.Instance = getEnv("INSTANCE_NAME", "trader")

	cfg.Exchange.Name = getEnv("EXCHANGE_NAME", "paper")
	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", "")
	cfg.Exchange.Category = getEnv("EXCHANGE_CATEGORY", "spot")
	cfg.Exchange.Testnet = getEnvBool("EXCHANGE_TESTNET", true)
	cfg.Exchange.Demo = getEnvBool("EXCHANGE_DEMO", false)

	cfg.Gate.DedupWindowSec = getEnvInt("DEDUP_WINDOW_SEC", 60)
	cfg.Gate.MinPriceChangePct = getEnvFloat("MIN_PRICE_CHANGE_PCT", 0.1)
	cfg.Gate.CooldownSec = getEnvInt("TRADE_COOLDOWN_SEC", 300)
	cfg.Gate.MaxOrdersPerSymbol = getEnvInt("MAX_ORDERS_PER_SYMBOL", 2)
	cfg.Gate.MinConfidence = getEnvFloat("MIN_CONFIDENCE", 0.60)

	cfg.Risk = risk.DefaultLimits()
	cfg.Risk.MaxPositionSize = getEnvFloat("MAX_POSITION_SIZE", cfg.Risk.MaxPositionSize)
	cfg.Risk.MaxDailyDrawdown = getEnvFloat("MAX_DAILY_DRAWDOWN", cfg.Risk.MaxDailyDrawdown)
	cfg.Risk.MaxTotalDrawdown = getEnvFloat("MAX_TOTAL_DRAWDOWN", cfg.Risk.MaxTotalDrawdown)
	cfg.Risk.MaxCorrelation = getEnvFloat("MAX_CORRELATION", cfg.Risk.MaxCorrelation)
	cfg.Risk.MaxTradesPerDay = getEnvInt("MAX_TRADES_PER_DAY", cfg.Risk.MaxTradesPerDay)
	cfg.Risk.KellyFraction = getEnvFloat("KELLY_FRACTION", cfg.Risk.KellyFraction)
	cfg.Risk.MinConfidence = getEnvFloat("RISK_MIN_CONFIDENCE", cfg.Risk.MinConfidence)
	cfg.Risk.BaseTradeSize = getEnvFloat("BASE_TRADE_SIZE", 0)

	cfg.InitialBalance = getEnvFloat("INITIAL_BALANCE", 10000)

	cfg.Monitoring.MetricsPort = getEnvInt("METRICS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.JournalPath = getEnv("JOURNAL_PATH", "reports/order_journal.xlsx")

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		if err := cfg.overlayFile(file); err != nil {
			return nil, err
		}
	}

	cfg.Gate.DedupWindow = time.Duration(cfg.Gate.DedupWindowSec) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GateConfig converts the gate section into the agent's config type.
func (c *Config) GateConfig() agent.Config {
	return agent.Config{
		DedupWindow:        c.Gate.DedupWindow,
		MinPriceChangePct:  c.Gate.MinPriceChangePct,
		Cooldown:           time.Duration(c.Gate.CooldownSec) * time.Second,
		MaxOrdersPerSymbol: c.Gate.MaxOrdersPerSymbol,
		MinConfidence:      c.Gate.MinConfidence,
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %v", c.InitialBalance)
	}
	if c.Gate.MaxOrdersPerSymbol <= 0 {
		return fmt.Errorf("max orders per symbol must be positive, got %d", c.Gate.MaxOrdersPerSymbol)
	}
	if c.Exchange.Name != "paper" && c.Exchange.APIKey == "" {
		return fmt.Errorf("exchange %q requires EXCHANGE_API_KEY", c.Exchange.Name)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}
