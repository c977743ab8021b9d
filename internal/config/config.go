package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/harrier-trading/harrier/internal/analyzer"
	"github.com/harrier-trading/harrier/internal/evm"
	"github.com/harrier-trading/harrier/internal/executor"
	"github.com/harrier-trading/harrier/internal/pipeline"
)

// Config is the root configuration structure for Harrier.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Chain      ChainConfig      `yaml:"chain"`
	Trading    TradingConfig    `yaml:"trading"`
	Sell       SellConfig       `yaml:"sell"`
	Gas        GasConfig        `yaml:"gas"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Safety     SafetyConfig     `yaml:"safety"`
	Server     ServerConfig     `yaml:"server"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      *bool  `yaml:"dry_run"` // pointer so an omitted key defaults to true
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

// IsDryRun reports whether trading is simulated. Live trading requires an
// explicit `dry_run: false` in the config file.
func (g GeneralConfig) IsDryRun() bool {
	return g.DryRun == nil || *g.DryRun
}

type ChainConfig struct {
	Network        string      `yaml:"network"`
	RPCEndpoint    string      `yaml:"rpc_endpoint"`
	WSEndpoint     string      `yaml:"ws_endpoint"`
	FactoryAddress evm.Address `yaml:"factory_address"`
	BaseAsset      evm.Address `yaml:"base_asset"`
	TradeContract  evm.Address `yaml:"trade_contract"`
	WalletAddress  evm.Address `yaml:"wallet_address"`
	TimeoutS       int         `yaml:"timeout_s"`
	ConfirmWaitS   int         `yaml:"confirm_wait_s"`
}

type TradingConfig struct {
	DefaultAmount     float64 `yaml:"default_amount"` // base-asset units
	MaxAmount         float64 `yaml:"max_amount"`
	MinLiquidity      float64 `yaml:"min_liquidity"`
	MaxLiquidity      float64 `yaml:"max_liquidity"`
	DefaultSlippage   int     `yaml:"default_slippage_bps"`
	MaxTradesPerHour  int     `yaml:"max_trades_per_hour"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
	RiskMultiplier    float64 `yaml:"risk_multiplier"`
}

type SellConfig struct {
	DelayS        int     `yaml:"delay_s"`
	Percentage    int64   `yaml:"percentage"`
	SlippageBps   int     `yaml:"slippage_bps"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
}

type GasConfig struct {
	PremiumPct   int64  `yaml:"premium_pct"`
	Limit        uint64 `yaml:"limit"`
	MaxPriceGwei int64  `yaml:"max_price_gwei"`
}

type MonitoringConfig struct {
	TradeWindowS   int    `yaml:"trade_window_s"`
	PruneIntervalS int    `yaml:"prune_interval_s"`
	SaveIntervalS  int    `yaml:"save_interval_s"`
	LogIntervalS   int    `yaml:"log_interval_s"`
	CheckIntervalS int    `yaml:"check_interval_s"`
	StatePath      string `yaml:"state_path"`
}

type SafetyConfig struct {
	MaxDailyLoss           float64 `yaml:"max_daily_loss"` // base-asset units
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	MaxFailedTrades        int     `yaml:"max_failed_trades"`
	MinWalletBalance       float64 `yaml:"min_wallet_balance"`
	EmergencyStopLossPct   float64 `yaml:"emergency_stop_loss_pct"`
}

type ServerConfig struct {
	HTTPPort       int  `yaml:"http_port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a fully-defaulted config with no chain identity set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults treats zero values as unset. Fields where zero would be a
// meaningful operator choice (sell percentage, stop-loss) cannot be zeroed
// through YAML; they take the default instead.
func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "harrier-1"
	}
	if cfg.General.DryRun == nil {
		dryRun := true
		cfg.General.DryRun = &dryRun
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Chain.Network == "" {
		cfg.Chain.Network = "mainnet"
	}
	if cfg.Chain.TimeoutS == 0 {
		cfg.Chain.TimeoutS = 15
	}
	if cfg.Chain.ConfirmWaitS == 0 {
		cfg.Chain.ConfirmWaitS = 120
	}
	if cfg.Trading.DefaultAmount == 0 {
		cfg.Trading.DefaultAmount = 0.1
	}
	if cfg.Trading.MaxAmount == 0 {
		cfg.Trading.MaxAmount = 1.0
	}
	if cfg.Trading.MinLiquidity == 0 {
		cfg.Trading.MinLiquidity = 0.5
	}
	if cfg.Trading.MaxLiquidity == 0 {
		cfg.Trading.MaxLiquidity = 50
	}
	if cfg.Trading.DefaultSlippage == 0 {
		cfg.Trading.DefaultSlippage = 500
	}
	if cfg.Trading.MaxTradesPerHour == 0 {
		cfg.Trading.MaxTradesPerHour = 10
	}
	if cfg.Trading.MinScoreThreshold == 0 {
		cfg.Trading.MinScoreThreshold = 70
	}
	if cfg.Trading.RiskMultiplier == 0 {
		cfg.Trading.RiskMultiplier = 0.8
	}
	if cfg.Sell.DelayS == 0 {
		cfg.Sell.DelayS = 300
	}
	if cfg.Sell.Percentage == 0 {
		cfg.Sell.Percentage = 80
	}
	if cfg.Sell.SlippageBps == 0 {
		cfg.Sell.SlippageBps = 800
	}
	if cfg.Sell.StopLossPct == 0 {
		cfg.Sell.StopLossPct = -50
	}
	if cfg.Sell.TakeProfitPct == 0 {
		cfg.Sell.TakeProfitPct = 200
	}
	if cfg.Gas.PremiumPct == 0 {
		cfg.Gas.PremiumPct = 10
	}
	if cfg.Gas.Limit == 0 {
		cfg.Gas.Limit = 300_000
	}
	if cfg.Gas.MaxPriceGwei == 0 {
		cfg.Gas.MaxPriceGwei = 100
	}
	if cfg.Monitoring.TradeWindowS == 0 {
		cfg.Monitoring.TradeWindowS = 3600
	}
	if cfg.Monitoring.PruneIntervalS == 0 {
		cfg.Monitoring.PruneIntervalS = 3600
	}
	if cfg.Monitoring.SaveIntervalS == 0 {
		cfg.Monitoring.SaveIntervalS = 600
	}
	if cfg.Monitoring.LogIntervalS == 0 {
		cfg.Monitoring.LogIntervalS = 300
	}
	if cfg.Monitoring.CheckIntervalS == 0 {
		cfg.Monitoring.CheckIntervalS = 30
	}
	if cfg.Monitoring.StatePath == "" {
		cfg.Monitoring.StatePath = "harrier-state.json"
	}
	if cfg.Safety.MaxDailyLoss == 0 {
		cfg.Safety.MaxDailyLoss = 5.0
	}
	if cfg.Safety.MaxConsecutiveFailures == 0 {
		cfg.Safety.MaxConsecutiveFailures = 5
	}
	if cfg.Safety.MaxFailedTrades == 0 {
		cfg.Safety.MaxFailedTrades = 5
	}
	if cfg.Safety.MinWalletBalance == 0 {
		cfg.Safety.MinWalletBalance = 0.1
	}
	if cfg.Safety.EmergencyStopLossPct == 0 {
		cfg.Safety.EmergencyStopLossPct = -80
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
}

// Validate fails fast on missing chain identity. Called before the pipeline
// starts; a stub-backed run skips it.
func (c *Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return fmt.Errorf("config: chain.rpc_endpoint is required")
	}
	if c.Chain.WSEndpoint == "" {
		return fmt.Errorf("config: chain.ws_endpoint is required")
	}
	if c.Chain.FactoryAddress == "" {
		return fmt.Errorf("config: chain.factory_address is required")
	}
	if c.Chain.BaseAsset == "" {
		return fmt.Errorf("config: chain.base_asset is required")
	}
	if c.Chain.TradeContract == "" {
		return fmt.Errorf("config: chain.trade_contract is required")
	}
	if c.Chain.WalletAddress == "" {
		return fmt.Errorf("config: chain.wallet_address is required")
	}
	return nil
}

// --- Component config builders ---

// AnalyzerConfig maps the chain section onto the analyzer.
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{BaseAsset: c.Chain.BaseAsset}
}

// GateConfig maps the trading section onto the decision gate.
func (c *Config) GateConfig() analyzer.GateConfig {
	return analyzer.GateConfig{
		MinLiquidity:      c.Trading.MinLiquidity,
		MaxLiquidity:      c.Trading.MaxLiquidity,
		MinScoreThreshold: c.Trading.MinScoreThreshold,
		DefaultAmount:     decimal.NewFromFloat(c.Trading.DefaultAmount),
		MaxAmount:         decimal.NewFromFloat(c.Trading.MaxAmount),
		DefaultSlippage:   c.Trading.DefaultSlippage,
		RiskMultiplier:    c.Trading.RiskMultiplier,
	}
}

// ExecutorConfig maps the sell and gas sections onto the executor.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		WalletAddress:   c.Chain.WalletAddress,
		GasPremiumPct:   c.Gas.PremiumPct,
		GasLimit:        c.Gas.Limit,
		MaxGasPriceGwei: c.Gas.MaxPriceGwei,
		SellDelay:       time.Duration(c.Sell.DelayS) * time.Second,
		SellPercentage:  c.Sell.Percentage,
		SellSlippageBps: c.Sell.SlippageBps,
		StopLossPct:     c.Sell.StopLossPct,
		TakeProfitPct:   c.Sell.TakeProfitPct,
		DryRun:          c.General.IsDryRun(),
	}
}

// PipelineConfig maps the monitoring and safety sections onto the pipeline.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		BaseAsset:              c.Chain.BaseAsset,
		WalletAddress:          c.Chain.WalletAddress,
		StatePath:              c.Monitoring.StatePath,
		TradeWindow:            time.Duration(c.Monitoring.TradeWindowS) * time.Second,
		MaxTradesPerHour:       c.Trading.MaxTradesPerHour,
		PruneInterval:          time.Duration(c.Monitoring.PruneIntervalS) * time.Second,
		SaveInterval:           time.Duration(c.Monitoring.SaveIntervalS) * time.Second,
		LogInterval:            time.Duration(c.Monitoring.LogIntervalS) * time.Second,
		MonitorInterval:        time.Duration(c.Monitoring.CheckIntervalS) * time.Second,
		MinWalletBalance:       c.Safety.MinWalletBalance,
		MaxFailedTrades:        c.Safety.MaxFailedTrades,
		MaxConsecutiveFailures: c.Safety.MaxConsecutiveFailures,
		MaxDailyLoss:           c.Safety.MaxDailyLoss,
	}
}

// LiveConfig maps the chain section onto the live client.
func (c *Config) LiveConfig() evm.LiveConfig {
	return evm.LiveConfig{
		RPCEndpoint:    c.Chain.RPCEndpoint,
		WSEndpoint:     c.Chain.WSEndpoint,
		FactoryAddress: c.Chain.FactoryAddress,
		TradeContract:  c.Chain.TradeContract,
		WalletAddress:  c.Chain.WalletAddress,
		TimeoutS:       c.Chain.TimeoutS,
		ConfirmWaitS:   c.Chain.ConfirmWaitS,
	}
}
