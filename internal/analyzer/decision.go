package analyzer

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Decision Gate — fixed-priority go/no-go over a scored report
// ---------------------------------------------------------------------------

// lowLiquiditySlippageBump widens slippage tolerance for thin pools, which
// move price further per trade.
const lowLiquiditySlippageBump = 200 // bps

// blacklistPatternCount is the red-flag count treated as a scam signal rather
// than merely a low score.
const blacklistPatternCount = 2

// GateConfig holds the decision thresholds.
type GateConfig struct {
	MinLiquidity      float64         `yaml:"min_liquidity"`
	MaxLiquidity      float64         `yaml:"max_liquidity"`
	MinScoreThreshold float64         `yaml:"min_score_threshold"`
	DefaultAmount     decimal.Decimal `yaml:"default_amount"` // base-asset units
	MaxAmount         decimal.Decimal `yaml:"max_amount"`     // base-asset units
	DefaultSlippage   int             `yaml:"default_slippage_bps"`
	RiskMultiplier    float64         `yaml:"risk_multiplier"`
}

// Decision is the gate's verdict for one candidate. TradeAmount is in
// base-asset units.
type Decision struct {
	Approved    bool            `json:"approved"`
	Confidence  float64         `json:"confidence"`
	Reason      string          `json:"reason,omitempty"`
	TradeAmount decimal.Decimal `json:"trade_amount"`
	SlippageBps int             `json:"slippage_bps"`
	Blacklist   bool            `json:"blacklist"`
}

// Decide maps a scored report to a verdict. Rules run in fixed priority
// order; the first match wins, so a report that is both illiquid and
// low-scoring always rejects on liquidity.
func Decide(r *Report, scores Scores, cfg GateConfig) Decision {
	d := Decision{
		TradeAmount: cfg.DefaultAmount,
		SlippageBps: cfg.DefaultSlippage,
	}

	if r.Err != "" {
		d.Reason = "analysis error"
		return d
	}

	liquidity := r.Liquidity.BaseAmount
	if liquidity < cfg.MinLiquidity {
		d.Reason = "insufficient liquidity"
		return d
	}
	if liquidity > cfg.MaxLiquidity {
		d.Reason = "liquidity too high"
		return d
	}

	if len(r.Contract.SuspiciousPatterns) >= blacklistPatternCount {
		d.Reason = "too many suspicious patterns"
		d.Blacklist = true
		return d
	}

	if scores.Percentage < cfg.MinScoreThreshold {
		d.Reason = fmt.Sprintf("score too low: %.1f%% < %.1f%%", scores.Percentage, cfg.MinScoreThreshold)
		return d
	}

	d.Approved = true
	d.Confidence = scores.Percentage

	// Size the trade by confidence, capped at the configured maximum.
	scaled := cfg.DefaultAmount.
		Mul(decimal.NewFromFloat(scores.Percentage / 100)).
		Mul(decimal.NewFromFloat(cfg.RiskMultiplier))
	if scaled.GreaterThan(cfg.MaxAmount) {
		scaled = cfg.MaxAmount
	}
	d.TradeAmount = scaled

	if liquidity < 1 {
		d.SlippageBps = cfg.DefaultSlippage + lowLiquiditySlippageBump
	}
	return d
}
