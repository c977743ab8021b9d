package analyzer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestGateConfig() GateConfig {
	return GateConfig{
		MinLiquidity:      0.5,
		MaxLiquidity:      50,
		MinScoreThreshold: 70,
		DefaultAmount:     decimal.NewFromFloat(0.1),
		MaxAmount:         decimal.NewFromFloat(1.0),
		DefaultSlippage:   500,
		RiskMultiplier:    0.8,
	}
}

func TestDecide_CleanTokenApproved(t *testing.T) {
	r := newCleanReport()
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.True(t, d.Approved)
	assert.Equal(t, s.Percentage, d.Confidence)
	assert.False(t, d.Blacklist)
}

func TestDecide_AnalysisErrorRejects(t *testing.T) {
	r := newCleanReport()
	r.Err = "rpc down"
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Approved)
	assert.Equal(t, "analysis error", d.Reason)
}

func TestDecide_PriorityOrder(t *testing.T) {
	// Illiquid AND low-scoring must reject on liquidity, never on score.
	r := newCleanReport()
	r.Liquidity.BaseAmount = 0.1
	r.Ownership = OwnershipInfo{HasOwnerFn: true, Owner: "0xdead"}
	r.Timing.HighGas = true
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Approved)
	assert.Equal(t, "insufficient liquidity", d.Reason)
}

func TestDecide_LiquidityTooHigh(t *testing.T) {
	r := newCleanReport()
	r.Liquidity.BaseAmount = 60
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Approved)
	assert.Equal(t, "liquidity too high", d.Reason)
}

func TestDecide_LiquidityBoundsInclusive(t *testing.T) {
	cfg := newTestGateConfig()

	r := newCleanReport()
	r.Liquidity.BaseAmount = 0.5
	d := Decide(r, ComputeScores(r, newTestScoreContext()), cfg)
	assert.NotEqual(t, "insufficient liquidity", d.Reason)

	r.Liquidity.BaseAmount = 50
	d = Decide(r, ComputeScores(r, newTestScoreContext()), cfg)
	assert.NotEqual(t, "liquidity too high", d.Reason)
}

func TestDecide_SuspiciousPatternsBlacklist(t *testing.T) {
	// Two red flags reject and blacklist even with perfect liquidity.
	r := newCleanReport()
	r.Contract.SuspiciousPatterns = []string{PatternSelfDestruct, PatternMinimalCode}
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Approved)
	assert.True(t, d.Blacklist)
	assert.Equal(t, "too many suspicious patterns", d.Reason)
}

func TestDecide_SinglePatternIsNotScamSignal(t *testing.T) {
	r := newCleanReport()
	r.Contract.SuspiciousPatterns = []string{PatternMinimalCode}
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Blacklist)
}

func TestDecide_ScoreTooLow(t *testing.T) {
	r := newCleanReport()
	r.Ownership = OwnershipInfo{HasOwnerFn: true, Owner: "0xdead"}
	r.Timing.HighGas = true
	r.Contract.SuspiciousPatterns = []string{PatternMinimalCode}
	s := ComputeScores(r, newTestScoreContext())

	d := Decide(r, s, newTestGateConfig())

	assert.False(t, d.Approved)
	assert.False(t, d.Blacklist)
	assert.Contains(t, d.Reason, "score too low")
}

func TestDecide_TradeAmountScaledByConfidence(t *testing.T) {
	r := newCleanReport()
	r.Liquidity.BaseAmount = 2.0
	s := ComputeScores(r, newTestScoreContext())
	cfg := newTestGateConfig()

	d := Decide(r, s, cfg)

	// amount = 0.1 * (pct/100) * 0.8, well under the 1.0 cap.
	expected := cfg.DefaultAmount.
		Mul(decimal.NewFromFloat(s.Percentage / 100)).
		Mul(decimal.NewFromFloat(cfg.RiskMultiplier))
	assert.True(t, d.TradeAmount.Equal(expected), "got %s want %s", d.TradeAmount, expected)
}

func TestDecide_TradeAmountCapped(t *testing.T) {
	r := newCleanReport()
	r.Liquidity.BaseAmount = 2.0
	s := ComputeScores(r, newTestScoreContext())
	cfg := newTestGateConfig()
	cfg.MaxAmount = decimal.NewFromFloat(0.05)

	d := Decide(r, s, cfg)

	assert.True(t, d.TradeAmount.Equal(cfg.MaxAmount))
}

func TestDecide_ThinPoolWidensSlippage(t *testing.T) {
	cfg := newTestGateConfig()

	r := newCleanReport()
	r.Liquidity.BaseAmount = 0.8
	d := Decide(r, ComputeScores(r, newTestScoreContext()), cfg)
	assert.True(t, d.Approved)
	assert.Equal(t, cfg.DefaultSlippage+200, d.SlippageBps)

	r.Liquidity.BaseAmount = 2.0
	d = Decide(r, ComputeScores(r, newTestScoreContext()), cfg)
	assert.True(t, d.Approved)
	assert.Equal(t, cfg.DefaultSlippage, d.SlippageBps)
}
