package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestScoreContext() ScoreContext {
	return ScoreContext{
		MinLiquidity:     0.5,
		MaxLiquidity:     50,
		RecentTrades:     0,
		MaxTradesPerHour: 10,
	}
}

func newCleanReport() *Report {
	return &Report{
		Token: "0xtoken",
		Pair:  "0xpair",
		Liquidity: LiquidityInfo{
			BaseAmount: 1.0,
		},
		Ownership: OwnershipInfo{
			HasOwnerFn: true,
			Owner:      "0x0000000000000000000000000000000000000000",
			Renounced:  true,
		},
		Contract: ContractInfo{
			HasCode:            true,
			CodeSize:           4000,
			SuspiciousPatterns: []string{},
		},
		Timing: TimingInfo{
			GasPriceGwei: 20,
			HighGas:      false,
		},
	}
}

func TestComputeScores_CleanToken(t *testing.T) {
	s := ComputeScores(newCleanReport(), newTestScoreContext())

	// 1.0 units clears min 0.5, the 2x bonus, and sits below max 50.
	assert.Equal(t, 30, s.Liquidity)
	assert.Equal(t, 25, s.Ownership)
	assert.Equal(t, 20, s.Contract)
	assert.Equal(t, 15, s.Timing)
	assert.Equal(t, 10, s.Market)
	assert.Equal(t, 100, s.Total)
	assert.Equal(t, 100.0, s.Percentage)
}

func TestComputeScores_SumProperty(t *testing.T) {
	reports := []*Report{
		newCleanReport(),
		{Liquidity: LiquidityInfo{Err: "rpc down"}},
		{Ownership: OwnershipInfo{HasOwnerFn: true, Owner: "0xdead"}},
		{Contract: ContractInfo{SuspiciousPatterns: []string{"a", "b", "c"}}},
		{Timing: TimingInfo{HighGas: true}},
	}
	for _, r := range reports {
		s := ComputeScores(r, newTestScoreContext())
		assert.Equal(t, s.Liquidity+s.Ownership+s.Contract+s.Timing+s.Market, s.Total)
		assert.Equal(t, MaxTotal, s.Max)
		assert.GreaterOrEqual(t, s.Percentage, 0.0)
		assert.LessOrEqual(t, s.Percentage, 100.0)
	}
}

func TestComputeScores_LiquidityTiers(t *testing.T) {
	sc := newTestScoreContext()

	r := newCleanReport()
	r.Liquidity.BaseAmount = 0.4 // below min
	assert.Equal(t, 5, ComputeScores(r, sc).Liquidity)

	r.Liquidity.BaseAmount = 0.5 // exactly min, no 2x bonus
	assert.Equal(t, 20, ComputeScores(r, sc).Liquidity)

	r.Liquidity.BaseAmount = 1.0 // 2x bonus
	assert.Equal(t, 30, ComputeScores(r, sc).Liquidity)

	r.Liquidity.BaseAmount = 60 // above max loses the not-too-deep bonus
	assert.Equal(t, 25, ComputeScores(r, sc).Liquidity)
}

func TestComputeScores_LiquidityErrorScoresZero(t *testing.T) {
	r := newCleanReport()
	r.Liquidity = LiquidityInfo{Err: "pair not found"}

	s := ComputeScores(r, newTestScoreContext())
	assert.Equal(t, 0, s.Liquidity)
}

func TestComputeScores_OwnershipTiers(t *testing.T) {
	sc := newTestScoreContext()

	r := newCleanReport()
	assert.Equal(t, 25, ComputeScores(r, sc).Ownership)

	r.Ownership = OwnershipInfo{HasOwnerFn: false}
	assert.Equal(t, 15, ComputeScores(r, sc).Ownership)

	r.Ownership = OwnershipInfo{HasOwnerFn: true, Owner: "0xdeadbeef"}
	assert.Equal(t, 0, ComputeScores(r, sc).Ownership)
}

func TestComputeScores_ContractFloor(t *testing.T) {
	r := newCleanReport()
	r.Contract.SuspiciousPatterns = []string{"a", "b", "c"}

	s := ComputeScores(r, newTestScoreContext())
	assert.Equal(t, 0, s.Contract)
}

func TestComputeScores_HighGasPenalty(t *testing.T) {
	r := newCleanReport()
	r.Timing.HighGas = true

	s := ComputeScores(r, newTestScoreContext())
	assert.Equal(t, 5, s.Timing)
}

func TestComputeScores_HourlyCapDropsMarket(t *testing.T) {
	r := newCleanReport()
	sc := newTestScoreContext()

	base := ComputeScores(r, sc)

	sc.RecentTrades = 10
	capped := ComputeScores(r, sc)

	assert.Equal(t, 10, base.Market)
	assert.Equal(t, 5, capped.Market)
	assert.Equal(t, base.Percentage-5, capped.Percentage)
}
