package analyzer

// ---------------------------------------------------------------------------
// Scoring Engine — weighted composite over five independent categories
// ---------------------------------------------------------------------------

// Category maxima. MaxTotal is fixed regardless of which sub-scores were
// computable so percentages stay comparable across partial reports.
const (
	MaxLiquidityScore = 30
	MaxOwnershipScore = 25
	MaxContractScore  = 20
	MaxTimingScore    = 15
	MaxMarketScore    = 10
	MaxTotal          = MaxLiquidityScore + MaxOwnershipScore + MaxContractScore + MaxTimingScore + MaxMarketScore
)

// ScoreContext carries the config-derived thresholds and the rolling trade
// count the market category depends on.
type ScoreContext struct {
	MinLiquidity     float64
	MaxLiquidity     float64
	RecentTrades     int
	MaxTradesPerHour int
}

// Scores holds category sub-scores and the derived composite.
type Scores struct {
	Liquidity  int     `json:"liquidity"`
	Ownership  int     `json:"ownership"`
	Contract   int     `json:"contract"`
	Timing     int     `json:"timing"`
	Market     int     `json:"market"`
	Total      int     `json:"total"`
	Max        int     `json:"max"`
	Percentage float64 `json:"percentage"`
}

// ComputeScores maps a report to its weighted composite score. Deterministic
// given identical inputs.
func ComputeScores(r *Report, sc ScoreContext) Scores {
	var s Scores

	// Liquidity (0-30). No points when the reserves read failed.
	if r.Liquidity.Err == "" {
		amount := r.Liquidity.BaseAmount
		if amount >= sc.MinLiquidity {
			s.Liquidity += 15
		}
		if amount >= sc.MinLiquidity*2 {
			s.Liquidity += 10
		}
		if amount < sc.MaxLiquidity {
			s.Liquidity += 5
		}
	}

	// Ownership (0-25). Renounced is best; no owner function is acceptable;
	// an active owner scores zero.
	switch {
	case r.Ownership.Renounced:
		s.Ownership = 25
	case !r.Ownership.HasOwnerFn:
		s.Ownership = 15
	}

	// Contract safety (0-20). Full points minus 10 per red flag, floored.
	s.Contract = MaxContractScore - 10*len(r.Contract.SuspiciousPatterns)
	if s.Contract < 0 {
		s.Contract = 0
	}

	// Timing (0-15).
	s.Timing = MaxTimingScore
	if r.Timing.HighGas {
		s.Timing -= 10
	}

	// Market conditions (0-10). Penalize when the hourly trade cap is hit.
	s.Market = MaxMarketScore
	if sc.MaxTradesPerHour > 0 && sc.RecentTrades >= sc.MaxTradesPerHour {
		s.Market -= 5
	}

	s.Total = s.Liquidity + s.Ownership + s.Contract + s.Timing + s.Market
	s.Max = MaxTotal
	s.Percentage = float64(s.Total) / float64(s.Max) * 100
	return s
}
