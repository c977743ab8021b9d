package analyzer

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/harrier-trading/harrier/internal/evm"
)

// ---------------------------------------------------------------------------
// Token Analyzer — liquidity / ownership / contract-safety / timing probes
// ---------------------------------------------------------------------------

// Suspicious-pattern identifiers reported by the contract probe.
const (
	PatternSelfDestruct = "selfdestruct"
	PatternMinimalCode  = "minimal_code"
)

// minCodeSize is the byte-size floor below which deployed code is considered
// suspiciously small for a real token contract.
const minCodeSize = 500

// highGasGwei is the gas price above which timing is flagged unfavorable.
const highGasGwei = 50.0

// ownerAccessors are probed in order; first success wins, exhaustion means
// the contract has no owner function.
var ownerAccessors = []string{"owner", "getOwner"}

// Config holds analyzer settings.
type Config struct {
	BaseAsset evm.Address `yaml:"base_asset"`
}

// LiquidityInfo describes the pool's base-asset depth.
type LiquidityInfo struct {
	BaseReserve  decimal.Decimal `json:"base_reserve"`
	TokenReserve decimal.Decimal `json:"token_reserve"`
	BaseAmount   float64         `json:"base_amount"` // base-asset units
	Ratio        float64         `json:"ratio"`
	Err          string          `json:"err,omitempty"`
}

// OwnershipInfo describes who controls the token contract.
type OwnershipInfo struct {
	HasOwnerFn bool        `json:"has_owner_fn"`
	Owner      evm.Address `json:"owner,omitempty"`
	Renounced  bool        `json:"renounced"`
	Err        string      `json:"err,omitempty"`
}

// ContractInfo describes the deployed bytecode heuristics.
type ContractInfo struct {
	HasCode            bool     `json:"has_code"`
	CodeSize           int      `json:"code_size"`
	SuspiciousPatterns []string `json:"suspicious_patterns"`
	Err                string   `json:"err,omitempty"`
}

// TimingInfo describes current network conditions.
type TimingInfo struct {
	GasPriceGwei float64   `json:"gas_price_gwei"`
	HighGas      bool      `json:"high_gas"`
	BlockNumber  uint64    `json:"block_number"`
	BlockTime    time.Time `json:"block_time"`
	Err          string    `json:"err,omitempty"`
}

// Report is the immutable outcome of analyzing one candidate token.
// Err is set only when the liquidity read fails outright; the other probes
// isolate their failures into their own sub-structs so a partial report can
// still be scored.
type Report struct {
	Token     evm.Address       `json:"token"`
	Pair      evm.Address       `json:"pair"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      evm.TokenMetadata `json:"meta"`
	Liquidity LiquidityInfo     `json:"liquidity"`
	Ownership OwnershipInfo     `json:"ownership"`
	Contract  ContractInfo      `json:"contract"`
	Timing    TimingInfo        `json:"timing"`
	Err       string            `json:"err,omitempty"`
}

// Analyzer probes candidate tokens through the chain client.
type Analyzer struct {
	config Config
	client evm.ChainClient
}

// New creates a token analyzer.
func New(config Config, client evm.ChainClient) *Analyzer {
	return &Analyzer{config: config, client: client}
}

// Analyze produces a report for one candidate. It never returns an error;
// probe failures degrade the report instead of aborting the pipeline.
func (a *Analyzer) Analyze(ctx context.Context, token, pair evm.Address) *Report {
	report := &Report{
		Token:     token,
		Pair:      pair,
		Timestamp: time.Now(),
	}

	if md, err := a.client.GetTokenMetadata(ctx, token); err == nil {
		report.Meta = *md
	} else {
		report.Meta = evm.TokenMetadata{Name: "UNKNOWN", Symbol: "UNKNOWN", Decimals: 18}
	}

	report.Liquidity = a.analyzeLiquidity(ctx, pair)
	if report.Liquidity.Err != "" {
		report.Err = report.Liquidity.Err
	}

	report.Ownership = a.analyzeOwnership(ctx, token)
	report.Contract = a.analyzeContract(ctx, token)
	report.Timing = a.analyzeTiming(ctx)

	log.Debug().
		Str("token", string(token)).
		Str("symbol", report.Meta.Symbol).
		Float64("base_amount", report.Liquidity.BaseAmount).
		Bool("renounced", report.Ownership.Renounced).
		Int("patterns", len(report.Contract.SuspiciousPatterns)).
		Msg("analyzer: report ready")

	return report
}

func (a *Analyzer) analyzeLiquidity(ctx context.Context, pair evm.Address) LiquidityInfo {
	reserves, err := a.client.GetReserves(ctx, pair)
	if err != nil {
		return LiquidityInfo{Err: err.Error()}
	}

	var base, token decimal.Decimal
	if reserves.Token0.Equal(a.config.BaseAsset) {
		base, token = reserves.Reserve0, reserves.Reserve1
	} else {
		base, token = reserves.Reserve1, reserves.Reserve0
	}

	info := LiquidityInfo{
		BaseReserve:  base,
		TokenReserve: token,
	}
	info.BaseAmount, _ = base.Div(evm.WeiPerEth).Float64()
	if token.IsPositive() {
		info.Ratio, _ = base.Div(token).Float64()
	}
	return info
}

func (a *Analyzer) analyzeOwnership(ctx context.Context, token evm.Address) OwnershipInfo {
	for _, accessor := range ownerAccessors {
		owner, err := a.client.GetOwner(ctx, token, accessor)
		if err == nil {
			return OwnershipInfo{
				HasOwnerFn: true,
				Owner:      owner,
				Renounced:  owner.IsZero(),
			}
		}
		if !errors.Is(err, evm.ErrNoAccessor) {
			// Transient failure reads the same as no owner function for
			// scoring, but keep the cause visible.
			return OwnershipInfo{Err: err.Error()}
		}
	}
	return OwnershipInfo{HasOwnerFn: false}
}

func (a *Analyzer) analyzeContract(ctx context.Context, token evm.Address) ContractInfo {
	code, err := a.client.GetCode(ctx, token)
	if err != nil {
		return ContractInfo{Err: err.Error()}
	}

	info := ContractInfo{
		HasCode:            len(code) > 0,
		CodeSize:           len(code),
		SuspiciousPatterns: []string{},
	}

	// SELFDESTRUCT opcode anywhere in the deployed code.
	if bytes.IndexByte(code, 0xff) >= 0 {
		info.SuspiciousPatterns = append(info.SuspiciousPatterns, PatternSelfDestruct)
	}
	if len(code) < minCodeSize {
		info.SuspiciousPatterns = append(info.SuspiciousPatterns, PatternMinimalCode)
	}
	return info
}

func (a *Analyzer) analyzeTiming(ctx context.Context) TimingInfo {
	gasPrice, err := a.client.GetGasPrice(ctx)
	if err != nil {
		return TimingInfo{Err: err.Error()}
	}

	info := TimingInfo{}
	info.GasPriceGwei, _ = gasPrice.Div(evm.WeiPerGwei).Float64()
	info.HighGas = info.GasPriceGwei > highGasGwei

	if block, err := a.client.GetLatestBlock(ctx); err == nil {
		info.BlockNumber = block.Number
		info.BlockTime = block.Timestamp
	}
	return info
}
