package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/harrier-trading/harrier/internal/evm"
	"github.com/harrier-trading/harrier/internal/state"
)

// ---------------------------------------------------------------------------
// Trade Executor — buy submission, deferred sell, ledger recording
// ---------------------------------------------------------------------------

// Config holds execution settings. Amounts are base-asset units, gas prices
// gwei.
type Config struct {
	WalletAddress   evm.Address   `yaml:"wallet_address"`
	GasPremiumPct   int64         `yaml:"gas_premium_pct"`
	GasLimit        uint64        `yaml:"gas_limit"`
	MaxGasPriceGwei int64         `yaml:"max_gas_price_gwei"`
	SellDelay       time.Duration `yaml:"sell_delay"`
	SellPercentage  int64         `yaml:"sell_percentage"`
	SellSlippageBps int           `yaml:"sell_slippage_bps"`
	StopLossPct     float64       `yaml:"stop_loss_pct"`
	TakeProfitPct   float64       `yaml:"take_profit_pct"`
	DryRun          bool          `yaml:"dry_run"`
}

// DefaultConfig returns conservative execution defaults with dry-run on.
func DefaultConfig() Config {
	return Config{
		GasPremiumPct:   10,
		GasLimit:        300_000,
		MaxGasPriceGwei: 100,
		SellDelay:       5 * time.Minute,
		SellPercentage:  80,
		SellSlippageBps: 800,
		StopLossPct:     -50,
		TakeProfitPct:   200,
		DryRun:          true,
	}
}

// SellResult reports a completed scheduled sell to the registered callback.
type SellResult struct {
	Token  evm.Address
	Record *state.TradeRecord // nil when the position was already empty
	Err    error
}

// Executor submits buys and sells through the chain client and records
// every terminal outcome in the ledger.
type Executor struct {
	config Config
	client evm.ChainClient
	state  *state.BotState

	mu           sync.Mutex
	onSellResult func(SellResult)

	stopped atomic.Bool

	buysSubmitted  atomic.Int64
	buysSucceeded  atomic.Int64
	buysFailed     atomic.Int64
	sellsScheduled atomic.Int64
	sellsExecuted  atomic.Int64
	sellsFailed    atomic.Int64
}

// New creates a trade executor.
func New(config Config, client evm.ChainClient, st *state.BotState) *Executor {
	return &Executor{
		config: config,
		client: client,
		state:  st,
	}
}

// SetSellResultCallback registers a hook invoked when a scheduled sell
// completes or fails.
func (e *Executor) SetSellResultCallback(fn func(SellResult)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSellResult = fn
}

// Shutdown stops the executor; pending scheduled sells become no-ops.
func (e *Executor) Shutdown() {
	e.stopped.Store(true)
}

// Buy spends the given base-asset amount on a token. The outcome is always
// recorded in the ledger; failures are returned in the record, never as a
// panic up the pipeline. There is no automatic retry, a failed snipe needs
// fresh re-analysis before another attempt.
func (e *Executor) Buy(ctx context.Context, token evm.Address, amount decimal.Decimal, slippageBps int) state.TradeRecord {
	e.buysSubmitted.Add(1)

	rec := state.TradeRecord{
		ID:          state.NewTradeID(),
		Token:       token,
		Amount:      amount,
		SlippageBps: slippageBps,
		Status:      state.TradePending,
		Timestamp:   time.Now(),
	}

	log.Info().
		Str("token", string(token)).
		Str("amount", amount.String()).
		Int("slippage_bps", slippageBps).
		Bool("dry_run", e.config.DryRun).
		Msg("executor: BUY")

	if e.config.DryRun {
		rec.Status = state.TradeSuccess
		rec.TxHash = evm.Hash("DRYRUN-BUY-" + uuid.NewString()[:8])
		rec.GasUsed = e.config.GasLimit / 2
		e.finishBuy(rec)
		return rec
	}

	gas, err := e.buyGasParams(ctx)
	if err != nil {
		rec.Status = state.TradeFailed
		rec.Reason = fmt.Sprintf("gas price read: %v", err)
		e.finishBuy(rec)
		return rec
	}

	amountWei := amount.Mul(evm.WeiPerEth)
	receipt, err := e.client.SubmitBuy(ctx, token, amountWei, slippageBps, gas)
	if err != nil {
		rec.Status = state.TradeFailed
		rec.Reason = err.Error()
		e.finishBuy(rec)
		return rec
	}

	rec.TxHash = receipt.TxHash
	rec.BlockNumber = receipt.BlockNumber
	rec.GasUsed = receipt.GasUsed
	if receipt.Status {
		rec.Status = state.TradeSuccess
	} else {
		rec.Status = state.TradeFailed
		rec.Reason = receipt.RevertReason
	}
	e.finishBuy(rec)
	return rec
}

func (e *Executor) finishBuy(rec state.TradeRecord) {
	e.state.RecordTrade(rec)
	if rec.Status == state.TradeSuccess {
		e.buysSucceeded.Add(1)
		log.Info().Str("token", string(rec.Token)).Str("tx", string(rec.TxHash)).Msg("executor: buy confirmed")
	} else {
		e.buysFailed.Add(1)
		log.Warn().Str("token", string(rec.Token)).Str("reason", rec.Reason).Msg("executor: buy failed")
	}
}

// buyGasParams reads the current gas price and applies the inclusion premium,
// capped at the configured ceiling.
func (e *Executor) buyGasParams(ctx context.Context) (evm.GasParams, error) {
	gasPrice, err := e.client.GetGasPrice(ctx)
	if err != nil {
		return evm.GasParams{}, err
	}

	premium := gasPrice.
		Mul(decimal.NewFromInt(100 + e.config.GasPremiumPct)).
		Div(decimal.NewFromInt(100))

	ceiling := decimal.NewFromInt(e.config.MaxGasPriceGwei).Mul(evm.WeiPerGwei)
	if premium.GreaterThan(ceiling) {
		premium = ceiling
	}

	return evm.GasParams{GasPrice: premium, GasLimit: e.config.GasLimit}, nil
}

// ScheduleSell arms a one-shot deferred sell for a bought position.
// Fire-and-forget; the sell itself is idempotent against positions that were
// already liquidated because a zero balance is a silent no-op.
func (e *Executor) ScheduleSell(token evm.Address) {
	e.sellsScheduled.Add(1)
	log.Info().
		Str("token", string(token)).
		Dur("delay", e.config.SellDelay).
		Msg("executor: sell scheduled")

	time.AfterFunc(e.config.SellDelay, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("token", string(token)).Msg("executor: sell panic recovered")
			}
		}()

		if e.stopped.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		rec, err := e.Sell(ctx, token, e.config.SellPercentage, e.config.SellSlippageBps)
		e.notifySell(SellResult{Token: token, Record: rec, Err: err})
	})
}

func (e *Executor) notifySell(res SellResult) {
	e.mu.Lock()
	fn := e.onSellResult
	e.mu.Unlock()
	if fn != nil {
		fn(res)
	}
}

// Sell liquidates a percentage of the current holdings. A zero balance is a
// silent no-op returning a nil record.
func (e *Executor) Sell(ctx context.Context, token evm.Address, percentage int64, slippageBps int) (*state.TradeRecord, error) {
	balance, err := e.client.GetTokenBalance(ctx, token, e.config.WalletAddress)
	if err != nil {
		e.sellsFailed.Add(1)
		return nil, fmt.Errorf("executor: balance read: %w", err)
	}
	if !balance.IsPositive() {
		log.Debug().Str("token", string(token)).Msg("executor: nothing to sell")
		return nil, nil
	}

	sellAmount := balance.
		Mul(decimal.NewFromInt(percentage)).
		Div(decimal.NewFromInt(100)).
		Floor()

	rec := state.TradeRecord{
		ID:          state.NewTradeID(),
		Token:       token,
		Amount:      sellAmount,
		SlippageBps: slippageBps,
		Status:      state.TradePending,
		Timestamp:   time.Now(),
	}

	log.Info().
		Str("token", string(token)).
		Str("amount", sellAmount.String()).
		Int64("percentage", percentage).
		Bool("dry_run", e.config.DryRun).
		Msg("executor: SELL")

	if e.config.DryRun {
		rec.Status = state.TradeSuccess
		rec.TxHash = evm.Hash("DRYRUN-SELL-" + uuid.NewString()[:8])
		e.state.RecordTrade(rec)
		e.sellsExecuted.Add(1)
		return &rec, nil
	}

	receipt, err := e.client.SubmitSell(ctx, token, sellAmount, slippageBps)
	if err != nil {
		rec.Status = state.TradeFailed
		rec.Reason = err.Error()
		e.state.RecordTrade(rec)
		e.sellsFailed.Add(1)
		return &rec, fmt.Errorf("executor: sell submit: %w", err)
	}

	rec.TxHash = receipt.TxHash
	rec.BlockNumber = receipt.BlockNumber
	rec.GasUsed = receipt.GasUsed
	if receipt.Status {
		rec.Status = state.TradeSuccess
		e.sellsExecuted.Add(1)
	} else {
		rec.Status = state.TradeFailed
		rec.Reason = receipt.RevertReason
		e.sellsFailed.Add(1)
	}
	e.state.RecordTrade(rec)

	if !receipt.Status {
		return &rec, fmt.Errorf("executor: sell reverted: %s", receipt.RevertReason)
	}
	return &rec, nil
}

// Stats is a snapshot of executor counters.
type Stats struct {
	BuysSubmitted  int64 `json:"buys_submitted"`
	BuysSucceeded  int64 `json:"buys_succeeded"`
	BuysFailed     int64 `json:"buys_failed"`
	SellsScheduled int64 `json:"sells_scheduled"`
	SellsExecuted  int64 `json:"sells_executed"`
	SellsFailed    int64 `json:"sells_failed"`
}

// GetStats returns current executor counters.
func (e *Executor) GetStats() Stats {
	return Stats{
		BuysSubmitted:  e.buysSubmitted.Load(),
		BuysSucceeded:  e.buysSucceeded.Load(),
		BuysFailed:     e.buysFailed.Load(),
		SellsScheduled: e.sellsScheduled.Load(),
		SellsExecuted:  e.sellsExecuted.Load(),
		SellsFailed:    e.sellsFailed.Load(),
	}
}
