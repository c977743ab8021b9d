package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harrier-trading/harrier/internal/analyzer"
	"github.com/harrier-trading/harrier/internal/evm"
	"github.com/harrier-trading/harrier/internal/executor"
	"github.com/harrier-trading/harrier/internal/observability"
	"github.com/harrier-trading/harrier/internal/state"
)

// ---------------------------------------------------------------------------
// Opportunity Pipeline — discovery -> analysis -> decision -> execution
// ---------------------------------------------------------------------------

// TokenState is a candidate's position in the per-token state machine.
type TokenState string

const (
	StateDiscovered    TokenState = "discovered"
	StateAnalyzing     TokenState = "analyzing"
	StateRejected      TokenState = "rejected"
	StateBlacklisted   TokenState = "blacklisted"
	StateApproved      TokenState = "approved"
	StateBought        TokenState = "bought"
	StateBuyFailed     TokenState = "buy_failed"
	StateSellScheduled TokenState = "sell_scheduled"
	StateSold          TokenState = "sold"
	StateSellFailed    TokenState = "sell_failed"
)

// Config holds pipeline settings.
type Config struct {
	BaseAsset     evm.Address `yaml:"base_asset"`
	WalletAddress evm.Address `yaml:"wallet_address"`
	StatePath     string      `yaml:"state_path"`

	TradeWindow      time.Duration `yaml:"trade_window"`
	MaxTradesPerHour int           `yaml:"max_trades_per_hour"`

	PruneInterval   time.Duration `yaml:"prune_interval"`
	SaveInterval    time.Duration `yaml:"save_interval"`
	LogInterval     time.Duration `yaml:"log_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	MinWalletBalance       float64 `yaml:"min_wallet_balance"` // base-asset units
	MaxFailedTrades        int     `yaml:"max_failed_trades"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	MaxDailyLoss           float64 `yaml:"max_daily_loss"` // base-asset units
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{
		StatePath:              "harrier-state.json",
		TradeWindow:            time.Hour,
		MaxTradesPerHour:       10,
		PruneInterval:          time.Hour,
		SaveInterval:           10 * time.Minute,
		LogInterval:            5 * time.Minute,
		MonitorInterval:        30 * time.Second,
		MinWalletBalance:       0.1,
		MaxFailedTrades:        5,
		MaxConsecutiveFailures: 5,
		MaxDailyLoss:           5.0,
	}
}

// Bot wires discovery events through analysis, scoring, the decision gate and
// execution. It owns the candidate dedup set and all periodic loops.
type Bot struct {
	config   Config
	client   evm.ChainClient
	analyzer *analyzer.Analyzer
	gateCfg  analyzer.GateConfig
	executor *executor.Executor
	state    *state.BotState
	metrics  *observability.Metrics

	running atomic.Bool
	paused  atomic.Bool

	mu          sync.RWMutex
	tokenStates map[evm.Address]TokenState

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

// New creates the pipeline orchestrator.
func New(cfg Config, client evm.ChainClient, an *analyzer.Analyzer, gateCfg analyzer.GateConfig, exec *executor.Executor, st *state.BotState, metrics *observability.Metrics) *Bot {
	b := &Bot{
		config:      cfg,
		client:      client,
		analyzer:    an,
		gateCfg:     gateCfg,
		executor:    exec,
		state:       st,
		metrics:     metrics,
		tokenStates: make(map[evm.Address]TokenState),
	}
	exec.SetSellResultCallback(b.onSellResult)
	return b
}

// Start subscribes to pair-creation events and launches the periodic loops.
// It returns once the pipeline is running.
func (b *Bot) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline: already running")
	}
	b.started = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	events, err := b.client.SubscribePairCreated(runCtx)
	if err != nil {
		b.running.Store(false)
		cancel()
		return fmt.Errorf("pipeline: subscribe: %w", err)
	}

	b.wg.Add(3)
	go b.eventLoop(runCtx, events)
	go b.maintenanceLoop(runCtx)
	go b.positionLoop(runCtx)

	log.Info().
		Str("base_asset", string(b.config.BaseAsset)).
		Int("blacklisted", b.state.BlacklistSize()).
		Msg("pipeline: started")
	return nil
}

// Stop halts event processing, flushes state and waits for the loops to
// drain. In-flight chain calls are not aborted; their results are discarded.
func (b *Bot) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.executor.Shutdown()
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	if err := b.PersistState(); err != nil {
		log.Error().Err(err).Msg("pipeline: final state flush failed")
	}
	b.LogStats()
	log.Info().Msg("pipeline: stopped")
}

// Pause suspends new candidate intake; discovery events are dropped until
// Resume. Scheduled sells for existing positions still fire.
func (b *Bot) Pause() {
	b.paused.Store(true)
	log.Warn().Msg("pipeline: PAUSED")
}

// Resume re-enables candidate intake.
func (b *Bot) Resume() {
	b.paused.Store(false)
	log.Info().Msg("pipeline: resumed")
}

// IsPaused reports whether intake is suspended.
func (b *Bot) IsPaused() bool {
	return b.paused.Load()
}

// --- Event path ---

// eventLoop drains the discovery stream in arrival order.
func (b *Bot) eventLoop(ctx context.Context, events <-chan evm.PairCreatedEvent) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Warn().Msg("pipeline: discovery stream closed")
				return
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev evm.PairCreatedEvent) {
	if !b.running.Load() {
		return
	}
	if b.metrics != nil {
		b.metrics.PairsDiscovered.Inc()
	}

	// Only pairs with the base asset on one side are candidates.
	var token evm.Address
	switch {
	case ev.Token0.Equal(b.config.BaseAsset):
		token = ev.Token1
	case ev.Token1.Equal(b.config.BaseAsset):
		token = ev.Token0
	default:
		if b.metrics != nil {
			b.metrics.PairsFiltered.Inc()
		}
		return
	}

	if b.state.IsBlacklisted(token) {
		b.setTokenState(token, StateBlacklisted)
		log.Debug().Str("token", string(token)).Msg("pipeline: blacklisted, skipping")
		return
	}

	if b.paused.Load() {
		log.Debug().Str("token", string(token)).Msg("pipeline: paused, dropping candidate")
		return
	}

	// The in-flight hold ends at approval, so a re-fired event for a token
	// the executor still owns must be stopped by the state map instead.
	if b.tokenOwned(token) {
		if b.metrics != nil {
			b.metrics.DuplicateEvents.Inc()
		}
		return
	}

	// Atomic check-and-insert; duplicates while in flight are dropped.
	if !b.state.TryAcquire(token) {
		if b.metrics != nil {
			b.metrics.DuplicateEvents.Inc()
		}
		return
	}

	b.setTokenState(token, StateDiscovered)
	b.wg.Add(1)
	go b.process(ctx, token, ev.Pair)
}

// process runs one candidate through analysis, decision and execution.
// A panic on one candidate must not halt discovery.
func (b *Bot) process(ctx context.Context, token, pair evm.Address) {
	defer b.wg.Done()
	released := false
	release := func() {
		if !released {
			released = true
			b.state.Release(token)
			b.updateGauges()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("token", string(token)).Msg("pipeline: candidate processing panic recovered")
		}
		release()
	}()

	b.setTokenState(token, StateAnalyzing)
	if b.metrics != nil {
		b.metrics.AnalysesStarted.Inc()
	}

	report := b.analyzer.Analyze(ctx, token, pair)

	if !b.running.Load() {
		return
	}

	scores := analyzer.ComputeScores(report, analyzer.ScoreContext{
		MinLiquidity:     b.gateCfg.MinLiquidity,
		MaxLiquidity:     b.gateCfg.MaxLiquidity,
		RecentTrades:     b.state.RecentTradeCount(b.config.TradeWindow),
		MaxTradesPerHour: b.config.MaxTradesPerHour,
	})
	decision := analyzer.Decide(report, scores, b.gateCfg)

	log.Info().
		Str("token", string(token)).
		Str("symbol", report.Meta.Symbol).
		Float64("score", scores.Percentage).
		Bool("approved", decision.Approved).
		Str("reason", decision.Reason).
		Msg("pipeline: decision")

	if decision.Blacklist {
		b.state.Blacklist(token)
		b.setTokenState(token, StateBlacklisted)
		if b.metrics != nil {
			b.metrics.TokensBlacklisted.Inc()
			b.metrics.AnalysesRejected.WithLabelValues(decision.Reason).Inc()
		}
		return
	}
	if !decision.Approved {
		b.setTokenState(token, StateRejected)
		if b.metrics != nil {
			b.metrics.AnalysesRejected.WithLabelValues(rejectionLabel(decision.Reason)).Inc()
		}
		return
	}

	b.setTokenState(token, StateApproved)
	if b.metrics != nil {
		b.metrics.AnalysesApproved.Inc()
	}
	// The dedup hold ends at approval; the executor owns the token from here.
	release()

	rec := b.executor.Buy(ctx, token, decision.TradeAmount, decision.SlippageBps)
	if b.metrics != nil {
		b.metrics.BuysSubmitted.Inc()
		if rec.Status == state.TradeSuccess {
			b.metrics.BuysSucceeded.Inc()
		} else {
			b.metrics.BuysFailed.Inc()
		}
	}
	if rec.Status != state.TradeSuccess {
		b.setTokenState(token, StateBuyFailed)
		return
	}

	b.setTokenState(token, StateBought)
	b.executor.ScheduleSell(token)
	b.setTokenState(token, StateSellScheduled)
}

// rejectionLabel collapses the numeric score reason so the metric label set
// stays bounded.
func rejectionLabel(reason string) string {
	if len(reason) >= 9 && reason[:9] == "score too" {
		return "score too low"
	}
	return reason
}

func (b *Bot) onSellResult(res executor.SellResult) {
	if !b.running.Load() {
		return
	}
	if res.Err != nil {
		b.setTokenState(res.Token, StateSellFailed)
		if b.metrics != nil {
			b.metrics.SellsFailed.Inc()
		}
		log.Warn().Err(res.Err).Str("token", string(res.Token)).Msg("pipeline: scheduled sell failed")
		return
	}
	// A nil record means the position was already empty, which still ends
	// the position's lifecycle.
	b.setTokenState(res.Token, StateSold)
	if b.metrics != nil && res.Record != nil {
		b.metrics.SellsExecuted.Inc()
	}
}

// --- Periodic loops ---

// maintenanceLoop runs pruning, persistence flushes and stats logging on one
// goroutine so ticks never overlap their previous invocation.
func (b *Bot) maintenanceLoop(ctx context.Context) {
	defer b.wg.Done()

	pruneTicker := time.NewTicker(b.config.PruneInterval)
	saveTicker := time.NewTicker(b.config.SaveInterval)
	logTicker := time.NewTicker(b.config.LogInterval)
	defer pruneTicker.Stop()
	defer saveTicker.Stop()
	defer logTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			if !b.running.Load() {
				continue
			}
			if n := b.state.PruneTrades(b.config.TradeWindow); n > 0 {
				log.Debug().Int("pruned", n).Msg("pipeline: trade ledger pruned")
			}
			b.updateGauges()
		case <-saveTicker.C:
			if !b.running.Load() {
				continue
			}
			if err := b.PersistState(); err != nil {
				log.Error().Err(err).Msg("pipeline: periodic state flush failed")
			}
		case <-logTicker.C:
			if !b.running.Load() {
				continue
			}
			b.LogStats()
		}
	}
}

// positionLoop is the periodic health check over wallet and trade outcomes.
// Advisories are logged, not auto-remediated; only a consecutive-failure
// streak pauses intake.
func (b *Bot) positionLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.running.Load() {
				continue
			}
			b.checkPositions(ctx)
		}
	}
}

func (b *Bot) checkPositions(ctx context.Context) {
	if balanceWei, err := b.client.GetBalance(ctx, b.config.WalletAddress); err == nil {
		balance, _ := balanceWei.Div(evm.WeiPerEth).Float64()
		if balance < b.config.MinWalletBalance {
			log.Warn().
				Float64("balance", balance).
				Float64("min", b.config.MinWalletBalance).
				Msg("pipeline: ADVISORY wallet balance low")
		}
	} else {
		log.Debug().Err(err).Msg("pipeline: balance check failed")
	}

	if failed := b.state.RecentFailedCount(b.config.TradeWindow); failed >= b.config.MaxFailedTrades {
		log.Warn().
			Int("failed", failed).
			Int("threshold", b.config.MaxFailedTrades).
			Msg("pipeline: ADVISORY high recent failure count")
	}

	if streak := b.state.ConsecutiveFailures(); streak >= b.config.MaxConsecutiveFailures && !b.paused.Load() {
		log.Error().
			Int("consecutive_failures", streak).
			Msg("pipeline: consecutive failure limit hit, pausing intake")
		b.Pause()
	}

	// Loss counters only move when an accounting hook records them; the limit
	// still trips if they do.
	if b.config.MaxDailyLoss > 0 {
		loss, _ := b.state.Stats().TotalLoss.Float64()
		if loss >= b.config.MaxDailyLoss && !b.paused.Load() {
			log.Error().
				Float64("total_loss", loss).
				Float64("max", b.config.MaxDailyLoss).
				Msg("pipeline: loss limit hit, pausing intake")
			b.Pause()
		}
	}
}

// --- Lifecycle helpers ---

// PersistState flushes blacklist and stats to disk.
func (b *Bot) PersistState() error {
	return b.state.Save(b.config.StatePath)
}

// LogStats emits the periodic stats line.
func (b *Bot) LogStats() {
	stats := b.state.Stats()
	execStats := b.executor.GetStats()
	log.Info().
		Int64("total_trades", stats.TotalTrades).
		Int64("successful_trades", stats.SuccessfulTrades).
		Int("blacklisted", b.state.BlacklistSize()).
		Int("in_flight", b.state.InFlightCount()).
		Int("recent_trades", b.state.RecentTradeCount(b.config.TradeWindow)).
		Int64("buys_submitted", execStats.BuysSubmitted).
		Int64("sells_executed", execStats.SellsExecuted).
		Bool("paused", b.paused.Load()).
		Dur("uptime", time.Since(b.started)).
		Msg("pipeline: [STATS]")
}

// tokenOwned reports whether the executor currently owns the token's
// lifecycle (approved through sell-scheduled).
func (b *Bot) tokenOwned(token evm.Address) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch b.tokenStates[token.Lower()] {
	case StateApproved, StateBought, StateSellScheduled:
		return true
	}
	return false
}

func (b *Bot) setTokenState(token evm.Address, st TokenState) {
	b.mu.Lock()
	b.tokenStates[token.Lower()] = st
	b.mu.Unlock()
}

// TokenStateOf returns a candidate's current state machine position.
func (b *Bot) TokenStateOf(token evm.Address) (TokenState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.tokenStates[token.Lower()]
	return st, ok
}

// TokenStates returns a copy of the full state map.
func (b *Bot) TokenStates() map[evm.Address]TokenState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[evm.Address]TokenState, len(b.tokenStates))
	for k, v := range b.tokenStates {
		out[k] = v
	}
	return out
}

func (b *Bot) updateGauges() {
	if b.metrics == nil {
		return
	}
	b.metrics.BlacklistSize.Set(float64(b.state.BlacklistSize()))
	b.metrics.InFlight.Set(float64(b.state.InFlightCount()))
	b.metrics.RecentTrades.Set(float64(b.state.RecentTradeCount(b.config.TradeWindow)))
}

// Stats is a full pipeline snapshot for the HTTP surface.
type Stats struct {
	Running       bool                       `json:"running"`
	Paused        bool                       `json:"paused"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Trading       state.TradingStats         `json:"trading"`
	Execution     executor.Stats             `json:"execution"`
	Blacklisted   int                        `json:"blacklisted"`
	InFlight      int                        `json:"in_flight"`
	RecentTrades  int                        `json:"recent_trades"`
	TokenStates   map[evm.Address]TokenState `json:"token_states"`
}

// GetStats returns the current pipeline snapshot.
func (b *Bot) GetStats() Stats {
	return Stats{
		Running:       b.running.Load(),
		Paused:        b.paused.Load(),
		UptimeSeconds: time.Since(b.started).Seconds(),
		Trading:       b.state.Stats(),
		Execution:     b.executor.GetStats(),
		Blacklisted:   b.state.BlacklistSize(),
		InFlight:      b.state.InFlightCount(),
		RecentTrades:  b.state.RecentTradeCount(b.config.TradeWindow),
		TokenStates:   b.TokenStates(),
	}
}
