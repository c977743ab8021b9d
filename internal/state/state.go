package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/harrier-trading/harrier/internal/evm"
)

// ---------------------------------------------------------------------------
// Bot State — blacklist, trade ledger, cumulative stats, in-flight set
// ---------------------------------------------------------------------------

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeSuccess TradeStatus = "success"
	TradeFailed  TradeStatus = "failed"
)

// TradeRecord is one buy or sell outcome in the rolling ledger.
type TradeRecord struct {
	ID          string          `json:"id"`
	Token       evm.Address     `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps int             `json:"slippage_bps"`
	TxHash      evm.Hash        `json:"tx_hash,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	GasUsed     uint64          `json:"gas_used,omitempty"`
	Status      TradeStatus     `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewTradeID returns a fresh ledger entry ID.
func NewTradeID() string {
	return uuid.NewString()
}

// TradingStats are monotonically increasing counters. Pruning the ledger
// never decrements them.
type TradingStats struct {
	TotalTrades      int64           `json:"totalTrades"`
	SuccessfulTrades int64           `json:"successfulTrades"`
	TotalProfit      decimal.Decimal `json:"totalProfit"`
	TotalLoss        decimal.Decimal `json:"totalLoss"`
}

// BotState owns all shared mutable run state. All access goes through the
// mutex so event handlers and timer loops can touch it concurrently.
type BotState struct {
	mu sync.RWMutex

	blacklist map[evm.Address]struct{}
	inFlight  map[evm.Address]struct{}
	trades    []TradeRecord
	stats     TradingStats

	consecutiveFailures int
}

// New creates empty bot state.
func New() *BotState {
	return &BotState{
		blacklist: make(map[evm.Address]struct{}),
		inFlight:  make(map[evm.Address]struct{}),
	}
}

// --- Blacklist ---

// Blacklist adds a token to the blacklist. Idempotent; addresses are stored
// lowercased so checksummed and plain forms collapse to one entry.
func (s *BotState) Blacklist(token evm.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[token.Lower()] = struct{}{}
}

// IsBlacklisted reports whether a token is blacklisted.
func (s *BotState) IsBlacklisted(token evm.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[token.Lower()]
	return ok
}

// BlacklistSize returns the number of blacklisted tokens.
func (s *BotState) BlacklistSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blacklist)
}

// --- In-flight set ---

// TryAcquire atomically checks-and-inserts a token into the in-flight set.
// Returns false when the token already has an analysis or execution running.
func (s *BotState) TryAcquire(token evm.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := token.Lower()
	if _, ok := s.inFlight[key]; ok {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

// Release removes a token from the in-flight set.
func (s *BotState) Release(token evm.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, token.Lower())
}

// InFlightCount returns the number of tokens currently being worked.
func (s *BotState) InFlightCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inFlight)
}

// --- Trade ledger & stats ---

// RecordTrade appends a trade to the ledger and bumps the counters for
// terminal outcomes. Failed trades grow the consecutive-failure streak,
// successful ones reset it.
func (s *BotState) RecordTrade(rec TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = NewTradeID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.trades = append(s.trades, rec)

	switch rec.Status {
	case TradeSuccess:
		s.stats.TotalTrades++
		s.stats.SuccessfulTrades++
		s.consecutiveFailures = 0
	case TradeFailed:
		s.stats.TotalTrades++
		s.consecutiveFailures++
	}
}

// AddProfit credits realized profit to the cumulative counters.
func (s *BotState) AddProfit(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalProfit = s.stats.TotalProfit.Add(amount)
}

// AddLoss credits realized loss to the cumulative counters.
func (s *BotState) AddLoss(amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalLoss = s.stats.TotalLoss.Add(amount)
}

// RecentTradeCount returns the number of ledger entries newer than the window.
func (s *BotState) RecentTradeCount(window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, t := range s.trades {
		if t.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// RecentFailedCount returns the number of failed entries newer than the window.
func (s *BotState) RecentFailedCount(window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, t := range s.trades {
		if t.Status == TradeFailed && t.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// ConsecutiveFailures returns the current failure streak length.
func (s *BotState) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}

// PruneTrades drops ledger entries older than the window. Stats counters are
// untouched; they count every terminal trade ever recorded.
func (s *BotState) PruneTrades(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-window)
	kept := s.trades[:0]
	for _, t := range s.trades {
		if t.Timestamp.After(cutoff) {
			kept = append(kept, t)
		}
	}
	pruned := len(s.trades) - len(kept)
	s.trades = kept
	return pruned
}

// Stats returns a copy of the cumulative counters.
func (s *BotState) Stats() TradingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Trades returns a copy of the current ledger.
func (s *BotState) Trades() []TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

// ---------------------------------------------------------------------------
// Persistence — wholesale JSON snapshot, written atomically
// ---------------------------------------------------------------------------

type snapshot struct {
	BlacklistedTokens []evm.Address `json:"blacklistedTokens"`
	TradingStats      TradingStats  `json:"tradingStats"`
	LastUpdated       time.Time     `json:"lastUpdated"`
}

// Load restores blacklist and stats from disk. A missing file yields fresh
// state; a corrupt file is logged and treated the same way rather than
// blocking startup.
func (s *BotState) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("state: no saved state, starting fresh")
			return nil
		}
		return fmt.Errorf("state: read %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("state: corrupt state file, starting fresh")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range snap.BlacklistedTokens {
		s.blacklist[token.Lower()] = struct{}{}
	}
	s.stats = snap.TradingStats

	log.Info().
		Int("blacklisted", len(s.blacklist)).
		Int64("total_trades", s.stats.TotalTrades).
		Msg("state: restored")
	return nil
}

// Save writes the snapshot to a temp file and renames it into place so a
// crash mid-write never corrupts the previous snapshot.
func (s *BotState) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{
		BlacklistedTokens: make([]evm.Address, 0, len(s.blacklist)),
		TradingStats:      s.stats,
		LastUpdated:       time.Now(),
	}
	for token := range s.blacklist {
		snap.BlacklistedTokens = append(snap.BlacklistedTokens, token)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: mkdir %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}
