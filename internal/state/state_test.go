package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrier-trading/harrier/internal/evm"
)

func TestBlacklist_Idempotent(t *testing.T) {
	s := New()

	s.Blacklist("0xAbC0000000000000000000000000000000000001")
	s.Blacklist("0xabc0000000000000000000000000000000000001") // same address, different case

	assert.Equal(t, 1, s.BlacklistSize())
	assert.True(t, s.IsBlacklisted("0xABC0000000000000000000000000000000000001"))
}

func TestInFlight_SingleAcquire(t *testing.T) {
	s := New()
	token := evm.Address("0x1111111111111111111111111111111111111111")

	assert.True(t, s.TryAcquire(token))
	assert.False(t, s.TryAcquire(token))
	assert.Equal(t, 1, s.InFlightCount())

	s.Release(token)
	assert.True(t, s.TryAcquire(token))
}

func TestRecordTrade_StatsAndStreak(t *testing.T) {
	s := New()

	s.RecordTrade(TradeRecord{Token: "0x01", Status: TradeFailed})
	s.RecordTrade(TradeRecord{Token: "0x02", Status: TradeFailed})
	assert.Equal(t, 2, s.ConsecutiveFailures())

	s.RecordTrade(TradeRecord{Token: "0x03", Status: TradeSuccess})
	assert.Equal(t, 0, s.ConsecutiveFailures())

	// Pending records do not count toward totals.
	s.RecordTrade(TradeRecord{Token: "0x04", Status: TradePending})

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.SuccessfulTrades)
	assert.Len(t, s.Trades(), 4)
}

func TestPruneTrades_KeepsStats(t *testing.T) {
	s := New()

	old := TradeRecord{Token: "0x01", Status: TradeSuccess, Timestamp: time.Now().Add(-2 * time.Hour)}
	fresh := TradeRecord{Token: "0x02", Status: TradeFailed, Timestamp: time.Now()}
	s.RecordTrade(old)
	s.RecordTrade(fresh)

	pruned := s.PruneTrades(time.Hour)

	assert.Equal(t, 1, pruned)
	assert.Len(t, s.Trades(), 1)
	assert.Equal(t, evm.Address("0x02"), s.Trades()[0].Token)

	// Counters survive pruning.
	stats := s.Stats()
	assert.Equal(t, int64(2), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.SuccessfulTrades)
}

func TestRecentCounts(t *testing.T) {
	s := New()

	s.RecordTrade(TradeRecord{Token: "0x01", Status: TradeSuccess, Timestamp: time.Now().Add(-90 * time.Minute)})
	s.RecordTrade(TradeRecord{Token: "0x02", Status: TradeFailed, Timestamp: time.Now().Add(-10 * time.Minute)})
	s.RecordTrade(TradeRecord{Token: "0x03", Status: TradeSuccess, Timestamp: time.Now()})

	assert.Equal(t, 2, s.RecentTradeCount(time.Hour))
	assert.Equal(t, 1, s.RecentFailedCount(time.Hour))
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := New()
	s.Blacklist("0xbad0000000000000000000000000000000000001")
	s.Blacklist("0xbad0000000000000000000000000000000000002")
	s.RecordTrade(TradeRecord{
		Token:  "0x01",
		Amount: decimal.NewFromFloat(0.1),
		Status: TradeSuccess,
	})
	s.RecordTrade(TradeRecord{Token: "0x02", Status: TradeFailed})

	require.NoError(t, s.Save(path))

	restored := New()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.BlacklistSize())
	assert.True(t, restored.IsBlacklisted("0xBAD0000000000000000000000000000000000001"))
	assert.Equal(t, int64(2), restored.Stats().TotalTrades)
	assert.Equal(t, int64(1), restored.Stats().SuccessfulTrades)
	// The ledger is deliberately not persisted; only blacklist and counters.
	assert.Empty(t, restored.Trades())
}

func TestLoad_MissingFileStartsFresh(t *testing.T) {
	s := New()
	err := s.Load(filepath.Join(t.TempDir(), "nope.json"))

	require.NoError(t, err)
	assert.Equal(t, 0, s.BlacklistSize())
	assert.Equal(t, int64(0), s.Stats().TotalTrades)
}

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New()
	require.NoError(t, s.Load(path))
	assert.Equal(t, 0, s.BlacklistSize())
}

func TestSave_AtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := New()
	s.Blacklist("0x01")
	require.NoError(t, s.Save(path))

	s.Blacklist("0x02")
	require.NoError(t, s.Save(path))

	// No temp file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	restored := New()
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 2, restored.BlacklistSize())
}
