package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairCreatedLog(t *testing.T) {
	token0 := Address("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	token1 := Address("0x1111111111111111111111111111111111111111")
	pair := Address("0x2222222222222222222222222222222222222222")

	topics := []string{
		string(PairCreatedTopic),
		"0x" + encodeAddress(token0),
		"0x" + encodeAddress(token1),
	}
	data := "0x" + encodeAddress(pair) + encodeUint(big.NewInt(1234))

	ev, err := parsePairCreatedLog(topics, data, "0x64")
	require.NoError(t, err)

	assert.True(t, ev.Token0.Equal(token0))
	assert.True(t, ev.Token1.Equal(token1))
	assert.True(t, ev.Pair.Equal(pair))
	assert.Equal(t, uint64(100), ev.BlockNumber)
	assert.False(t, ev.DetectedAt.IsZero())
}

func TestParsePairCreatedLog_TooFewTopics(t *testing.T) {
	_, err := parsePairCreatedLog([]string{string(PairCreatedTopic)}, "0x", "0x1")
	assert.Error(t, err)
}

func TestWatcher_StatsStartEmpty(t *testing.T) {
	w := NewPairWatcher(DefaultWatcherConfig())
	stats := w.Stats()

	assert.False(t, stats.Connected)
	assert.Equal(t, int64(0), stats.PairsDetected)
	assert.Equal(t, int64(0), stats.Reconnects)
}

func TestWatcher_HandleMessageDeliversEvent(t *testing.T) {
	w := NewPairWatcher(DefaultWatcherConfig())

	payload := `{
		"jsonrpc": "2.0",
		"method": "eth_subscription",
		"params": {
			"subscription": "0xabc",
			"result": {
				"address": "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f",
				"topics": [
					"` + string(PairCreatedTopic) + `",
					"0x` + encodeAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2") + `",
					"0x` + encodeAddress("0x1111111111111111111111111111111111111111") + `"
				],
				"data": "0x` + encodeAddress("0x2222222222222222222222222222222222222222") + `",
				"blockNumber": "0x10"
			}
		}
	}`

	w.handleMessage([]byte(payload))

	select {
	case ev := <-w.eventCh:
		assert.True(t, ev.Pair.Equal("0x2222222222222222222222222222222222222222"))
		assert.Equal(t, uint64(16), ev.BlockNumber)
	default:
		t.Fatal("no event delivered")
	}
	assert.Equal(t, int64(1), w.Stats().PairsDetected)
}

func TestWatcher_HandleMessageIgnoresGarbage(t *testing.T) {
	w := NewPairWatcher(DefaultWatcherConfig())

	w.handleMessage([]byte("not json"))
	w.handleMessage([]byte(`{"method":"eth_subscription","params":{"result":{"topics":[]}}}`))

	select {
	case <-w.eventCh:
		t.Fatal("unexpected event")
	default:
	}
}
