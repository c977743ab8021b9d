package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket Pair Watcher — real-time pair detection via eth_subscribe
// Subscribes to factory PairCreated logs on the node websocket endpoint
// ---------------------------------------------------------------------------

// WatcherConfig configures the websocket pair watcher.
type WatcherConfig struct {
	WSEndpoint       string  `yaml:"ws_endpoint"`
	FactoryAddress   Address `yaml:"factory_address"`
	ReconnectDelayMs int     `yaml:"reconnect_delay_ms"`
	PingIntervalS    int     `yaml:"ping_interval_s"`
	MaxReconnects    int     `yaml:"max_reconnects"` // 0 = unlimited
}

// DefaultWatcherConfig returns mainnet-ready defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0,
	}
}

// PairWatcher monitors the factory for PairCreated events over websocket.
type PairWatcher struct {
	config WatcherConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	eventCh chan PairCreatedEvent
	closed  atomic.Bool

	nextReqID atomic.Int64

	// Stats.
	messagesRecv  atomic.Int64
	pairsDetected atomic.Int64
	reconnects    atomic.Int64
	connected     atomic.Bool
}

// NewPairWatcher creates a new websocket pair watcher.
func NewPairWatcher(config WatcherConfig) *PairWatcher {
	return &PairWatcher{
		config:  config,
		eventCh: make(chan PairCreatedEvent, 256),
	}
}

// Start connects to the websocket and begins watching. Returns the event
// channel immediately; the connection loop runs until ctx is cancelled.
func (w *PairWatcher) Start(ctx context.Context) (<-chan PairCreatedEvent, error) {
	go w.runLoop(ctx)
	return w.eventCh, nil
}

func (w *PairWatcher) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher: runLoop panic recovered")
		}
		w.mu.Lock()
		if w.closed.CompareAndSwap(false, true) {
			close(w.eventCh)
		}
		w.mu.Unlock()
	}()

	reconnectDelay := time.Duration(w.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			w.disconnect()
			return
		default:
		}

		if w.config.MaxReconnects > 0 && reconnectCount >= w.config.MaxReconnects {
			log.Error().Int("max", w.config.MaxReconnects).Msg("watcher: max reconnects reached, cooling down")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				w.disconnect()
				return
			}
		}

		if err := w.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("watcher: connection failed")
			reconnectCount++
			w.reconnects.Add(1)

			maxDelay := 30 * time.Second
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(w.config.ReconnectDelayMs) * time.Millisecond

		if err := w.subscribe(); err != nil {
			log.Warn().Err(err).Msg("watcher: subscribe failed")
			w.disconnect()
			continue
		}

		w.readLoop(ctx)
	}
}

func (w *PairWatcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("watcher: dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.connected.Store(true)

	log.Info().Str("endpoint", w.config.WSEndpoint).Msg("watcher: connected")
	return nil
}

func (w *PairWatcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected.Store(false)
}

// subscribe sends an eth_subscribe request for factory PairCreated logs.
func (w *PairWatcher) subscribe() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("watcher: not connected")
	}

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      w.nextReqID.Add(1),
		"method":  "eth_subscribe",
		"params": []any{
			"logs",
			map[string]any{
				"address": string(w.config.FactoryAddress),
				"topics":  []any{string(PairCreatedTopic)},
			},
		},
	}

	if err := w.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("watcher: write subscribe: %w", err)
	}

	log.Info().
		Str("factory", string(w.config.FactoryAddress)).
		Msg("watcher: subscribed to PairCreated logs")
	return nil
}

func (w *PairWatcher) readLoop(ctx context.Context) {
	pingInterval := time.Duration(w.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("watcher: ping failed")
					return
				}
			}
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("watcher: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("watcher: read error, reconnecting")
			}
			w.connected.Store(false)
			return
		}

		w.messagesRecv.Add(1)
		w.handleMessage(message)
	}
}

func (w *PairWatcher) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher: handleMessage panic recovered")
		}
	}()

	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Address     string   `json:"address"`
				Topics      []string `json:"topics"`
				Data        string   `json:"data"`
				BlockNumber string   `json:"blockNumber"`
			} `json:"result"`
		} `json:"params"`
	}

	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}

	if notification.Method != "eth_subscription" {
		// Likely the subscription confirmation response.
		var subResp struct {
			Result string `json:"result"`
		}
		if json.Unmarshal(data, &subResp) == nil && subResp.Result != "" {
			log.Debug().Str("sub_id", subResp.Result).Msg("watcher: subscription confirmed")
		}
		return
	}

	res := notification.Params.Result
	ev, err := parsePairCreatedLog(res.Topics, res.Data, res.BlockNumber)
	if err != nil {
		log.Debug().Err(err).Msg("watcher: unparseable log, dropping")
		return
	}

	w.pairsDetected.Add(1)

	w.mu.RLock()
	if !w.closed.Load() {
		select {
		case w.eventCh <- ev:
			log.Info().
				Str("token0", string(ev.Token0)).
				Str("token1", string(ev.Token1)).
				Str("pair", string(ev.Pair)).
				Uint64("block", ev.BlockNumber).
				Msg("watcher: NEW PAIR DETECTED")
		default:
			log.Warn().Msg("watcher: event channel full, dropping event")
		}
	}
	w.mu.RUnlock()
}

// parsePairCreatedLog decodes a PairCreated log entry.
// Topics: [signature, token0, token1]; data: pair address + pair count.
func parsePairCreatedLog(topics []string, data, blockNumber string) (PairCreatedEvent, error) {
	if len(topics) < 3 {
		return PairCreatedEvent{}, fmt.Errorf("watcher: expected 3 topics, got %d", len(topics))
	}

	token0, err := decodeAddress(topics[1], 0)
	if err != nil {
		return PairCreatedEvent{}, err
	}
	token1, err := decodeAddress(topics[2], 0)
	if err != nil {
		return PairCreatedEvent{}, err
	}
	pair, err := decodeAddress(data, 0)
	if err != nil {
		return PairCreatedEvent{}, err
	}
	block, err := hexToUint64(blockNumber)
	if err != nil {
		return PairCreatedEvent{}, err
	}

	return PairCreatedEvent{
		Token0:      token0,
		Token1:      token1,
		Pair:        pair,
		BlockNumber: block,
		DetectedAt:  time.Now(),
	}, nil
}

// WatcherStats returns watcher statistics.
type WatcherStats struct {
	Connected     bool  `json:"connected"`
	MessagesRecv  int64 `json:"messages_recv"`
	PairsDetected int64 `json:"pairs_detected"`
	Reconnects    int64 `json:"reconnects"`
}

func (w *PairWatcher) Stats() WatcherStats {
	return WatcherStats{
		Connected:     w.connected.Load(),
		MessagesRecv:  w.messagesRecv.Load(),
		PairsDetected: w.pairsDetected.Load(),
		Reconnects:    w.reconnects.Load(),
	}
}
