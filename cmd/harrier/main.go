package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harrier-trading/harrier/internal/analyzer"
	"github.com/harrier-trading/harrier/internal/config"
	"github.com/harrier-trading/harrier/internal/evm"
	"github.com/harrier-trading/harrier/internal/executor"
	"github.com/harrier-trading/harrier/internal/observability"
	"github.com/harrier-trading/harrier/internal/pipeline"
	"github.com/harrier-trading/harrier/internal/state"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub chain client (no real node connection)")
	statePath := flag.String("state", "", "Override state file path")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *statePath != "" {
		cfg.Monitoring.StatePath = *statePath
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("HARRIER Token Sniper - Starting")
	log.Info().Msg("DISCOVER -> ANALYZE -> SCORE -> SNIPE -> SELL")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("network", cfg.Chain.Network).
		Bool("dry_run", cfg.General.IsDryRun()).
		Bool("stub_mode", *stubMode).
		Float64("default_amount", cfg.Trading.DefaultAmount).
		Float64("min_liquidity", cfg.Trading.MinLiquidity).
		Float64("max_liquidity", cfg.Trading.MaxLiquidity).
		Float64("score_threshold", cfg.Trading.MinScoreThreshold).
		Int("max_trades_per_hour", cfg.Trading.MaxTradesPerHour).
		Msg("Configuration loaded")

	// 3b. Validate configuration. Stub runs need no chain identity.
	if !*stubMode {
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Configuration validation failed")
		}
	}

	// 4. Create chain client.
	var client evm.ChainClient
	if *stubMode {
		client = evm.NewStubClient()
		log.Info().Msg("Chain client: STUB mode")
	} else {
		liveClient := evm.NewLiveClient(cfg.LiveConfig())
		client = liveClient

		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Health(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.Chain.RPCEndpoint).
				Msg("Node health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", cfg.Chain.RPCEndpoint).Msg("Chain client: LIVE - connected")
		}
		healthCancel()
	}

	// 5. Restore persisted state.
	botState := state.New()
	if err := botState.Load(cfg.Monitoring.StatePath); err != nil {
		log.Fatal().Err(err).Msg("State restore failed")
	}

	// 6. Wire the pipeline.
	var metrics *observability.Metrics
	if cfg.Server.MetricsEnabled {
		metrics = observability.New("harrier")
	}

	tokenAnalyzer := analyzer.New(cfg.AnalyzerConfig(), client)
	tradeExecutor := executor.New(cfg.ExecutorConfig(), client, botState)
	bot := pipeline.New(cfg.PipelineConfig(), client, tokenAnalyzer, cfg.GateConfig(), tradeExecutor, botState, metrics)

	// 7. Setup context and signals.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 8. Start the pipeline.
	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Pipeline start failed")
	}

	// 9. Start HTTP health/stats/control endpoint.
	server := buildHTTPServer(cfg, bot, metrics)
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server started (health + stats + control)")
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	// 10. Block until shutdown.
	<-ctx.Done()
	bot.Stop()
	log.Info().Msg("HARRIER Token Sniper - Shutdown complete")
}

func buildHTTPServer(cfg *config.Config, bot *pipeline.Bot, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()

	// ── Health ──
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"dry_run": cfg.General.IsDryRun(),
			"paused":  bot.IsPaused(),
		})
	})

	// ── Stats ──
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bot.GetStats())
	})

	// ── Token state machine ──
	mux.HandleFunc("/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bot.TokenStates())
	})

	// ── Control Plane ──
	mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		bot.Pause()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"paused"}`)
	})

	mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		bot.Resume()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"running"}`)
	})

	// ── Prometheus metrics ──
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "harrier").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "harrier").
			Str("instance", general.InstanceID).Logger()
	}
}
