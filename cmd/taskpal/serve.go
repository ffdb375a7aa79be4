package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/taskpal/internal/config"
	"github.com/ent0n29/taskpal/internal/dialogue"
	"github.com/ent0n29/taskpal/internal/httpapi"
	"github.com/ent0n29/taskpal/internal/llm"
	"github.com/ent0n29/taskpal/internal/logging"
	"github.com/ent0n29/taskpal/internal/memory"
	"github.com/ent0n29/taskpal/internal/observability"
	"github.com/ent0n29/taskpal/internal/scheduler"
	"github.com/ent0n29/taskpal/internal/selection"
	"github.com/ent0n29/taskpal/internal/tasks"
	"github.com/ent0n29/taskpal/internal/transport"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat front ends, HTTP API and notification loops",
		RunE:  runServe,
	}
}

func loadRuntime() (config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	closer, err := logging.Setup(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logging setup: %w", err)
	}
	return cfg, func() { _ = closer.Close() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, closeLogs, err := loadRuntime()
	if err != nil {
		return err
	}
	defer closeLogs()
	log := logging.Component("main")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	digestHour, digestMinute, err := cfg.DigestClock()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskStore, err := tasks.NewStore(ctx, cfg.DatabaseURL, loc)
	if err != nil {
		return fmt.Errorf("task store init failed: %w", err)
	}
	defer taskStore.Close()

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MemoryMaxTurns)
	if err != nil {
		return fmt.Errorf("memory store init failed: %w", err)
	}
	defer memoryStore.Close()

	var sessionStore selection.Store
	var redisStore *selection.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = selection.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("selection store init failed: %w", err)
		}
		defer redisStore.Close()
		sessionStore = redisStore
		log.Info("selection sessions: redis")
	} else {
		sessionStore = selection.NewMemoryStore()
		log.Info("selection sessions: in-memory")
	}
	sessions := selection.NewManager(taskStore, sessionStore)

	provider, err := llm.New(ctx, llm.Config{
		Mode:         cfg.LLMMode,
		HTTPURL:      cfg.LLMHTTPURL,
		HTTPAPIKey:   cfg.LLMHTTPAPIKey,
		HTTPModel:    cfg.LLMHTTPModel,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		Timeout:      cfg.LLMTimeout,
	})
	if err != nil {
		return fmt.Errorf("llm provider init failed: %w", err)
	}
	if fp, ok := provider.(*llm.FallbackProvider); ok {
		fp.SetErrorHook(func(name string, err error) {
			log.Warn("llm provider failed", "provider", name, "err", err)
			metrics.ObserveIndicator("provider_failover:" + name)
		})
		defer fp.Close()
	} else if c, ok := provider.(interface{ Close() error }); ok {
		defer c.Close()
	}
	log.Info("llm provider ready", "provider", provider.Name())

	coordinator := dialogue.NewCoordinator(taskStore, sessions, provider, dialogue.Config{
		Location:     loc,
		HistoryTurns: cfg.MemoryContextTurns,
		Memory:       memoryStore,
		Metrics:      metrics,
	})

	hub := httpapi.NewHub(metrics)
	sinks := transport.NewMultiSink()
	sinks.Add("websocket", hub)

	var bot *transport.TelegramBot
	if cfg.TelegramBotToken != "" {
		bot = transport.NewTelegramBot(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramPollTimeout)
		sinks.Add("telegram", bot)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set; telegram front end disabled")
	}

	var natsSink *transport.NATSSink
	if cfg.NATSURL != "" {
		nc, err := transport.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return err
		}
		natsSink = transport.NewNATSSink(nc)
		defer natsSink.Close()
		sinks.Add("nats", natsSink)
	}

	api := httpapi.New(cfg, coordinator, taskStore, hub, metrics)
	if pg, ok := taskStore.(interface{ Ping(context.Context) error }); ok {
		api.AddReadyCheck("postgres", pg.Ping)
	}
	if redisStore != nil {
		api.AddReadyCheck("redis", redisStore.Ping)
	}

	sched := scheduler.New(taskStore, sinks, scheduler.Config{
		AlertPeriod:  cfg.AlertPeriod,
		AlertWindow:  cfg.AlertWindow,
		DigestHour:   digestHour,
		DigestMinute: digestMinute,
		RetryBackoff: cfg.DigestRetryBackoff,
		Location:     loc,
		Metrics:      metrics,
		// In-flight sends may use the same grace period as the HTTP server.
		ShutdownGrace: cfg.ShutdownTimeout,
	})

	var background []<-chan struct{}
	background = append(background, goDone(func() { sched.Run(ctx) }))
	if bot != nil {
		background = append(background, goDone(func() {
			_ = bot.Poll(ctx, telegramHandler(coordinator, metrics, log))
		}))
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("listen error: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	for _, done := range background {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("background loops did not stop before the shutdown timeout")
		}
	}

	log.Info("shutdown complete")
	return runErr
}

func telegramHandler(chat *dialogue.Coordinator, metrics *observability.Metrics, log *slog.Logger) transport.MessageHandler {
	return func(ctx context.Context, ownerID int64, text string) (string, error) {
		metrics.IncInbound("telegram")
		reply, err := chat.HandleMessage(ctx, ownerID, text)
		if err != nil {
			return "", err
		}
		log.Debug("telegram reply", "owner_id", ownerID, "kind", reply.Kind)
		return reply.Text, nil
	}
}

func goDone(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}
