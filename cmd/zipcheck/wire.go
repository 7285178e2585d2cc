package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/pola2025/zipcheck-sub000/config"
	"github.com/pola2025/zipcheck-sub000/contextdata"
	"github.com/pola2025/zipcheck-sub000/notify"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/provider/openai"
	"github.com/pola2025/zipcheck-sub000/store"
	"github.com/pola2025/zipcheck-sub000/store/memory"
	"github.com/pola2025/zipcheck-sub000/store/postgres"
	redisstore "github.com/pola2025/zipcheck-sub000/store/redis"
	"github.com/pola2025/zipcheck-sub000/store/sqlite"
)

// app is everything built from the configuration. close releases it in
// reverse order.
type app struct {
	logger *slog.Logger
	store  store.Store
	orch   *orchestrator.Orchestrator
	async  *notify.Async
	closer []func() error
}

func (a *app) close(ctx context.Context) {
	if a.async != nil {
		if err := a.async.Close(ctx); err != nil {
			a.logger.Warn("notification drain incomplete", "error", err)
		}
	}
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (store.Store, []func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.New(), nil, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, []func() error{s.Close}, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, []func() error{s.Close}, nil
	case config.DriverRedis:
		client, err := newRedisClient(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, redisstore.WithLogger(logger)), []func() error{client.Close}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newRedisClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

func newProvider(cfg config.Provider) provider.Provider {
	var p provider.Provider = openai.New(cfg.APIKey, openai.WithBaseURL(cfg.BaseURL))
	if cfg.RequestsPerSecond > 0 {
		p = provider.RateLimited(p, rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)))
	}
	return p
}

func newContextProvider(cfg config.Context, logger *slog.Logger) (contextdata.Provider, []func() error, error) {
	if cfg.PriceBook == "" {
		return nil, nil, nil
	}
	pb, err := contextdata.LoadPriceBook(cfg.PriceBook)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		return pb, nil, nil
	}
	client, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return contextdata.NewCached(pb, client, cfg.CacheTTL, logger), []func() error{client.Close}, nil
}

func newNotifier(cfg config.Notify, logger *slog.Logger) (*notify.Async, []notify.Type, []func() error, error) {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	var closers []func() error

	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL))
	}
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, client.Close)
		channel := cfg.RedisChannel
		if channel == "" {
			channel = notify.DefaultChannel
		}
		sinks = append(sinks, notify.NewRedisSink(client, channel))
	}

	var types []notify.Type
	for _, name := range cfg.Events {
		switch t := notify.Type(name); t {
		case notify.TypeCompletion, notify.TypeThreshold, notify.TypeError, notify.TypeCanceled:
			types = append(types, t)
		default:
			return nil, nil, nil, fmt.Errorf("unknown notification event %q", name)
		}
	}
	return notify.NewAsync(sinks, cfg.Buffer, logger), types, closers, nil
}

// build wires the application from cfg.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	st, closers, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closer = append(a.closer, closers...)

	cp, closers, err := newContextProvider(cfg.Context, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("context data: %w", err)
	}
	a.closer = append(a.closer, closers...)

	async, types, closers, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("notifications: %w", err)
	}
	a.async = async
	a.closer = append(a.closer, closers...)

	var notifyOpts []notify.Option
	if len(types) > 0 {
		notifyOpts = append(notifyOpts, notify.WithEvents(types...))
	}
	opts := []orchestrator.Option{
		orchestrator.WithConfig(cfg.EngineConfig()),
		orchestrator.WithLogger(logger),
		orchestrator.WithExtension(notify.New(async, notifyOpts...)),
	}
	if cp != nil {
		opts = append(opts, orchestrator.WithContextProvider(cp))
	}

	orch, err := orchestrator.New(st, newProvider(cfg.Provider), opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.orch = orch
	return a, nil
}
