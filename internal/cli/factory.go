// Package cli wires configuration into a running orchestrator and holds the
// command implementations shared by cmd/switchboard.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	antoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/config"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/adapters/anthropic"
	"github.com/aretw0/switchboard/pkg/adapters/badger"
	"github.com/aretw0/switchboard/pkg/adapters/file"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/openai"
	"github.com/aretw0/switchboard/pkg/adapters/redis"
	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/adapters/sqlite"
	"github.com/aretw0/switchboard/pkg/adapters/tavily"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/observability"
	"github.com/aretw0/switchboard/pkg/persistence/middleware"
	"github.com/aretw0/switchboard/pkg/ports"
	oaoption "github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// App is an orchestrator together with the resources it owns.
type App struct {
	Orchestrator *switchboard.Orchestrator
	Registry     *prometheus.Registry
	Logger       *slog.Logger
	Config       *config.Config

	closers []func() error
}

// BuildOption adjusts how Build assembles the App.
type BuildOption func(*buildOptions)

type buildOptions struct {
	model     ports.DecisionModel
	traceOut  io.Writer
	logger    *slog.Logger
	extraOpts []switchboard.Option
}

// WithModelOverride bypasses the configured provider.
func WithModelOverride(m ports.DecisionModel) BuildOption {
	return func(o *buildOptions) {
		o.model = m
	}
}

// WithTraceWriter sets where spans are exported when tracing is enabled
// (default: stderr).
func WithTraceWriter(w io.Writer) BuildOption {
	return func(o *buildOptions) {
		o.traceOut = w
	}
}

// WithAppLogger replaces the logger built from the log section.
func WithAppLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = l
	}
}

// WithOrchestratorOptions appends raw orchestrator options after the
// configured ones.
func WithOrchestratorOptions(opts ...switchboard.Option) BuildOption {
	return func(o *buildOptions) {
		o.extraOpts = append(o.extraOpts, opts...)
	}
}

// NewLogger builds the application logger from the log section.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.Format(cfg.Format)), nil
}

// Build assembles the orchestrator described by cfg. The caller must Close
// the returned App.
func Build(ctx context.Context, cfg *config.Config, opts ...BuildOption) (_ *App, err error) {
	bo := buildOptions{traceOut: os.Stderr}
	for _, opt := range opts {
		opt(&bo)
	}

	app := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Logger = bo.logger
	if app.Logger == nil {
		if app.Logger, err = NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	hooks := []domain.LifecycleHooks{metrics.Hooks(), debugHooks(app.Logger)}

	model := bo.model
	if model == nil {
		if model, err = newModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := observability.NewStdoutTracerProvider(bo.traceOut)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		app.closers = append(app.closers, func() error {
			return tp.Shutdown(context.WithoutCancel(ctx))
		})
		model = observability.TraceModel(model, nil)
		hooks = append(hooks, observability.TracingHooks())
	}

	store, hydrator, err := app.newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	orcOpts := []switchboard.Option{
		switchboard.WithLogger(app.Logger),
		switchboard.WithModel(model),
		switchboard.WithStore(store),
		switchboard.WithLifecycleHooks(domain.Merge(hooks...)),
		switchboard.WithAttemptCeiling(cfg.Engine.AttemptCeiling),
		switchboard.WithLoopCeiling(cfg.Engine.LoopCeiling),
		switchboard.WithDecisionTimeout(cfg.Engine.DecisionTimeout),
		switchboard.WithFallbackReply(cfg.Engine.FallbackReply),
		switchboard.WithBreakerReply(cfg.Engine.BreakerReply),
		switchboard.WithSearchResults(cfg.Search.MaxResults),
		switchboard.WithSearchThreshold(cfg.Search.ScoreThreshold),
	}
	if hydrator != nil {
		orcOpts = append(orcOpts, switchboard.WithHydrator(hydrator))
	}
	if locker := app.newLocker(cfg); locker != nil {
		orcOpts = append(orcOpts, switchboard.WithLocker(locker, cfg.Lock.TTL))
	}
	if cfg.Search.Provider == "tavily" {
		var topts []tavily.Option
		if cfg.Search.BaseURL != "" {
			topts = append(topts, tavily.WithBaseURL(cfg.Search.BaseURL))
		}
		if len(cfg.Search.IncludeDomains) > 0 {
			topts = append(topts, tavily.WithIncludeDomains(cfg.Search.IncludeDomains...))
		}
		orcOpts = append(orcOpts, switchboard.WithSearcher(tavily.New(cfg.Search.APIKey, topts...)))
	}
	orcOpts = append(orcOpts, bo.extraOpts...)

	app.Orchestrator, err = switchboard.New(orcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}
	app.Logger.Debug("orchestrator ready",
		"model", cfg.Model.Provider,
		"store", cfg.Store.Kind,
		"search", cfg.Search.Provider,
		"tracing", cfg.Tracing.Enabled,
	)
	return app, nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newModel(cfg config.ModelConfig) (ports.DecisionModel, error) {
	switch cfg.Provider {
	case "openai":
		var copts []oaoption.RequestOption
		if cfg.APIKey != "" {
			copts = append(copts, oaoption.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			copts = append(copts, oaoption.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewModel(copts, func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case "anthropic":
		var copts []antoption.RequestOption
		if cfg.APIKey != "" {
			copts = append(copts, antoption.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			copts = append(copts, antoption.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.NewModel(copts, func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case "scripted":
		return scripted.New(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// newStore opens the configured store and wraps it with the persistence
// middleware. The sqlite store doubles as the snapshot hydrator.
func (a *App) newStore(cfg config.StoreConfig) (ports.StateStore, ports.Hydrator, error) {
	var (
		store    ports.StateStore
		hydrator ports.Hydrator
	)
	switch cfg.Kind {
	case "memory":
		store = memory.NewStore()
	case "file":
		store = file.New(cfg.Path)
	case "redis":
		var ropts []redis.Option
		if cfg.TTL > 0 {
			ropts = append(ropts, redis.WithTTL(cfg.TTL))
		}
		if cfg.Prefix != "" {
			ropts = append(ropts, redis.WithPrefix(cfg.Prefix))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, 0, ropts...)
		a.closers = append(a.closers, rs.Close)
		store = rs
	case "badger":
		bs, err := badger.Open(badger.Config{Path: cfg.Path, TTL: cfg.TTL, Logger: a.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		a.closers = append(a.closers, bs.Close)
		store = bs
	case "sqlite":
		ss, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, ss.Close)
		store, hydrator = ss, ss
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Redact)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, pii)
	}
	key, err := cfg.Key()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if key != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), hydrator, nil
}

// newLocker returns a redis locker when lock.redis_addr is set, or when the
// store itself is redis. Otherwise turns are only serialized in-process.
func (a *App) newLocker(cfg *config.Config) ports.DistributedLocker {
	addr, password := cfg.Lock.RedisAddr, ""
	if addr == "" && cfg.Store.Kind == "redis" {
		addr, password = cfg.Store.RedisAddr, cfg.Store.RedisPassword
	}
	if addr == "" {
		return nil
	}
	client := backend.NewClient(&backend.Options{Addr: addr, Password: password})
	a.closers = append(a.closers, client.Close)
	return redis.NewLocker(client, cfg.Store.Prefix)
}
