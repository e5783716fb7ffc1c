package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/parley-go/parley/pkg/core"
	"github.com/parley-go/parley/pkg/core/providers/gemini"
	"github.com/parley-go/parley/pkg/core/providers/openai"
	"github.com/parley-go/parley/pkg/server"
)

type serverDeps struct {
	loadConfig     func() (server.Config, error)
	buildProviders func(context.Context, server.Config, *slog.Logger) ([]core.Provider, error)
	signalNotify   func(chan<- os.Signal, ...os.Signal)
	signalStop     func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:     server.LoadFromEnv,
		buildProviders: buildProviders,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildProviders assembles the completion chain in priority order. A missing
// key disables that tier; an empty chain is valid and the engine degrades.
func buildProviders(ctx context.Context, cfg server.Config, logger *slog.Logger) ([]core.Provider, error) {
	var providers []core.Provider

	if cfg.GeminiAPIKey != "" {
		p, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		providers = append(providers, p)
		logger.Info("provider enabled", "provider", p.Name(), "model", cfg.GeminiModel)
	}

	if cfg.OpenAIAPIKey != "" {
		p := openai.New(cfg.OpenAIAPIKey, openai.WithModel(cfg.OpenAIModel))
		providers = append(providers, p)
		logger.Info("provider enabled", "provider", p.Name(), "model", cfg.OpenAIModel)
	}

	if len(providers) == 0 {
		logger.Warn("no provider keys configured, all replies will be degraded")
	}

	return providers, nil
}

func buildHTTPServer(cfg server.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildProviders == nil {
		return errors.New("missing buildProviders dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := deps.buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metrics := server.NewMetrics()
	for i, p := range providers {
		providers[i] = metrics.InstrumentProvider(p)
	}

	registry := core.NewRegistry(core.DefaultScenarios()...)
	store := core.NewSessionStore()
	engine := core.NewEngine(registry, store, providers,
		core.WithMaxTokens(cfg.MaxTokens),
		core.WithLogger(logger),
		core.WithDegradedHook(metrics.CountDegradedReply),
	)

	srv := server.New(cfg, logger, engine, registry, metrics)
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting chat server", "addr", cfg.Addr, "providers", engine.Providers())

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("chat server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	// Missing .env is fine; the environment may carry everything already.
	_ = godotenv.Load()

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "parley-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
