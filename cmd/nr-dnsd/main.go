package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nullroute/nr-dns/internal/dns/common/log"
	"github.com/nullroute/nr-dns/internal/dns/config"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules/bloom"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules/lru"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules/pattern"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules/sqlite"
	"github.com/nullroute/nr-dns/internal/dns/services/engine"
)

const (
	version = "0.1.0-dev"
	appName = "nr-dnsd"
)

// Application holds the classification engine and its owned resources.
// Resolver frontends attach to the engine; the daemon itself only manages
// lifecycle.
type Application struct {
	config *config.AppConfig
	engine *engine.Engine
	store  *sqlite.Store
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"store":      cfg.Store.Path,
		"pool":       cfg.Store.Pool,
		"cache_size": cfg.Cache.Size,
	}, "Starting nr-dns classification engine")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// One-shot mode: classify the names given on the command line and exit.
	if len(os.Args) > 1 {
		app.classifyArgs(os.Args[1:])
		app.Close()
		return
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	app.Run(ctx)
	log.Info(nil, "nr-dns stopped gracefully")
}

// buildApplication constructs the engine in its one-shot init order: open the
// store, build the decision cache, size and load the bloom filter, hook up
// the pattern cache, then publish the engine.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	store, err := sqlite.New(sqlite.Options{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.Pool,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}

	cache, err := lru.New(cfg.Cache.Size)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	bloomFilter, err := rules.BuildBloom(store, bloom.NewFactory(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build bloom filter: %w", err)
	}

	matcher := pattern.New(store.IteratePatterns, logger)

	repo := rules.NewRepository(rules.RepositoryOptions{
		Store:    store,
		Cache:    cache,
		Bloom:    bloomFilter,
		Patterns: matcher,
		Logger:   logger,
	})

	sets, err := cfg.AddressSets()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid routing addresses: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Classifier: repo,
		Aliases:    store,
		Rewrites:   store,
		Addresses:  sets,
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	stats := store.Stats()
	log.Info(map[string]any{
		"regex":    stats.RegexRows,
		"exact":    stats.ExactRows,
		"wildcard": stats.WildcardRows,
		"allow":    stats.AllowRows,
		"block":    stats.BlockRows,
		"alias":    stats.AliasEnabled,
	}, "Classification engine ready")

	return &Application{config: cfg, engine: eng, store: store}, nil
}

// classifyArgs resolves each name on the command line and prints the result.
func (app *Application) classifyArgs(names []string) {
	for _, name := range names {
		d := app.engine.Classify(name)
		if d.MatchedRule != "" {
			fmt.Printf("%s\t%s\t%s (%s)\n", name, d.Kind, d.MatchedRule, d.Source)
		} else {
			fmt.Printf("%s\t%s\n", name, d.Kind)
		}
	}
}

// Run blocks until the context is cancelled, then tears the engine down.
func (app *Application) Run(ctx context.Context) {
	<-ctx.Done()
	app.Close()
}

// Close releases engine resources and logs final statistics.
func (app *Application) Close() {
	app.engine.Close()
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing rule store")
	}
}
