// Package app assembles the drafting engine from configuration.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/z-invoice/backend/internal/config"
	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/internal/service/document"
	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/engine"
	"github.com/zhouzirui/z-invoice/backend/internal/service/lookup"
	"github.com/zhouzirui/z-invoice/backend/internal/service/responder"
)

// App holds the wired services. Close releases the session store.
type App struct {
	Engine   *engine.Engine
	Channels channel.Store
	Store    draftstore.Store

	closers []func() error
}

// Build wires store, lookup, responder and pipeline as configured. Optional
// collaborators that fail to initialize are logged and skipped.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Channels: channel.NewMemoryStore(channel.Seed())}

	store, err := a.openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store

	var companies lookup.Lookup
	if cfg.Lookup.Enabled() {
		client, err := lookup.NewRegistryClient(lookup.RegistryConfig{
			BaseURL: cfg.Lookup.BaseURL,
			APIKey:  cfg.Lookup.APIKey,
			Timeout: cfg.Lookup.Timeout,
			Retries: cfg.Lookup.Retries,
		})
		if err != nil {
			log.Printf("warning: failed to initialize company registry: %v", err)
		} else {
			companies = client
			log.Printf("company registry enabled base=%s", cfg.Lookup.BaseURL)
		}
	} else {
		log.Println("LOOKUP_BASE_URL not set, every identifier is treated as unknown")
	}

	fallback := responder.NewFallback(cfg.Draft.VATPercent)
	var resp responder.Responder = fallback
	if cfg.AI.Enabled() {
		if generative, err := newGenerative(ctx, cfg, fallback); err != nil {
			log.Printf("warning: failed to initialize generative responder: %v", err)
			log.Println("continuing with rule-based replies only")
		} else {
			resp = generative
			log.Printf("generative responder enabled provider=%s model=%s", cfg.AI.Provider, cfg.AI.Model)
		}
	} else {
		log.Println("model credentials not set, using rule-based replies")
	}

	eng, err := engine.New(engine.Options{
		Store:      store,
		Responder:  resp,
		Lookup:     companies,
		Pipeline:   document.NewMemoryPipeline(cfg.Draft.DocumentSeries),
		Channels:   a.Channels,
		VATPercent: &cfg.Draft.VATPercent,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.Engine = eng
	return a, nil
}

func (a *App) openStore(cfg config.StoreConfig) (draftstore.Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		store, err := draftstore.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		log.Printf("session store: sqlite path=%s", cfg.DBPath)
		return store, nil
	default:
		log.Println("session store: memory")
		return draftstore.NewMemoryStore(), nil
	}
}

func newGenerative(ctx context.Context, cfg *config.Config, fallback *responder.Fallback) (*responder.Generative, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	backend, err := responder.NewChainBackend(ctx, chatModel)
	if err != nil {
		return nil, err
	}
	return responder.NewGenerative(backend, fallback, cfg.Draft.HistoryLimit), nil
}

// Close releases resources opened by Build.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
