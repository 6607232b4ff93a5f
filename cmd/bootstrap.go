package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/samsaffron/chatstream/internal/config"
	"github.com/samsaffron/chatstream/internal/embedding"
	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/logger"
	"github.com/samsaffron/chatstream/internal/orchestrator"
	"github.com/samsaffron/chatstream/internal/prompt"
	"github.com/samsaffron/chatstream/internal/retrieval"
	"github.com/samsaffron/chatstream/internal/session"
	"github.com/samsaffron/chatstream/internal/store"
	"github.com/samsaffron/chatstream/internal/usage"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// app holds everything a command needs to run turns.
type app struct {
	cfg         *config.Config
	logger      *log.Logger
	registry    *llm.Registry
	sessions    *session.Store
	store       store.Store
	index       *retrieval.Index
	usage       *usage.Logger
	coordinator *orchestrator.Coordinator

	closers []io.Closer
}

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	l, closer, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	a.logger = l
	a.closers = append(a.closers, closer)

	a.registry, err = llm.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a.store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	embedder, err := embedding.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	a.index = retrieval.NewIndex(embedder,
		retrieval.WithChunking(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		retrieval.WithLogger(l.WithPrefix("retrieval")))
	if !a.index.Enabled() {
		l.Info("retrieval disabled: no embedding provider configured")
	}

	persona, err := prompt.Load(cfg.Prompt.Persona)
	if err != nil {
		return nil, err
	}

	if cfg.Usage.Enabled {
		a.usage = usage.NewLogger(cfg.Usage.Dir)
	}

	a.sessions = session.NewStore(cfg.Session.MaxHistory)
	opts := orchestrator.Options{
		Registry:     a.registry,
		Sessions:     a.sessions,
		Store:        a.store,
		Retriever:    a.index,
		Logger:       l,
		System:       persona.System(),
		HistoryTurns: cfg.Prompt.HistoryTurns,
		RetrievalK:   cfg.Prompt.RetrievalK,
	}
	if a.usage != nil {
		opts.Usage = a.usage
	}
	a.coordinator, err = orchestrator.New(opts)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	if !cfg.Storage.Enabled {
		return &store.NoopStore{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
