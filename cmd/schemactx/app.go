package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/schemactx/internal/config"
	"github.com/fyrsmithlabs/schemactx/internal/embeddings"
	"github.com/fyrsmithlabs/schemactx/internal/logging"
	"github.com/fyrsmithlabs/schemactx/internal/retrieval"
	"github.com/fyrsmithlabs/schemactx/internal/telemetry"
	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

const shutdownTimeout = 10 * time.Second

// app holds the components one command invocation runs against.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	embedder embeddings.Provider
	store    vectorstore.Store
	engine   *retrieval.Engine
}

// newApp loads configuration and builds the logger, telemetry, embedder,
// store and engine. The caller must call close.
func newApp(ctx context.Context, configPath string, stderr io.Writer) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logCfg, stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	a.tel, err = telemetry.Start(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if reason := a.tel.Degraded(); reason != "" {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	a.embedder, err = embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Dimension: cfg.Embeddings.Dimension,
		Metrics:   embeddings.NewMetrics(logger.Zap()),
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	a.store, err = vectorstore.NewStore(cfg, logger.Zap())
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	a.engine, err = retrieval.NewEngine(a.embedder, a.store,
		retrieval.WithLogger(logger),
		retrieval.WithTracer(a.tel.Tracer("github.com/fyrsmithlabs/schemactx/internal/retrieval")),
		retrieval.WithIngestConcurrency(cfg.Retrieval.IngestConcurrency),
	)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	logger.Debug(ctx, "components initialized",
		zap.String("store", cfg.Store.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", cfg.Embeddings.Dimension),
	)
	return a, nil
}

// close releases the store, embedder and telemetry providers. It uses a fresh
// context so that an interrupted command still flushes.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if a.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.tel.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error(ctx, "shutdown failed", zap.Error(err))
		return err
	}
	_ = a.logger.Sync()
	return nil
}

// requestContext tags ctx with a fresh request id and the tenant.
func requestContext(ctx context.Context, tenant vectorstore.Tenant) context.Context {
	return logging.WithScope(ctx, logging.Scope{
		RequestID:    uuid.NewString(),
		UserID:       tenant.UserID,
		ConnectionID: tenant.ConnectionID,
	})
}

// run builds the app, runs fn and closes the app, returning fn's error first.
func run(ctx context.Context, g *globalFlags, stderr io.Writer, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx, g.configPath, stderr)
	if err != nil {
		return err
	}
	err = fn(requestContext(ctx, g.tenant()), a)
	if cerr := a.close(ctx); err == nil {
		err = cerr
	}
	return err
}

func (g *globalFlags) tenant() vectorstore.Tenant {
	return vectorstore.Tenant{UserID: g.userID, ConnectionID: g.connectionID}
}
