package main

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/docvault/internal/config"
	"github.com/fyrsmithlabs/docvault/internal/document"
	"github.com/fyrsmithlabs/docvault/internal/embeddings"
	"github.com/fyrsmithlabs/docvault/internal/logging"
	"github.com/fyrsmithlabs/docvault/internal/pipeline"
	"github.com/fyrsmithlabs/docvault/internal/quota"
	"github.com/fyrsmithlabs/docvault/internal/retrieval"
	"github.com/fyrsmithlabs/docvault/internal/upload"
	"github.com/fyrsmithlabs/docvault/internal/vectorstore"
)

// app wires the full service graph for CLI commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	ledger    *quota.Ledger
	repo      *document.Repository
	router    *vectorstore.Router
	manager   *document.Manager
	stager    *upload.Stager
	ingestor  *pipeline.Ingestor
	retrieval *retrieval.Service
}

// newApp loads configuration and constructs every service.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	ledger := quota.NewLedger(db, logger)
	if err := ledger.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating quota schema: %w", err)
	}

	repo := document.NewRepository(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating document schema: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	ephemeral, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.VectorStore.Chromem.Path,
		Compress:   cfg.VectorStore.Chromem.Compress,
		VectorSize: cfg.VectorStore.Chromem.VectorSize,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chromem store: %w", err)
	}

	var persistent vectorstore.Store
	if cfg.VectorStore.Provider == "pgvector" {
		pg, err := vectorstore.NewPgvectorStore(vectorstore.PgvectorConfig{
			DSN:        cfg.VectorStore.Pgvector.DSN,
			VectorSize: cfg.VectorStore.Pgvector.VectorSize,
		}, embedder, logger)
		if err != nil {
			// The router falls back to the ephemeral store; a dead
			// persistent backend must not block admin commands.
			logger.Warn("persistent vector store unavailable", zap.Error(err))
		} else {
			persistent = pg
		}
	}

	router, err := vectorstore.NewRouter(persistent, ephemeral, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store router: %w", err)
	}

	manager := document.NewManager(repo, ledger, router, logger)

	validator := upload.NewValidator(upload.ValidatorConfig{
		MaxFileSizeBytes: cfg.Upload.MaxFileSizeBytes,
	}, logger)

	stager, err := upload.NewStager(upload.StagerConfig{Dir: cfg.Upload.Dir}, validator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating upload stager: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		ledger:    ledger,
		repo:      repo,
		router:    router,
		manager:   manager,
		stager:    stager,
		ingestor:  pipeline.NewIngestor(manager, repo, router, nil, logger),
		retrieval: retrieval.NewService(ledger, router, logger),
	}, nil
}

// openDatabase opens the relational store for documents and quotas.
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// close releases held resources.
func (a *app) close() {
	if err := a.router.Close(); err != nil {
		a.logger.Warn("closing vector stores", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}
