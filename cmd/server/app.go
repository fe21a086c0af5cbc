package main

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"audiokit/internal/cache"
	"audiokit/internal/config"
	"audiokit/internal/database"
	"audiokit/internal/downloader"
	"audiokit/internal/library"
	"audiokit/internal/metrics"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	prom    *metrics.Prom
	db      *sql.DB
	library *library.Manager
	ytdlp   *downloader.YTDLP
	cache   *cache.Cache
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	db, err := database.Init(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	lib, err := library.NewManager(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init library: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewProm("audiokit", reg)

	ytdlp := downloader.NewYTDLP(cfg.YTDLPPath, cfg.DownloadTimeout, logger)
	c := cache.New(cache.Settings{
		Dir:            cfg.CacheDir,
		Retention:      cfg.Retention,
		AudioFormat:    cfg.AudioFormat,
		MaxFilesize:    cfg.MaxFilesize,
		ToolRetries:    cfg.YTDLPRetries,
		Attempts:       cfg.DownloadAttempts,
		RetryDelay:     cfg.RetryDelay,
		VerifyAttempts: cfg.VerifyAttempts,
		VerifyDelay:    cfg.VerifyDelay,
		Dedupe:         cfg.DedupeDownloads,
		StrictMatch:    cfg.StrictMatch,
	}, ytdlp,
		cache.WithIndex(lib),
		cache.WithMetrics(prom),
		cache.WithLogger(logger),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		prom:    prom,
		db:      db,
		library: lib,
		ytdlp:   ytdlp,
		cache:   c,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "err", err)
	}
}
