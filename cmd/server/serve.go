package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audiokit/internal/config"
	"audiokit/internal/generate"
	"audiokit/internal/server"
	"audiokit/internal/transcribe"
	"audiokit/internal/translate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{
		Cache:    a.cache,
		Streams:  a.ytdlp,
		Library:  a.library,
		Metrics:  a.prom,
		Exporter: a.prom.Handler(),
		Logger:   logger,
	}
	if secrets.AssemblyAIKey != "" {
		deps.Transcriber = transcribe.NewClient(secrets.AssemblyAIKey, cfg.PollInterval, logger)
	} else {
		logger.Warn("ASSEMBLYAI_API_KEY not set; transcription endpoints disabled")
	}
	if key := secrets.Gemini(); key != "" {
		g, err := generate.NewGemini(ctx, key, cfg.GeminiModel, logger)
		if err != nil {
			return err
		}
		deps.Generator = g
	} else {
		logger.Warn("GEMINI_API_KEY not set; topic generation disabled")
	}
	if secrets.GoogleKey != "" {
		t, err := translate.NewGoogle(ctx, secrets.GoogleKey)
		if err != nil {
			return err
		}
		defer t.Close()
		deps.Translator = t
	} else {
		logger.Warn("GOOGLE_API_KEY not set; text translation disabled")
	}

	go a.sweep(ctx)

	srv := server.New(deps, server.Options{
		UploadLimit:             cfg.UploadLimitBytes(),
		AllowedOrigins:          cfg.AllowedOrigins,
		LemurModel:              cfg.LemurModel,
		ContentSafetyConfidence: cfg.ContentSafetyConfidence,
	})
	return srv.ListenAndServe(ctx, cfg.Addr())
}

// sweep evicts expired artifacts between requests so an idle server does not
// hold stale audio until the next acquisition.
func (a *app) sweep(ctx context.Context) {
	interval := a.cfg.Retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.cache.Prune(ctx); err != nil {
				a.logger.Warn("periodic cleanup failed", "err", err)
			}
		}
	}
}
