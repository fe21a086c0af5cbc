// Package server exposes the media analysis HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"audiokit/internal/metrics"
	"audiokit/internal/transcribe"
)

// Acquirer returns a local audio file for a remote media URL.
type Acquirer interface {
	Acquire(ctx context.Context, sourceURL string) (string, error)
}

// StreamResolver finds a directly playable audio URL without downloading.
type StreamResolver interface {
	ResolveAudioURL(ctx context.Context, sourceURL string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, params transcribe.Params) (*transcribe.Transcript, error)
	Subtitles(ctx context.Context, id, format string) (string, error)
	Task(ctx context.Context, transcriptIDs []string, prompt, model string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Library serves the persisted record of cached artifacts.
type Library interface {
	HandleList(w http.ResponseWriter, r *http.Request)
	HandleGet(w http.ResponseWriter, r *http.Request)
	HandleAudio(w http.ResponseWriter, r *http.Request)
	HandleDelete(w http.ResponseWriter, r *http.Request)
}

// Deps are the collaborators behind the API. Nil upstream clients disable
// the endpoints that need them.
type Deps struct {
	Cache       Acquirer
	Streams     StreamResolver
	Transcriber Transcriber
	Generator   Generator
	Translator  Translator
	Library     Library
	Metrics     metrics.HTTP
	Exporter    http.Handler
	Logger      *log.Logger
}

type Options struct {
	UploadLimit             int64
	AllowedOrigins          []string
	LemurModel              string
	ContentSafetyConfidence int
}

type Server struct {
	deps   Deps
	opts   Options
	logger *log.Logger
}

func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if opts.UploadLimit <= 0 {
		opts.UploadLimit = 500 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.ContentSafetyConfidence == 0 {
		opts.ContentSafetyConfidence = 60
	}
	return &Server{deps: deps, opts: opts, logger: deps.Logger.WithPrefix("http")}
}

// Handler builds the routed, CORS-wrapped API handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.observe)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Exporter != nil {
		r.Handle("/metrics", s.deps.Exporter).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/generate-blog", s.handleGenerateBlog).Methods(http.MethodPost)
	api.HandleFunc("/analyze-content", s.handleAnalyzeContent).Methods(http.MethodPost)
	api.HandleFunc("/translate-content", s.handleTranslateContent).Methods(http.MethodPost)
	api.HandleFunc("/fluency-analyzer", s.handleFluency).Methods(http.MethodPost)
	api.HandleFunc("/generate-subtitle", s.handleGenerateSubtitle).Methods(http.MethodPost)
	api.HandleFunc("/get-topics", s.handleTopics).Methods(http.MethodGet)
	api.HandleFunc("/translate-text", s.handleTranslateText).Methods(http.MethodPost)
	api.HandleFunc("/youtube/audio", s.handleYouTubeAudio).Methods(http.MethodPost)
	api.HandleFunc("/youtube/audio-url", s.handleYouTubeAudioURL).Methods(http.MethodGet)

	if lib := s.deps.Library; lib != nil {
		api.HandleFunc("/media", lib.HandleList).Methods(http.MethodGet)
		api.HandleFunc("/media/{id}", lib.HandleGet).Methods(http.MethodGet)
		api.HandleFunc("/media/{id}/audio", lib.HandleAudio).Methods(http.MethodGet)
		api.HandleFunc("/media/{id}", lib.HandleDelete).Methods(http.MethodDelete)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(r))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", fmt.Sprintf("http://localhost%s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}
