package server

import (
	"errors"
	"net/http"

	"audiokit/internal/cache"
	"audiokit/internal/downloader"
	"audiokit/internal/transcribe"
	"audiokit/internal/translate"
)

// statusFor maps an error to a response status and client-facing message.
// Unrecognized errors get fallback so upstream details stay in the logs.
func statusFor(err error, fallback string) (int, string) {
	var (
		upload     *uploadError
		transcript *transcribe.TranscriptError
	)
	switch {
	case errors.As(err, &upload):
		return http.StatusBadRequest, "Upload error: " + upload.Error()
	case errors.Is(err, errNoMedia):
		return http.StatusBadRequest, errNoMedia.Error()
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, cache.ErrInvalidReference):
		return http.StatusBadRequest, "Invalid YouTube URL"
	case errors.Is(err, cache.ErrDownloadFailed),
		errors.Is(err, cache.ErrArtifactMissing),
		errors.Is(err, cache.ErrArtifactUnreadable):
		return http.StatusBadGateway, "Failed to download audio"
	case errors.Is(err, downloader.ErrNoAudioFormat):
		return http.StatusNotFound, "No audio only format found"
	case errors.As(err, &transcript):
		return http.StatusBadRequest, transcript.Message
	case errors.Is(err, translate.ErrUnknownLanguage):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, fallback
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, msg := statusFor(err, fallback)
	logger := loggerFrom(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error(fallback, "err", err)
	} else {
		logger.Warn("request rejected", "status", status, "err", err)
	}
	writeError(w, status, msg)
}
