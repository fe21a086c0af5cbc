package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"audiokit/internal/analysis"
	"audiokit/internal/cache"
	"audiokit/internal/transcribe"
	"audiokit/internal/translate"
)

const (
	msgBlogFailed    = "An error occurred while generating the blog"
	msgAnalyzeFailed = "An error occurred while analyzing the content"
	msgRetry         = "An error occurred while analyzing the content. Please try again"
	msgTopicsFailed  = "Something went wrong with the request, try again"
	msgNoSafetyIssue = "This content has no content safety issues"
)

// transcribeRequest reads the request's media and waits for its transcript.
func (s *Server) transcribeRequest(w http.ResponseWriter, r *http.Request, params transcribe.Params) (*transcribe.Transcript, error) {
	if s.deps.Transcriber == nil {
		return nil, fmt.Errorf("transcription: %w", errUnavailable)
	}
	media, err := s.openMedia(w, r)
	if err != nil {
		return nil, err
	}
	defer media.Close()
	return s.deps.Transcriber.Transcribe(r.Context(), media, params)
}

func (s *Server) lemur(r *http.Request, t *transcribe.Transcript, prompt string) (string, error) {
	return s.deps.Transcriber.Task(r.Context(), []string{t.ID}, prompt, s.opts.LemurModel)
}

func (s *Server) handleGenerateBlog(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	t, err := s.transcribeRequest(w, r, transcribe.Params{})
	if err != nil {
		s.fail(w, r, err, msgBlogFailed)
		return
	}
	md, err := s.lemur(r, t, blogPrompt)
	if err != nil {
		s.fail(w, r, err, msgBlogFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"markdown": analysis.CleanMarkdown(md)})
}

func (s *Server) handleAnalyzeContent(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	t, err := s.transcribeRequest(w, r, transcribe.Params{
		ContentSafety:           true,
		ContentSafetyConfidence: s.opts.ContentSafetyConfidence,
	})
	if err != nil {
		s.fail(w, r, err, msgAnalyzeFailed)
		return
	}
	results := t.ContentSafetyLabels.Results
	if len(results) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"message": msgNoSafetyIssue})
		return
	}
	writeJSON(w, http.StatusOK, analysis.AnalyzeContent(results))
}

func (s *Server) handleTranslateContent(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	t, err := s.transcribeRequest(w, r, transcribe.Params{LanguageDetection: true})
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	target := r.FormValue("target_language")
	translation, err := s.lemur(r, t, translatePrompt(t.LanguageCode, target))
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"translation": translation,
		"transcript":  t.Text,
		"language":    t.LanguageCode,
	})
}

func (s *Server) handleFluency(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	t, err := s.transcribeRequest(w, r, transcribe.Params{Disfluencies: true})
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	suggestions, err := s.lemur(r, t, fluencyPrompt)
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suggestions": suggestions})
}

func (s *Server) handleGenerateSubtitle(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	t, err := s.transcribeRequest(w, r, transcribe.Params{LanguageDetection: true})
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	srt, err := s.deps.Transcriber.Subtitles(r.Context(), t.ID, "srt")
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}

	target := r.FormValue("target_language")
	if target == "en" {
		writeJSON(w, http.StatusOK, map[string]string{"subtitle": srt, "language": t.LanguageCode})
		return
	}
	name, err := translate.LanguageName(target)
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	translation, err := s.lemur(r, t, subtitlePrompt(t.LanguageCode, name, srt))
	if err != nil {
		s.fail(w, r, err, msgRetry)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"translation": translation,
		"subtitle":    srt,
		"language":    t.LanguageCode,
	})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Generator == nil {
		s.fail(w, r, fmt.Errorf("topics: %w", errUnavailable), msgTopicsFailed)
		return
	}
	topics, err := s.deps.Generator.Generate(r.Context(), topicsPrompt)
	if err != nil {
		s.fail(w, r, err, msgTopicsFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"topics": topics})
}

type translateTextRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

func (s *Server) handleTranslateText(w http.ResponseWriter, r *http.Request) {
	if s.deps.Translator == nil {
		s.fail(w, r, fmt.Errorf("translation: %w", errUnavailable), "")
		return
	}
	var req translateTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = "en"
	}
	out, err := s.deps.Translator.Translate(r.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		s.fail(w, r, err, "An error occurred while translating the text")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": out})
}

type audioResponse struct {
	ID   string `json:"id"`
	File string `json:"file"`
	Size int64  `json:"size"`
}

// sourceURL reads "url" from a JSON body or a form.
func sourceURL(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", err
		}
		return strings.TrimSpace(body.URL), nil
	}
	if err := parseForm(r); err != nil {
		return "", err
	}
	return strings.TrimSpace(r.FormValue("url")), nil
}

func (s *Server) handleYouTubeAudio(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)
	if s.deps.Cache == nil {
		s.fail(w, r, fmt.Errorf("media download: %w", errUnavailable), "")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	src, err := sourceURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if src == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	path, err := s.deps.Cache.Acquire(r.Context(), src)
	if err != nil {
		s.fail(w, r, err, "An error occurred while downloading the audio")
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		s.fail(w, r, fmt.Errorf("stat %s: %w", path, cache.ErrArtifactUnreadable), "")
		return
	}
	id, _ := cache.ExtractID(src)
	writeJSON(w, http.StatusOK, audioResponse{ID: id, File: filepath.Base(path), Size: info.Size()})
}

func (s *Server) handleYouTubeAudioURL(w http.ResponseWriter, r *http.Request) {
	if s.deps.Streams == nil {
		s.fail(w, r, fmt.Errorf("stream lookup: %w", errUnavailable), "")
		return
	}
	src := strings.TrimSpace(r.URL.Query().Get("url"))
	if src == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	audioURL, err := s.deps.Streams.ResolveAudioURL(r.Context(), src)
	if err != nil {
		s.fail(w, r, err, "Failed to resolve audio URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": audioURL})
}
