package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"audiokit/internal/analysis"
)

const defaultBaseURL = "https://api.assemblyai.com"

// Params selects the optional models run on a transcript.
type Params struct {
	AudioURL                string `json:"audio_url"`
	ContentSafety           bool   `json:"content_safety,omitempty"`
	ContentSafetyConfidence int    `json:"content_safety_confidence,omitempty"`
	LanguageDetection       bool   `json:"language_detection,omitempty"`
	Disfluencies            bool   `json:"disfluencies,omitempty"`
}

type ContentSafety struct {
	Status  string            `json:"status"`
	Results []analysis.Result `json:"results"`
}

type Transcript struct {
	ID                  string        `json:"id"`
	Status              string        `json:"status"`
	Text                string        `json:"text"`
	LanguageCode        string        `json:"language_code"`
	Error               string        `json:"error"`
	ContentSafetyLabels ContentSafety `json:"content_safety_labels"`
}

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Client talks to the AssemblyAI REST API.
type Client struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	logger       *log.Logger
}

func NewClient(apiKey string, pollInterval time.Duration, logger *log.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 5 * time.Minute},
		pollInterval: pollInterval,
		logger:       logger.WithPrefix("assemblyai"),
	}
}

// Transcribe uploads audio, submits a transcript job and waits for it.
// A job that ends in the error state is returned with a *TranscriptError.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, params Params) (*Transcript, error) {
	uploadURL, err := c.Upload(ctx, audio)
	if err != nil {
		return nil, err
	}
	params.AudioURL = uploadURL
	t, err := c.Submit(ctx, params)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("transcript submitted", "id", t.ID)
	return c.Wait(ctx, t.ID)
}

// Upload sends raw audio bytes and returns the private URL to transcribe.
func (c *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", audio)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	// The body is a stream, so uploads are attempted once.
	if err := c.send(req, &out); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if out.UploadURL == "" {
		return "", errors.New("upload: empty upload_url in response")
	}
	return out.UploadURL, nil
}

func (c *Client) Submit(ctx context.Context, params Params) (*Transcript, error) {
	var t Transcript
	if err := c.doJSON(ctx, http.MethodPost, "/v2/transcript", params, &t); err != nil {
		return nil, fmt.Errorf("submit transcript: %w", err)
	}
	return &t, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	if err := c.doJSON(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", id, err)
	}
	return &t, nil
}

// Wait polls the transcript until it completes or fails.
func (c *Client) Wait(ctx context.Context, id string) (*Transcript, error) {
	for {
		t, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch t.Status {
		case StatusCompleted:
			return t, nil
		case StatusError:
			return t, &TranscriptError{ID: id, Message: t.Error}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Subtitles exports a completed transcript as "srt" or "vtt".
func (c *Client) Subtitles(ctx context.Context, id, format string) (string, error) {
	if format != "srt" && format != "vtt" {
		return "", fmt.Errorf("unsupported subtitle format %q", format)
	}
	var body string
	err := retryWithBackoff(ctx, 3, transient, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+url.PathEscape(id)+"/"+format, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		raw, err := c.raw(req)
		body = string(raw)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("subtitles %s: %w", id, err)
	}
	return body, nil
}

type taskRequest struct {
	TranscriptIDs []string `json:"transcript_ids"`
	Prompt        string   `json:"prompt"`
	FinalModel    string   `json:"final_model,omitempty"`
}

type taskResponse struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response"`
}

// Task runs a LeMUR prompt over the given transcripts.
func (c *Client) Task(ctx context.Context, transcriptIDs []string, prompt, model string) (string, error) {
	var out taskResponse
	req := taskRequest{TranscriptIDs: transcriptIDs, Prompt: prompt, FinalModel: model}
	if err := c.doJSON(ctx, http.MethodPost, "/lemur/v3/generate/task", req, &out); err != nil {
		return "", fmt.Errorf("lemur task: %w", err)
	}
	return out.Response, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}
	// A POST that failed server-side may already have created a billed job.
	policy := retryPolicy(transient)
	if method != http.MethodGet {
		policy = rateLimited
	}
	return retryWithBackoff(ctx, 3, policy, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.send(req, out)
	})
}

func (c *Client) send(req *http.Request, out any) error {
	raw, err := c.raw(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) raw(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage prefers the API's {"error": "..."} field over the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
