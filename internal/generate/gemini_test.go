package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"
)

type fakeModels struct {
	text      string
	err       error
	gotModel  string
	gotPrompt string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.text, genai.RoleModel),
		}},
	}, nil
}

func newTestGemini(f *fakeModels) *Gemini {
	return &Gemini{models: f, model: "gemini-1.5-flash", logger: log.Default()}
}

func TestGenerate(t *testing.T) {
	f := &fakeModels{text: "  1. Remote work\n2. Space travel \n"}
	got, err := newTestGemini(f).Generate(context.Background(), "give me topics")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got != "1. Remote work\n2. Space travel" {
		t.Errorf("Generate = %q", got)
	}
	if f.gotModel != "gemini-1.5-flash" || f.gotPrompt != "give me topics" {
		t.Errorf("request model=%q prompt=%q", f.gotModel, f.gotPrompt)
	}
}

func TestGenerate_Empty(t *testing.T) {
	_, err := newTestGemini(&fakeModels{text: "   "}).Generate(context.Background(), "p")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	upstream := errors.New("quota exceeded")
	_, err := newTestGemini(&fakeModels{err: upstream}).Generate(context.Background(), "p")
	if !errors.Is(err, upstream) {
		t.Fatalf("error = %v, want wrapped upstream error", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "gemini-1.5-flash", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}
