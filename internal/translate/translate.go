// Package translate wraps Google Cloud Translation and language naming.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"google.golang.org/api/option"
)

// ErrUnknownLanguage is returned for codes that do not name a language.
var ErrUnknownLanguage = errors.New("unknown language code")

type translator interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

type Google struct {
	client translator
}

func NewGoogle(ctx context.Context, apiKey string) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google api key is empty")
	}
	client, err := translate.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create translate client: %w", err)
	}
	return &Google{client: client}, nil
}

// Translate returns text rendered in the target language.
func (g *Google) Translate(ctx context.Context, text, target string) (string, error) {
	tag, err := parseTag(target)
	if err != nil {
		return "", err
	}
	out, err := g.client.Translate(ctx, []string{text}, tag, &translate.Options{Format: translate.Text})
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", tag, err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("translate to %s: empty response", tag)
	}
	return out[0].Text, nil
}

func (g *Google) Close() error {
	return g.client.Close()
}

// LanguageName returns the English name for an ISO 639 code, e.g. "fr" -> "French".
func LanguageName(code string) (string, error) {
	tag, err := parseTag(code)
	if err != nil {
		return "", err
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return name, nil
}

func parseTag(code string) (language.Tag, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return language.Und, fmt.Errorf("%w: empty", ErrUnknownLanguage)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return tag, nil
}
