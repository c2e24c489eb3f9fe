// Package llm provides text-completion backends used for title parsing.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 20 * time.Second

// ErrDisabled is returned by New when the provider is "none".
var ErrDisabled = errors.New("llm: provider disabled")

// Request is a single completion request.
type Request struct {
	System      string  // instruction prompt
	Prompt      string  // user content
	Temperature float64 // sampling temperature
	JSON        bool    // ask the backend for a JSON object
}

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Provider      string
	OllamaBaseURL string
	OllamaModel   string
	GeminiAPIKey  string
	GeminiModel   string
	Timeout       time.Duration
	MaxRetries    int
}

// New builds the configured Completer.
func New(ctx context.Context, cfg Config) (Completer, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		opts := []ClientOption{WithTimeout(timeout)}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		return NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, opts...), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, timeout)
	case ProviderNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// ObserveFunc receives the outcome of every completion call.
type ObserveFunc func(provider string, elapsed time.Duration, err error)

type observed struct {
	Completer
	observe ObserveFunc
}

// Observed wraps c so each Complete call is reported to fn.
func Observed(c Completer, fn ObserveFunc) Completer {
	if c == nil || fn == nil {
		return c
	}
	return &observed{Completer: c, observe: fn}
}

func (o *observed) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := o.Completer.Complete(ctx, req)
	o.observe(o.Completer.Name(), time.Since(start), err)
	return out, err
}
