package scanning

import (
	"context"
	"fmt"
	"strings"
)

// BackendConfig selects and configures one AI backend.
type BackendConfig struct {
	// Name is one of "gemini", "ollama", "openai" or "none".
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Breaker BreakerSettings
}

// NewParser builds the AI backend named by cfg. "none" or an empty name
// yields a nil parser, which the pipeline treats as unavailable.
func NewParser(ctx context.Context, cfg BackendConfig) (StructuredParser, error) {
	var (
		p   StructuredParser
		err error
	)
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch name {
	case "", "none":
		return nil, nil
	case "gemini":
		p, err = NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "ollama":
		p, err = NewOllama(cfg.BaseURL, cfg.Model)
	case "openai":
		var opts []OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		p = NewOpenAI(cfg.APIKey, cfg.Model, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown AI backend %q (must be 'gemini', 'ollama', 'openai' or 'none')", ErrConfiguration, cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	return NewBreaker(name, p, cfg.Breaker), nil
}

// NewRecognizer builds the OCR engine named by engine: "tesseract",
// "gosseract" or "none".
func NewRecognizer(engine, binary, language string) (TextRecognizer, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "none":
		return nil, nil
	case "tesseract":
		return NewTesseractCLI(binary, language), nil
	case "gosseract":
		return NewGosseract(language), nil
	}
	return nil, fmt.Errorf("%w: unknown OCR engine %q (must be 'tesseract', 'gosseract' or 'none')", ErrConfiguration, engine)
}
