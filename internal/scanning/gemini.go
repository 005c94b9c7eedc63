package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini parses receipts with Google Gemini using JSON-schema constrained output.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini parser. An empty API key yields a parser that
// reports itself unavailable.
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return &Gemini{}, nil
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.SetTopP(0.95)
	model.SetTopK(40)
	model.SetMaxOutputTokens(8192)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = genaiReceiptSchema()
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

func (g *Gemini) Available() bool {
	return g.model != nil
}

// ParseImage sends the receipt image with the extraction prompt.
func (g *Gemini) ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error) {
	if !g.Available() {
		return nil, ErrCapabilityUnavailable
	}
	// genai.ImageData expects just the format suffix, e.g. "png"
	format := strings.TrimPrefix(mimeType, "image/")
	return g.generate(ctx, genai.ImageData(format, data), genai.Text(imagePrompt))
}

// ParseText sends OCR text with the extraction prompt.
func (g *Gemini) ParseText(ctx context.Context, text string) (*Candidate, error) {
	if !g.Available() {
		return nil, ErrCapabilityUnavailable
	}
	return g.generate(ctx, genai.Text(textPrompt(text)))
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (*Candidate, error) {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	c, err := decodeCandidate(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}
	return c, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
