package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llava"
)

// Ollama parses receipts with a local Ollama model.
// Recommended vision models, best first:
//   - llava:1.6
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
//
// Text mode works with any instruction-tuned model.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama parser. Empty arguments fall back to the defaults.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid ollama url %q", ErrConfiguration, baseURL)
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models on CPU are slow
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) Available() bool {
	return o.baseURL != "" && o.model != ""
}

// ParseImage sends the receipt image to a vision model.
func (o *Ollama) ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error) {
	user := ollamaMessage{
		Role:    "user",
		Content: imagePrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(data)},
	}
	return o.chat(ctx, user)
}

// ParseText sends OCR text to the model.
func (o *Ollama) ParseText(ctx context.Context, text string) (*Candidate, error) {
	return o.chat(ctx, ollamaMessage{Role: "user", Content: textPrompt(text)})
}

func (o *Ollama) chat(ctx context.Context, user ollamaMessage) (*Candidate, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			user,
		},
		Format:  receiptResponseSchema(),
		Options: ollamaOptions{Temperature: 0.1},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c, err := decodeCandidate(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama response: %w", err)
	}
	return c, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
