package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI parses receipts with any OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIOption customizes the OpenAI parser.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
}

// WithOpenAIBaseURL points the parser at a compatible endpoint.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = u }
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI creates an OpenAI parser. An empty API key yields a parser that
// reports itself unavailable.
func NewOpenAI(apiKey string, modelName string, opts ...OpenAIOption) *OpenAI {
	if apiKey == "" {
		return &OpenAI{}
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	cfg := openAIConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// a failed call falls through to the next tier instead of retrying
	clientOpts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(cfg.httpClient))
	}

	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, model: modelName}
}

func (o *OpenAI) Available() bool {
	return o.client != nil
}

// ParseImage sends the receipt as a base64 data URL.
func (o *OpenAI) ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error) {
	if !o.Available() {
		return nil, ErrCapabilityUnavailable
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	content := openai.ChatCompletionUserMessageParamContentUnion{
		OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
			{OfText: &openai.ChatCompletionContentPartTextParam{Text: imagePrompt}},
			{OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL, Detail: "high"},
			}},
		},
	}
	return o.complete(ctx, content)
}

// ParseText sends OCR text.
func (o *OpenAI) ParseText(ctx context.Context, text string) (*Candidate, error) {
	if !o.Available() {
		return nil, ErrCapabilityUnavailable
	}
	content := openai.ChatCompletionUserMessageParamContentUnion{
		OfString: openai.String(textPrompt(text)),
	}
	return o.complete(ctx, content)
}

func (o *OpenAI) complete(ctx context.Context, content openai.ChatCompletionUserMessageParamContentUnion) (*Candidate, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(systemPrompt)},
			}},
			{OfUser: &openai.ChatCompletionUserMessageParam{Content: content}},
		},
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "receipt",
					Schema: receiptResponseSchema(),
					Strict: openai.Bool(false),
				},
			},
		},
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no choices in openai response")
	}

	c, err := decodeCandidate(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing openai response: %w", err)
	}
	return c, nil
}

// Close is a no-op; the SDK holds no open resources.
func (o *OpenAI) Close() error {
	return nil
}
