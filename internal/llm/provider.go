package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/procurelab/bidwise/config"
)

// Message is one turn of a conversation sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of a completed call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Provider is the completion interface the pipeline depends on.
type Provider interface {
	// Generate performs a non-streaming completion and returns the full text.
	Generate(ctx context.Context, messages []Message, model string, opts Options) (string, Usage, error)
	// Stream opens a streaming completion; events arrive on the returned
	// channel in transport order and the channel closes at end of stream.
	Stream(ctx context.Context, messages []Message, model string, opts Options) (*StreamHandle, error)
	// SupportsReasoning reports whether the model's reasoning deltas are shown.
	SupportsReasoning(model string) bool
	// ModelInfo resolves a configured model key.
	ModelInfo(model string) (config.LLMModel, error)
}

// Options overrides per-call parameters.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// NewProvider creates a provider based on configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai-compatible", "openai":
			return NewOpenAICompatProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// OpenAICompatProvider talks to any /chat/completions endpoint that follows
// the OpenAI wire shape (SiliconFlow, DeepSeek, OpenAI itself).
type OpenAICompatProvider struct {
	config config.LLMProvider
	client *http.Client
}

// NewOpenAICompatProvider creates a provider from one configured endpoint.
func NewOpenAICompatProvider(cfg config.LLMProvider) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OpenAICompatProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("BIDWISE_LLM_API_KEY")
}

func (p *OpenAICompatProvider) baseURL() string {
	if p.config.BaseURL != "" {
		return p.config.BaseURL
	}
	return "https://api.openai.com/v1"
}

// ModelInfo resolves a configured model key.
func (p *OpenAICompatProvider) ModelInfo(model string) (config.LLMModel, error) {
	m, ok := p.config.Models[model]
	if !ok {
		return config.LLMModel{}, fmt.Errorf("model %s not configured", model)
	}
	return m, nil
}

// SupportsReasoning reports whether reasoning deltas are honored for the model.
func (p *OpenAICompatProvider) SupportsReasoning(model string) bool {
	m, err := p.ModelInfo(model)
	return err == nil && m.Reasoning
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

func (p *OpenAICompatProvider) buildRequest(ctx context.Context, messages []Message, model string, opts Options, stream bool) (*http.Request, string, error) {
	m, err := p.ModelInfo(model)
	if err != nil {
		return nil, "", err
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	temperature := m.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       apiModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey())
	return req, apiModel, nil
}

// Generate performs a non-streaming completion.
func (p *OpenAICompatProvider) Generate(ctx context.Context, messages []Message, model string, opts Options) (string, Usage, error) {
	req, _, err := p.buildRequest(ctx, messages, model, opts, false)
	if err != nil {
		return "", Usage{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", Usage{}, fmt.Errorf("completion status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", Usage{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in response")
	}
	return out.Choices[0].Message.Content, Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens}, nil
}
