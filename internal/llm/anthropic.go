package llm

import (
	"context"
	"strings"
	"time"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	// Used when a request leaves MaxTokens unset; the API requires one
	anthropicMaxTokens = 4096
)

// AnthropicClient talks to the Anthropic messages API
type AnthropicClient struct {
	apiKey string
	apiURL string
	http   transport
	models map[Tier]string
}

func NewAnthropicClient(apiKey string, models map[Tier]string) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		apiURL: anthropicAPIURL,
		http: newTransport(ProviderAnthropic, 5*time.Minute, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": anthropicVersion,
		}),
		models: models,
	}
}

func (c *AnthropicClient) Name() Provider {
	return ProviderAnthropic
}

func (c *AnthropicClient) Available() bool {
	return c.apiKey != ""
}

type anthropicRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	System        string    `json:"system,omitempty"`
	Messages      []Message `json:"messages"`
	Temperature   float64   `json:"temperature,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type anthropicReply struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model, err := modelFor(c.models, req.Tier)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	// No native JSON mode; prefilling the assistant turn pins the opening brace
	if req.JSONMode {
		messages = append(messages, Message{Role: "assistant", Content: "{"})
	}

	body := anthropicRequest{
		Model:         model,
		MaxTokens:     req.MaxTokens,
		System:        req.System,
		Messages:      messages,
		Temperature:   req.Temperature,
		StopSequences: req.Stop,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = anthropicMaxTokens
	}

	var reply anthropicReply
	if err := c.http.postJSON(ctx, c.apiURL, body, &reply); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := text.String()
	if req.JSONMode && !strings.HasPrefix(strings.TrimSpace(content), "{") {
		content = "{" + content
	}

	return &Response{
		Content:      content,
		Model:        reply.Model,
		Provider:     ProviderAnthropic,
		InputTokens:  reply.Usage.InputTokens,
		OutputTokens: reply.Usage.OutputTokens,
		FinishReason: reply.StopReason,
	}, nil
}
