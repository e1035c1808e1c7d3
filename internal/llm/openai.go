package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// OpenAIClient talks to OpenAI compatible chat completion APIs
type OpenAIClient struct {
	baseURL string
	apiKey  string
	http    transport
	models  map[Tier]string
}

// NewOpenAIClient creates a new OpenAI client. baseURL is the API root
// without the /v1 suffix.
func NewOpenAIClient(baseURL, apiKey string, models map[Tier]string) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http: newTransport(ProviderOpenAI, 5*time.Minute, map[string]string{
			"Authorization": "Bearer " + apiKey,
		}),
		models: models,
	}
}

func (c *OpenAIClient) Name() Provider {
	return ProviderOpenAI
}

func (c *OpenAIClient) Available() bool {
	return c.apiKey != ""
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIReply struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model, err := modelFor(c.models, req.Tier)
	if err != nil {
		return nil, err
	}

	body := openAIRequest{
		Model:       model,
		Messages:    withSystem(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	if req.JSONMode {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	var reply openAIReply
	if err := c.http.postJSON(ctx, c.baseURL+"/v1/chat/completions", body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	choice := reply.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Model:        reply.Model,
		Provider:     ProviderOpenAI,
		InputTokens:  reply.Usage.PromptTokens,
		OutputTokens: reply.Usage.CompletionTokens,
		FinishReason: choice.FinishReason,
	}, nil
}
