package llm

import (
	"context"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server
type OllamaClient struct {
	baseURL string
	http    transport
	models  map[Tier]string
}

// NewOllamaClient creates a client for the server at baseURL
func NewOllamaClient(baseURL string, models map[Tier]string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// local models can be slow on large groups
		http:   newTransport(ProviderOllama, 5*time.Minute, nil),
		models: models,
	}
}

func (c *OllamaClient) Name() Provider {
	return ProviderOllama
}

// Available pings the tags endpoint
func (c *OllamaClient) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var tags ollamaTags
	return c.http.getJSON(ctx, c.baseURL+"/api/tags", &tags) == nil
}

type ollamaChat struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaReply struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *OllamaClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	model, err := modelFor(c.models, req.Tier)
	if err != nil {
		return nil, err
	}

	chat := ollamaChat{
		Model:    model,
		Messages: withSystem(req),
	}
	if req.JSONMode {
		chat.Format = "json"
	}
	if req.Temperature > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		chat.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}

	var reply ollamaReply
	if err := c.http.postJSON(ctx, c.baseURL+"/api/chat", chat, &reply); err != nil {
		return nil, err
	}

	return &Response{
		Content:      reply.Message.Content,
		Model:        reply.Model,
		Provider:     ProviderOllama,
		InputTokens:  reply.PromptEvalCount,
		OutputTokens: reply.EvalCount,
		FinishReason: reply.DoneReason,
	}, nil
}

// ListModels returns the models pulled on the server
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	var tags ollamaTags
	if err := c.http.getJSON(ctx, c.baseURL+"/api/tags", &tags); err != nil {
		return nil, err
	}

	models := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		models[i] = m.Name
	}
	return models, nil
}

// withSystem prepends the system prompt as a chat message, the way the
// Ollama and OpenAI chat APIs expect it
func withSystem(req *Request) []Message {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	return append(messages, req.Messages...)
}
