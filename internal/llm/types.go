package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoProviders is returned when no LLM provider is configured
	ErrNoProviders = errors.New("no LLM providers configured")
	// ErrNoModel is returned by a client asked for a tier it has no model for
	ErrNoModel = errors.New("no model configured")
)

// Provider names an LLM backend
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Tier selects how capable (and costly) a model a request is routed to
type Tier int

const (
	Tier1 Tier = 1 // group summaries
	Tier2 Tier = 2 // groups near the context budget
	Tier3 Tier = 3 // system synthesis
)

// Request is a single chat completion
type Request struct {
	Tier        Tier
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stop        []string
	JSONMode    bool // Ask the provider for a JSON object
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Content      string
	Model        string
	Provider     Provider
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Client is one LLM provider
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() Provider
	Available() bool
}

// Completer is anything that can answer a completion request, a single
// client or a router over several
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
