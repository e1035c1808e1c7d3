package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replays errs in order, then answers successfully
type scriptedClient struct {
	name      Provider
	available bool
	errs      []error
	calls     int
}

func (c *scriptedClient) Name() Provider  { return c.name }
func (c *scriptedClient) Available() bool { return c.available }

func (c *scriptedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	c.calls++
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if i := c.calls - 1; i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return &Response{Content: "ok", Provider: c.name}, nil
}

var fastRetry = retryPolicy{retries: 3, initial: time.Millisecond, max: 4 * time.Millisecond}

func allTiers(model string) map[Tier]string {
	return map[Tier]string{Tier1: model, Tier2: model, Tier3: model}
}

func testRouter(def Provider, backends ...backend) *Router {
	return &Router{def: def, backends: backends, retry: fastRetry}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"rate limited", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"server error", &StatusError{Code: http.StatusBadGateway}, true},
		{"bad request", &StatusError{Code: http.StatusBadRequest}, false},
		{"unauthorized", fmt.Errorf("call: %w", &StatusError{Code: http.StatusUnauthorized}), false},
		{"network", &netError{}, true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"no model", ErrNoModel, false},
		{"unknown", errors.New("bad json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

type netError struct{}

func (netError) Error() string   { return "connection reset by peer" }
func (netError) Timeout() bool   { return false }
func (netError) Temporary() bool { return true }

func TestRouter_Route(t *testing.T) {
	ollama := &scriptedClient{name: ProviderOllama, available: true}
	anthropic := &scriptedClient{name: ProviderAnthropic, available: true}
	openai := &scriptedClient{name: ProviderOpenAI, available: true}

	r := testRouter(ProviderOllama,
		backend{client: ollama, models: map[Tier]string{Tier1: "small", Tier2: "medium"}, primary: []Tier{Tier1, Tier2}},
		backend{client: anthropic, models: allTiers("claude"), primary: []Tier{Tier3}},
		backend{client: openai, models: allTiers("gpt"), primary: []Tier{Tier1, Tier2, Tier3}},
	)

	assert.Equal(t, []Client{ollama, openai, anthropic}, r.route(Tier1))
	assert.Equal(t, []Client{anthropic, openai}, r.route(Tier3), "ollama has no tier 3 model")

	t.Run("default provider leads its primary tiers", func(t *testing.T) {
		r.def = ProviderOpenAI
		defer func() { r.def = ProviderOllama }()
		assert.Equal(t, []Client{openai, ollama, anthropic}, r.route(Tier1))
		assert.Equal(t, []Client{openai, anthropic}, r.route(Tier3))
	})
}

func TestRouter_Complete_Success(t *testing.T) {
	client := &scriptedClient{name: ProviderOllama, available: true}
	r := testRouter(ProviderOllama, backend{client: client, models: allTiers("m"), primary: []Tier{Tier1}})

	resp, err := r.Complete(context.Background(), &Request{Tier: Tier1})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, client.calls)
}

func TestRouter_Complete_SkipsUnavailable(t *testing.T) {
	down := &scriptedClient{name: ProviderOllama}
	up := &scriptedClient{name: ProviderAnthropic, available: true}
	r := testRouter(ProviderOllama,
		backend{client: down, models: allTiers("m"), primary: []Tier{Tier1}},
		backend{client: up, models: allTiers("m")},
	)

	resp, err := r.Complete(context.Background(), &Request{Tier: Tier1})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, resp.Provider)
	assert.Zero(t, down.calls)
	assert.Equal(t, 1, up.calls)
}

func TestRouter_Complete_FallsThroughOnFailure(t *testing.T) {
	failing := &scriptedClient{name: ProviderOllama, available: true, errs: []error{&StatusError{Code: http.StatusUnauthorized}}}
	backup := &scriptedClient{name: ProviderOpenAI, available: true}
	r := testRouter(ProviderOllama,
		backend{client: failing, models: allTiers("m"), primary: []Tier{Tier1}},
		backend{client: backup, models: allTiers("m"), primary: []Tier{Tier1}},
	)

	resp, err := r.Complete(context.Background(), &Request{Tier: Tier1})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, 1, failing.calls, "client errors are not retried")
}

func TestRouter_Complete_NoBackendForTier(t *testing.T) {
	r := testRouter(ProviderOllama, backend{
		client: &scriptedClient{name: ProviderOllama, available: true},
		models: map[Tier]string{Tier1: "m"},
	})

	_, err := r.Complete(context.Background(), &Request{Tier: Tier3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider serves tier 3")
}

func TestRouter_Complete_AllFail(t *testing.T) {
	unauthorized := &StatusError{Provider: ProviderOllama, Code: http.StatusUnauthorized}
	client := &scriptedClient{name: ProviderOllama, available: true, errs: []error{unauthorized}}
	r := testRouter(ProviderOllama, backend{client: client, models: allTiers("m"), primary: []Tier{Tier1}})

	_, err := r.Complete(context.Background(), &Request{Tier: Tier1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.ErrorIs(t, err, unauthorized)
}

func TestRouter_Complete_CanceledContext(t *testing.T) {
	client := &scriptedClient{name: ProviderOllama, available: true}
	backup := &scriptedClient{name: ProviderOpenAI, available: true}
	r := testRouter(ProviderOllama,
		backend{client: client, models: allTiers("m"), primary: []Tier{Tier1}},
		backend{client: backup, models: allTiers("m"), primary: []Tier{Tier1}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, &Request{Tier: Tier1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backup.calls, "cancellation stops the fallback chain")
}

func TestRetryPolicy(t *testing.T) {
	unavailable := &StatusError{Code: http.StatusServiceUnavailable}

	t.Run("succeeds on retry", func(t *testing.T) {
		client := &scriptedClient{name: ProviderOllama, errs: []error{unavailable, nil}}
		resp, err := fastRetry.complete(context.Background(), client, &Request{})
		require.NoError(t, err)
		assert.NotNil(t, resp)
		assert.Equal(t, 2, client.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		client := &scriptedClient{name: ProviderOllama, errs: []error{unavailable, unavailable, unavailable, unavailable, unavailable}}
		_, err := fastRetry.complete(context.Background(), client, &Request{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gave up after 4 attempts")
		assert.ErrorIs(t, err, unavailable)
		assert.Equal(t, fastRetry.retries+1, client.calls)
	})

	t.Run("final error stops retries", func(t *testing.T) {
		client := &scriptedClient{name: ProviderOllama, errs: []error{ErrNoModel}}
		_, err := fastRetry.complete(context.Background(), client, &Request{})
		assert.ErrorIs(t, err, ErrNoModel)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("canceled during backoff", func(t *testing.T) {
		slow := retryPolicy{retries: 3, initial: time.Hour, max: time.Hour}
		client := &scriptedClient{name: ProviderOllama, errs: []error{unavailable}}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := slow.complete(ctx, client, &Request{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, client.calls)
	})
}

func TestDefaultRetry(t *testing.T) {
	assert.Equal(t, 3, defaultRetry.retries)
	assert.Equal(t, 2*time.Second, defaultRetry.initial)
	assert.Equal(t, 30*time.Second, defaultRetry.max)
}

func TestRouter_HealthCheck(t *testing.T) {
	up := testRouter(ProviderOllama, backend{client: &scriptedClient{name: ProviderOllama, available: true}})
	assert.NoError(t, up.HealthCheck())

	down := testRouter(ProviderOllama, backend{client: &scriptedClient{name: ProviderOllama}})
	assert.Error(t, down.HealthCheck())

	assert.Error(t, testRouter(ProviderOllama).HealthCheck())
}

func TestNewRouter_NoProviders(t *testing.T) {
	_, err := NewRouter(&config.Config{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestNewRouter_OpenAIOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.OpenAIKey = "sk-test"
	cfg.LLM.OpenAIURL = "http://localhost:1"
	cfg.LLM.OpenAIModel = "gpt-4o-mini"

	r, err := NewRouter(cfg)
	require.NoError(t, err)

	for _, tier := range []Tier{Tier1, Tier2, Tier3} {
		clients := r.route(tier)
		require.Len(t, clients, 1, "tier %d", tier)
		assert.Equal(t, ProviderOpenAI, clients[0].Name())
	}
}

func TestNewRouter_LocalSummariesRemoteSynthesis(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "ollama"
	cfg.LLM.OllamaURL = "http://localhost:11434"
	cfg.LLM.OllamaTier1 = "small"
	cfg.LLM.OllamaTier2 = "medium"
	cfg.LLM.AnthropicKey = "sk-ant-test"
	cfg.LLM.AnthropicTier3 = "large"

	r, err := NewRouter(cfg)
	require.NoError(t, err)

	names := func(tier Tier) []Provider {
		var out []Provider
		for _, c := range r.route(tier) {
			out = append(out, c.Name())
		}
		return out
	}
	assert.Equal(t, []Provider{ProviderOllama, ProviderAnthropic}, names(Tier1))
	assert.Equal(t, []Provider{ProviderAnthropic, ProviderOllama}, names(Tier3))
}
