package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/rs/zerolog/log"
)

// Anthropic models for the tiers the config leaves to local models
const (
	anthropicTier1Model = "claude-3-haiku-20240307"
	anthropicTier2Model = "claude-3-5-sonnet-20241022"
)

// retryPolicy is exponential backoff over retryable provider errors
type retryPolicy struct {
	retries int
	initial time.Duration
	max     time.Duration
}

var defaultRetry = retryPolicy{retries: 3, initial: 2 * time.Second, max: 30 * time.Second}

// backend is a configured client plus the tiers it serves. primary tiers
// are routed to it first; the rest only when every primary backend failed.
type backend struct {
	client  Client
	models  map[Tier]string
	primary []Tier
}

// Router sends each request to the backends serving its tier, in order,
// retrying transient failures on each before falling through to the next
type Router struct {
	def      Provider
	backends []backend // fallback order
	retry    retryPolicy
}

// NewRouter builds a router over every provider cfg configures. Local
// models own the summary tiers and Anthropic owns synthesis; OpenAI
// serves every tier with a single model.
func NewRouter(cfg *config.Config) (*Router, error) {
	var backends []backend

	if cfg.LLM.OllamaURL != "" {
		models := map[Tier]string{
			Tier1: cfg.LLM.OllamaTier1,
			Tier2: cfg.LLM.OllamaTier2,
			Tier3: cfg.LLM.OllamaTier2, // fallback for synthesis
		}
		backends = append(backends, backend{
			client:  NewOllamaClient(cfg.LLM.OllamaURL, models),
			models:  models,
			primary: []Tier{Tier1, Tier2},
		})
	}

	if cfg.LLM.AnthropicKey != "" {
		models := map[Tier]string{
			Tier1: anthropicTier1Model,
			Tier2: anthropicTier2Model,
			Tier3: cfg.LLM.AnthropicTier3,
		}
		backends = append(backends, backend{
			client:  NewAnthropicClient(cfg.LLM.AnthropicKey, models),
			models:  models,
			primary: []Tier{Tier3},
		})
	}

	if cfg.LLM.OpenAIKey != "" {
		models := map[Tier]string{
			Tier1: cfg.LLM.OpenAIModel,
			Tier2: cfg.LLM.OpenAIModel,
			Tier3: cfg.LLM.OpenAIModel,
		}
		backends = append(backends, backend{
			client:  NewOpenAIClient(cfg.LLM.OpenAIURL, cfg.LLM.OpenAIKey, models),
			models:  models,
			primary: []Tier{Tier1, Tier2, Tier3},
		})
	}

	if len(backends) == 0 {
		return nil, ErrNoProviders
	}

	return &Router{
		def:      Provider(cfg.LLM.DefaultProvider),
		backends: backends,
		retry:    defaultRetry,
	}, nil
}

// route orders the clients that can serve tier: primary backends first
// with the default provider leading, then the fallbacks
func (r *Router) route(tier Tier) []Client {
	var primary, fallback []Client
	for _, b := range r.backends {
		if b.models[tier] == "" {
			continue
		}
		switch {
		case !slices.Contains(b.primary, tier):
			fallback = append(fallback, b.client)
		case b.client.Name() == r.def:
			primary = append([]Client{b.client}, primary...)
		default:
			primary = append(primary, b.client)
		}
	}
	return append(primary, fallback...)
}

// Complete sends req to the first backend for its tier that answers
func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	clients := r.route(req.Tier)
	if len(clients) == 0 {
		return nil, fmt.Errorf("no provider serves tier %d", req.Tier)
	}

	var errs []error
	for _, client := range clients {
		provider := client.Name()
		if !client.Available() {
			log.Debug().Str("provider", string(provider)).Msg("provider not available, trying next")
			continue
		}

		log.Debug().
			Str("provider", string(provider)).
			Int("tier", int(req.Tier)).
			Msg("routing request to provider")

		resp, err := r.retry.complete(ctx, client, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warn().Err(err).Str("provider", string(provider)).Msg("provider failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", provider, err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no provider available for tier %d", req.Tier)
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

func (p retryPolicy) complete(ctx context.Context, client Client, req *Request) (*Response, error) {
	wait := p.initial
	var err error

	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			log.Debug().
				Str("provider", string(client.Name())).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Msg("retrying after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = min(wait*2, p.max)
		}

		var resp *Response
		resp, err = client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", p.retries+1, err)
}

// retryable reports whether err is transient: rate limits, server errors
// and dropped connections. Cancellation and client errors are final.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// HealthCheck verifies at least one provider is available
func (r *Router) HealthCheck() error {
	for _, b := range r.backends {
		if b.client.Available() {
			log.Debug().Str("provider", string(b.client.Name())).Msg("provider available")
			return nil
		}
	}
	return errors.New("no LLM providers available")
}
