package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrBudgetExceeded indicates the token or spend budget for the run is used up
	ErrBudgetExceeded = errors.New("LLM budget exceeded")
	// ErrRateLimited indicates the run hit its requests-per-minute cap
	ErrRateLimited = errors.New("rate limit exceeded")
)

// BudgetConfig caps what one run may spend. Zero fields are unlimited.
type BudgetConfig struct {
	TokenLimit        int64
	BudgetUSD         float64
	RequestsPerMinute int
}

// TierUsage is the spend of one tier
type TierUsage struct {
	Requests     int64         `json:"requests"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Cost         float64       `json:"estimated_cost_usd"`
	Latency      time.Duration `json:"latency_ns"`
}

func (u *TierUsage) add(o TierUsage) {
	u.Requests += o.Requests
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.Cost += o.Cost
	u.Latency += o.Latency
}

// UsageStats is the aggregate spend of a run
type UsageStats struct {
	TotalRequests   int64              `json:"total_requests"`
	TotalTokens     int64              `json:"total_tokens"`
	InputTokens     int64              `json:"input_tokens"`
	OutputTokens    int64              `json:"output_tokens"`
	EstimatedCost   float64            `json:"estimated_cost_usd"`
	AvgTokensPerReq float64            `json:"avg_tokens_per_request"`
	ByTier          map[Tier]TierUsage `json:"by_tier,omitempty"`
}

type UsageTrackerConfig struct {
	Budget BudgetConfig
}

// UsageTracker accounts the LLM calls of one analysis run and enforces its
// budget. It is safe for concurrent use by the summarizer's workers.
type UsageTracker struct {
	mu     sync.Mutex
	budget BudgetConfig
	now    func() time.Time

	total TierUsage
	tiers map[Tier]*TierUsage

	windowStart time.Time
	windowCount int
}

func NewUsageTracker(cfg UsageTrackerConfig) *UsageTracker {
	return &UsageTracker{
		budget: cfg.Budget,
		now:    time.Now,
		tiers:  make(map[Tier]*TierUsage),
	}
}

// pricePer1K holds blended input+output USD estimates per 1K tokens.
// Local models are free.
var pricePer1K = map[Provider]map[string]float64{
	ProviderAnthropic: {
		anthropicTier1Model: 0.00025 + 0.00125,
		anthropicTier2Model: 0.003 + 0.015,
		"":                  0.005,
	},
	ProviderOpenAI: {
		"gpt-4o":      0.0025 + 0.01,
		"gpt-4o-mini": 0.00015 + 0.0006,
		"":            0.01,
	},
}

// estimateCost prices tokens for model, falling back to the provider's
// default rate for unknown models
func estimateCost(provider Provider, model string, tokens int64) float64 {
	prices := pricePer1K[provider]
	rate, ok := prices[model]
	if !ok {
		rate = prices[""]
	}
	return float64(tokens) / 1000 * rate
}

// Reserve checks the budget for a request of roughly estimatedTokens and
// counts it against the rate limit when it fits
func (t *UsageTracker) Reserve(estimatedTokens int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	used := t.total.InputTokens + t.total.OutputTokens
	if limit := t.budget.TokenLimit; limit > 0 && used+int64(estimatedTokens) > limit {
		log.Warn().Int64("used", used).Int64("limit", limit).Msg("token limit would be exceeded")
		return ErrBudgetExceeded
	}
	if limit := t.budget.BudgetUSD; limit > 0 && t.total.Cost >= limit {
		log.Warn().Float64("spent", t.total.Cost).Float64("limit", limit).Msg("spend limit reached")
		return ErrBudgetExceeded
	}

	if rpm := t.budget.RequestsPerMinute; rpm > 0 {
		now := t.now()
		if now.Sub(t.windowStart) >= time.Minute {
			t.windowStart, t.windowCount = now, 0
		}
		if t.windowCount >= rpm {
			return ErrRateLimited
		}
	}
	t.windowCount++
	return nil
}

// record books a completed call against tier
func (t *UsageTracker) record(tier Tier, resp *Response, elapsed time.Duration) {
	u := TierUsage{
		Requests:     1,
		InputTokens:  int64(resp.InputTokens),
		OutputTokens: int64(resp.OutputTokens),
		Cost:         estimateCost(resp.Provider, resp.Model, int64(resp.InputTokens+resp.OutputTokens)),
		Latency:      elapsed,
	}

	t.mu.Lock()
	t.total.add(u)
	if t.tiers[tier] == nil {
		t.tiers[tier] = &TierUsage{}
	}
	t.tiers[tier].add(u)
	t.mu.Unlock()

	log.Debug().
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("tier", int(tier)).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Dur("elapsed", elapsed).
		Msg("recorded LLM usage")
}

// Stats returns the spend so far
func (t *UsageTracker) Stats() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := UsageStats{
		TotalRequests: t.total.Requests,
		TotalTokens:   t.total.InputTokens + t.total.OutputTokens,
		InputTokens:   t.total.InputTokens,
		OutputTokens:  t.total.OutputTokens,
		EstimatedCost: t.total.Cost,
	}
	if stats.TotalRequests > 0 {
		stats.AvgTokensPerReq = float64(stats.TotalTokens) / float64(stats.TotalRequests)
	}
	if len(t.tiers) > 0 {
		stats.ByTier = make(map[Tier]TierUsage, len(t.tiers))
		for tier, u := range t.tiers {
			stats.ByTier[tier] = *u
		}
	}
	return stats
}

// TrackedCompleter wraps a Completer with budget checks and usage accounting
type TrackedCompleter struct {
	next    Completer
	tracker *UsageTracker
}

func NewTrackedCompleter(next Completer, tracker *UsageTracker) *TrackedCompleter {
	return &TrackedCompleter{next: next, tracker: tracker}
}

func (c *TrackedCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.tracker.Reserve(EstimateTokens(req)); err != nil {
		return nil, err
	}

	start := c.tracker.now()
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	c.tracker.record(req.Tier, resp, c.tracker.now().Sub(start))

	return resp, nil
}

func (c *TrackedCompleter) Tracker() *UsageTracker {
	return c.tracker
}

// EstimateTokens is a rough prompt size at 4 chars per token
func EstimateTokens(req *Request) int {
	chars := len(req.System)
	for _, msg := range req.Messages {
		chars += len(msg.Content)
	}
	return chars / 4
}
