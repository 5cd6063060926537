// Package gateway sends prompts to a primary or fallback language model.
//
// A [Gateway] owns two model slots. Each call counts the prompt's tokens to
// pick the cheapest slot whose budget fits, retries the chosen model after a
// fixed delay when the provider signals a rate limit, and escalates from the
// primary to the fallback when retries are exhausted, the primary's circuit
// breaker is open, or the primary rejects the request as invalid.
//
// Every failure is reported as an [*Error] tagged with one of
// [ErrPromptTooLarge], [ErrRateLimited], [ErrProvider] or [ErrUnknownModel].
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/MrWong99/tmassist/internal/observe"
	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// Slot names one of the two configured models.
type Slot string

const (
	SlotPrimary  Slot = "primary"
	SlotFallback Slot = "fallback"
)

// unbounded stands in for the cost of a prompt whose tokens could not be
// counted; it never fits a budget.
const unbounded = math.MaxInt

// Model is one configured slot.
type Model struct {
	// Name is the provider's model id, e.g. "gemini-2.0-flash-001".
	Name string
	// Provider performs token counting and completions for Name.
	Provider llm.Provider
	// Budget is the largest prompt, in tokens, this slot accepts. Zero
	// means the provider's advertised context window.
	Budget int
}

// Result is a successful completion.
type Result struct {
	Text         string
	Model        string
	Slot         Slot
	PromptTokens int
	// Attempts counts completion calls across both slots.
	Attempts int
	// Escalated is true when the answer came from the fallback after the
	// primary was selected first.
	Escalated bool
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithRetryDelay sets the wait between rate-limited attempts. Default: 3s.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Gateway) { g.retryDelay = d }
}

// WithMaxRetries sets how many times a rate-limited call is repeated on the
// same model. Default: 1.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// WithRequestsPerMinute paces outgoing completion calls. Zero disables pacing.
func WithRequestsPerMinute(rpm float64) Option {
	return func(g *Gateway) {
		if rpm <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rpm/60), 1)
	}
}

// WithBreaker tunes the per-slot circuit breakers. Non-positive values keep
// the defaults of 5 failures and 30s.
func WithBreaker(maxFailures int, resetTimeout time.Duration) Option {
	return func(g *Gateway) {
		g.breakerFailures = maxFailures
		g.breakerReset = resetTimeout
	}
}

// WithMetrics records gateway metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// CallOption adjusts a single [Gateway.Completion] call.
type CallOption func(*callOptions)

type callOptions struct {
	model string
}

// WithModel starts model selection at the named slot. name may be a slot
// name ("primary", "fallback") or a configured model id.
func WithModel(name string) CallOption {
	return func(o *callOptions) { o.model = name }
}

type slot struct {
	name  Slot
	model Model
	cb    *gobreaker.CircuitBreaker
}

// Gateway routes prompts to the primary or fallback model. It is safe for
// concurrent use.
type Gateway struct {
	primary  *slot
	fallback *slot

	retryDelay      time.Duration
	maxRetries      int
	limiter         *rate.Limiter
	breakerFailures int
	breakerReset    time.Duration
	metrics         *observe.Metrics

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway over the primary and fallback models.
func New(primary, fallback Model, opts ...Option) (*Gateway, error) {
	if primary.Provider == nil {
		return nil, errors.New("gateway: primary provider is nil")
	}
	if fallback.Provider == nil {
		return nil, errors.New("gateway: fallback provider is nil")
	}
	g := &Gateway{
		retryDelay: 3 * time.Second,
		maxRetries: 1,
		sleep:      sleepContext,
	}
	for _, o := range opts {
		o(g)
	}
	if g.maxRetries < 0 {
		g.maxRetries = 0
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	var err error
	if primary.Budget, err = budgetOf(primary); err != nil {
		return nil, err
	}
	if fallback.Budget, err = budgetOf(fallback); err != nil {
		return nil, err
	}
	g.primary = &slot{name: SlotPrimary, model: primary,
		cb: newBreaker(primary.Name, g.breakerFailures, g.breakerReset)}
	g.fallback = &slot{name: SlotFallback, model: fallback,
		cb: newBreaker(fallback.Name, g.breakerFailures, g.breakerReset)}
	return g, nil
}

// budgetOf resolves the token budget of m. A model with neither a configured
// budget nor an advertised context window would reject every prompt.
func budgetOf(m Model) (int, error) {
	if m.Budget > 0 {
		return m.Budget, nil
	}
	n := m.Provider.Capabilities().ContextWindow
	if n <= 0 {
		return 0, fmt.Errorf("gateway: model %q has no token budget and its provider advertises no context window; set token_budget", m.Name)
	}
	slog.Info("gateway: token budget taken from model context window", "model", m.Name, "budget", n)
	return n, nil
}

// Models returns the configured primary and fallback models.
func (g *Gateway) Models() (primary, fallback Model) {
	return g.primary.model, g.fallback.model
}

// Healthy returns an error when both circuit breakers are open, meaning no
// completion can currently succeed.
func (g *Gateway) Healthy() error {
	if g.primary.cb.State() == gobreaker.StateOpen && g.fallback.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return nil
}

// lookup resolves a model override to its slot.
func (g *Gateway) lookup(name string) (*slot, bool) {
	switch name {
	case string(SlotPrimary), g.primary.model.Name:
		return g.primary, true
	case string(SlotFallback), g.fallback.model.Name:
		return g.fallback, true
	}
	return nil, false
}

// call holds the per-request state of one Completion.
type call struct {
	g     *Gateway
	msgs  []llm.Message
	costs map[Slot]int
	log   *slog.Logger
}

// cost returns the prompt's token count for s, counting at most once per
// slot. A counting failure yields [unbounded].
func (c *call) cost(ctx context.Context, s *slot) int {
	if n, ok := c.costs[s.name]; ok {
		return n
	}
	n, err := s.model.Provider.CountTokens(ctx, c.msgs)
	if err != nil {
		c.log.Warn("gateway: token count failed, assuming prompt is too large",
			"model", s.model.Name, "err", err)
		n = unbounded
	} else {
		c.g.metrics.PromptTokens.Record(ctx, int64(n),
			metric.WithAttributes(attribute.String("model", s.model.Name)))
	}
	c.costs[s.name] = n
	return n
}

func (c *call) fits(ctx context.Context, s *slot) bool {
	return c.cost(ctx, s) <= s.model.Budget
}

// tokens reports the largest finite count seen so far, for error context.
func (c *call) tokens() int {
	best := 0
	for _, n := range c.costs {
		if n != unbounded && n > best {
			best = n
		}
	}
	return best
}

// Completion sends prompt as a single user message and returns the model's
// text. See the package documentation for the selection and retry policy.
func (g *Gateway) Completion(ctx context.Context, prompt string, opts ...CallOption) (*Result, error) {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}

	ctx, span := observe.StartSpan(ctx, "gateway.Completion")
	defer span.End()

	res, err := g.complete(ctx, prompt, co)
	if err != nil {
		observe.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model", res.Model),
		attribute.Int("attempts", res.Attempts),
		attribute.Bool("escalated", res.Escalated),
	)
	return res, nil
}

func (g *Gateway) complete(ctx context.Context, prompt string, co callOptions) (*Result, error) {
	c := &call{
		g:     g,
		msgs:  []llm.Message{llm.UserMessage(prompt)},
		costs: make(map[Slot]int, 2),
		log:   observe.Logger(ctx),
	}

	start := g.primary
	if co.model != "" {
		s, ok := g.lookup(co.model)
		if !ok {
			return nil, &Error{Kind: ErrUnknownModel, Model: co.model}
		}
		start = s
	}

	// ── Selection ────────────────────────────────────────────────────────────
	chosen := start
	if !c.fits(ctx, chosen) {
		if chosen == g.fallback || !c.fits(ctx, g.fallback) {
			return nil, &Error{Kind: ErrPromptTooLarge, Model: chosen.model.Name, Tokens: c.tokens()}
		}
		chosen = g.fallback
	}
	c.log.Debug("gateway: model selected",
		"slot", chosen.name, "model", chosen.model.Name, "tokens", c.costs[chosen.name])

	// ── First run ────────────────────────────────────────────────────────────
	text, attempts, err := g.run(ctx, c, chosen, g.maxRetries)
	if err == nil {
		return c.result(text, chosen, attempts, false), nil
	}
	if ctx.Err() != nil {
		return nil, &Error{Kind: ErrProvider, Model: chosen.model.Name, Tokens: c.tokens(), Err: err}
	}

	canEscalate := chosen == g.primary
	switch {
	case llm.IsInvalidArgument(err):
		if !canEscalate || !c.fits(ctx, g.fallback) {
			return nil, &Error{Kind: ErrPromptTooLarge, Model: chosen.model.Name, Tokens: c.tokens(), Err: err}
		}
		g.metrics.RecordEscalation(ctx, "invalid_argument")
		c.log.Warn("gateway: request rejected, escalating to fallback",
			"from", chosen.model.Name, "to", g.fallback.model.Name, "err", err)
		return g.escalate(ctx, c, attempts, 0)

	case llm.IsRateLimited(err) || isOpen(err):
		if canEscalate && c.fits(ctx, g.fallback) {
			reason := "rate_limited"
			if isOpen(err) {
				reason = "circuit_open"
			}
			g.metrics.RecordEscalation(ctx, reason)
			c.log.Warn("gateway: primary unavailable, escalating to fallback",
				"reason", reason, "from", chosen.model.Name, "to", g.fallback.model.Name)
			return g.escalate(ctx, c, attempts, g.maxRetries)
		}
		if isOpen(err) {
			return nil, &Error{Kind: ErrProvider, Model: chosen.model.Name, Tokens: c.tokens(), Err: err}
		}
		return nil, &Error{Kind: ErrRateLimited, Model: chosen.model.Name, Tokens: c.tokens(), Err: err}
	}
	return nil, &Error{Kind: ErrProvider, Model: chosen.model.Name, Tokens: c.tokens(), Err: err}
}

// escalate runs the fallback after the primary failed. prior is the number
// of attempts already spent on the primary.
func (g *Gateway) escalate(ctx context.Context, c *call, prior, retries int) (*Result, error) {
	text, attempts, err := g.run(ctx, c, g.fallback, retries)
	if err == nil {
		return c.result(text, g.fallback, prior+attempts, true), nil
	}
	kind := ErrProvider
	if llm.IsRateLimited(err) && ctx.Err() == nil {
		kind = ErrRateLimited
	}
	return nil, &Error{Kind: kind, Model: g.fallback.model.Name, Tokens: c.tokens(), Err: err}
}

// run calls s, repeating after the retry delay while the provider reports a
// rate limit, up to retries extra attempts.
func (g *Gateway) run(ctx context.Context, c *call, s *slot, retries int) (string, int, error) {
	attempts := 0
	for {
		attempts++
		text, err := g.attempt(ctx, c, s)
		if err == nil {
			return text, attempts, nil
		}
		if !llm.IsRateLimited(err) || attempts > retries {
			return "", attempts, err
		}
		c.log.Warn("gateway: rate limited, retrying",
			"model", s.model.Name, "attempt", attempts, "delay", g.retryDelay)
		if werr := g.sleep(ctx, g.retryDelay); werr != nil {
			return "", attempts, werr
		}
	}
}

// attempt performs one completion call through the slot's breaker.
func (g *Gateway) attempt(ctx context.Context, c *call, s *slot) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	ctx, span := observe.StartSpan(ctx, "gateway.attempt",
		trace.WithAttributes(attribute.String("model", s.model.Name)))
	defer span.End()

	start := time.Now()
	out, err := s.cb.Execute(func() (interface{}, error) {
		resp, err := s.model.Provider.Complete(ctx, llm.CompletionRequest{Messages: c.msgs})
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("%s returned no response", s.model.Name)
		}
		return resp, nil
	})
	g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("model", s.model.Name),
			attribute.String("slot", string(s.name)),
		))

	if err != nil {
		observe.Fail(span, err)
		g.metrics.RecordProviderRequest(ctx, s.model.Name, "llm", "error")
		g.metrics.RecordProviderError(ctx, s.model.Name, errorKind(err))
		return "", err
	}
	g.metrics.RecordProviderRequest(ctx, s.model.Name, "llm", "ok")
	return out.(*llm.CompletionResponse).Content, nil
}

func (c *call) result(text string, s *slot, attempts int, escalated bool) *Result {
	return &Result{
		Text:         text,
		Model:        s.model.Name,
		Slot:         s.name,
		PromptTokens: c.costs[s.name],
		Attempts:     attempts,
		Escalated:    escalated,
	}
}

// errorKind labels a provider error for the error counter.
func errorKind(err error) string {
	switch {
	case llm.IsRateLimited(err):
		return "rate_limited"
	case llm.IsInvalidArgument(err):
		return "invalid_argument"
	case isOpen(err):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
