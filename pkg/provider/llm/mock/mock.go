// Package mock is a scripted [llm.Provider] for tests.
//
// Set the response fields before use; every call is recorded so tests can
// inspect the prompts that reached the backend:
//
//	p := &mock.Provider{
//	    TokenCount:       120,
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"translations": ["a", "b", "c", "d"]}`},
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// CountTokensCall is one recorded CountTokens invocation.
type CountTokensCall struct {
	Messages []llm.Message
}

// Provider implements [llm.Provider] and [llm.Lister] from its exported
// fields. Fields must not be changed while calls are in flight.
type Provider struct {
	mu sync.Mutex

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	// CompleteErrs scripts the outcome of successive Complete calls; a nil
	// entry succeeds. Once drained, CompleteErr applies.
	CompleteErrs []error

	TokenCount     int
	CountTokensErr error

	ModelCapabilities llm.ModelCapabilities

	Models        []llm.ModelInfo
	ListModelsErr error

	CompleteCalls         []CompleteCall
	CountTokensCalls      []CountTokensCall
	CapabilitiesCallCount int
}

var (
	_ llm.Provider = (*Provider)(nil)
	_ llm.Lister   = (*Provider)(nil)
)

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	err := p.CompleteErr
	if len(p.CompleteErrs) > 0 {
		err, p.CompleteErrs = p.CompleteErrs[0], p.CompleteErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	return p.CompleteResponse, nil
}

func (p *Provider) CountTokens(_ context.Context, messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountTokensCalls = append(p.CountTokensCalls, CountTokensCall{Messages: slices.Clone(messages)})
	return p.TokenCount, p.CountTokensErr
}

func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

func (p *Provider) ListModels(context.Context) ([]llm.ModelInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Models, p.ListModelsErr
}

// CompleteCallCount is safe to call while other goroutines use p.
func (p *Provider) CompleteCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
