package resilience

import (
	"context"

	"github.com/MrWong99/textfix/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across the
// configured models. Each model has its own circuit breaker; when the primary
// fails or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens delegates to the first healthy provider's token counter.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the most restrictive limits across all entries, since
// any of them may end up serving a request. Zero (unknown) limits are ignored.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for _, e := range f.group.entries {
		c := e.value.Capabilities()
		caps.ContextWindow = minKnown(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minKnown(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

// Status reports the breaker state of every model in failover order.
func (f *LLMFallback) Status() []EntryStatus { return f.group.Status() }

// Healthy reports whether any model currently accepts requests.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

func minKnown(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}
