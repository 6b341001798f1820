// Package llmcorrect implements [corrector.Corrector] on top of an
// [llm.Provider].
//
// The model is prompted with the text and the list of protected markers. In
// annotate mode it must answer with a JSON array of errors, which is checked
// against a JSON Schema before use. In rewrite mode it answers with the full
// corrected text. Anything that cannot be parsed is reported as
// [corrector.ErrMalformedOutput]; the service never guesses at partial
// output.
package llmcorrect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/MrWong99/textfix/internal/corrector"
	llm "github.com/MrWong99/textfix/pkg/provider/llm"
)

const (
	defaultTemperature = 0.0
	defaultRetries     = 1
	defaultRetryDelay  = 500 * time.Millisecond
)

const annotateSystemPrompt = `You are a grammar expert. Analyze the given text for grammatical errors and suggest corrections.
%s
Provide your output strictly as a JSON array in this exact format (no markdown, no prose):
[
  {"error": "<the incorrect text>", "correction": "<corrected version>", "position": <zero-based character index where the error starts>}
]
If the text has no errors, return an empty array [].`

const rewriteSystemPrompt = `You are a grammar expert. Produce the fully corrected version of the given text.
%s
Change only what is necessary to fix errors. Keep the wording, line breaks and formatting of the original otherwise.
Reply with ONLY the corrected text, without quotes, labels, markdown or explanations.`

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Zero leaves the provider
// default.
func WithMaxTokens(n int) Option {
	return func(c *Corrector) {
		c.maxTokens = n
	}
}

// WithRetries sets how many times a failed provider call is retried and the
// delay before each retry. Default: one retry after 500ms.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Corrector) {
		if n >= 0 {
			c.retries = n
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithTimeout bounds each Correct call including retries. Zero means the
// caller's context alone decides.
func WithTimeout(d time.Duration) Option {
	return func(c *Corrector) {
		c.timeout = d
	}
}

// Corrector uses an [llm.Provider] to annotate or rewrite text. It is safe
// for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to correct
// with a specific model, construct the [llm.Provider] with that model.
type Corrector struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	retries     int
	retryDelay  time.Duration
	timeout     time.Duration
}

// New returns a new [Corrector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct implements [corrector.Corrector].
func (c *Corrector) Correct(ctx context.Context, req corrector.Request) (*corrector.Output, error) {
	var sysPrompt, userMsg string
	switch req.Mode {
	case corrector.ModeAnnotate:
		sysPrompt = fmt.Sprintf(annotateSystemPrompt, markerRule(req.Markers))
		userMsg = "Text: \"" + req.Text + "\""
	case corrector.ModeRewrite:
		sysPrompt = fmt.Sprintf(rewriteSystemPrompt, markerRule(req.Markers))
		userMsg = "Text: \"" + req.Text + "\""
		if len(req.Annotations) > 0 {
			guidance, err := json.Marshal(req.Annotations)
			if err != nil {
				return nil, fmt.Errorf("llmcorrect: encode annotations: %w", err)
			}
			userMsg += "\nerrors: " + string(guidance)
		}
	default:
		return nil, fmt.Errorf("llmcorrect: unsupported mode %q", req.Mode)
	}

	creq := llm.CompletionRequest{
		SystemPrompt: sysPrompt,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: userMsg},
		},
	}
	if err := c.checkBudget(creq); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.complete(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("llmcorrect: complete: %w: %w", corrector.ErrUnavailable, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llmcorrect: %w: empty response", corrector.ErrMalformedOutput)
	}
	if resp.FinishReason == "length" {
		// A truncated answer is never a usable correction.
		return nil, fmt.Errorf("llmcorrect: %w: output truncated at max tokens", corrector.ErrMalformedOutput)
	}

	out := &corrector.Output{Mode: req.Mode}
	switch req.Mode {
	case corrector.ModeAnnotate:
		out.Annotations, err = parseAnnotations(resp.Content)
	case corrector.ModeRewrite:
		out.Corrected, err = parseRewrite(resp.Content, req.Text)
	}
	if err != nil {
		slog.Debug("llmcorrect: unparseable model output",
			"mode", req.Mode, "content_len", len(resp.Content), "error", err)
		return nil, fmt.Errorf("llmcorrect: %w", err)
	}
	return out, nil
}

// complete calls the provider, retrying failures until the retry budget or
// the context runs out.
func (c *Corrector) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := retry.Do(
		func() error {
			r, err := c.llm.Complete(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries+1)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("llmcorrect: provider call failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	return resp, err
}

// checkBudget rejects requests whose prompt plus completion reserve cannot
// fit the model's context window. Providers that report no window, or fail
// to count, are not checked.
func (c *Corrector) checkBudget(req llm.CompletionRequest) error {
	caps := c.llm.Capabilities()
	if caps.ContextWindow <= 0 {
		return nil
	}
	msgs := append([]llm.Message{{Role: "system", Content: req.SystemPrompt}}, req.Messages...)
	tokens, err := c.llm.CountTokens(msgs)
	if err != nil {
		slog.Debug("llmcorrect: token count failed, skipping budget check", "error", err)
		return nil
	}
	reserve := c.maxTokens
	if reserve <= 0 {
		reserve = caps.MaxOutputTokens
	}
	if tokens+reserve > caps.ContextWindow {
		return fmt.Errorf("llmcorrect: %w: %d prompt tokens + %d reserved exceed window of %d",
			corrector.ErrInputTooLarge, tokens, reserve, caps.ContextWindow)
	}
	return nil
}

// markerRule renders the prompt paragraph that protects the markers.
func markerRule(markers []string) string {
	if len(markers) == 0 {
		return ""
	}
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = fmt.Sprintf("'%s'", m)
	}
	return fmt.Sprintf("IMPORTANT: Treat every occurrence of the literal token(s) %s as valid and immutable. "+
		"Do NOT remove, modify, merge, split, add or reposition any of them, even if the surrounding words change, "+
		"and ignore them during grammar checks.\n", strings.Join(quoted, ", "))
}

var _ corrector.Corrector = (*Corrector)(nil)
