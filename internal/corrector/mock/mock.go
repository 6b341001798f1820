// Package mock provides a test double for the corrector.Corrector interface.
//
// Example:
//
//	c := &mock.Corrector{
//	    Output: &corrector.Output{Mode: corrector.ModeRewrite, Corrected: "Hello, world!"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/textfix/internal/corrector"
)

// Corrector is a mock implementation of corrector.Corrector.
type Corrector struct {
	mu sync.Mutex

	// Output is returned by Correct when CorrectFunc is nil.
	Output *corrector.Output

	// Err, if non-nil, is returned by Correct when CorrectFunc is nil.
	Err error

	// CorrectFunc, if set, computes the result from the request.
	CorrectFunc func(ctx context.Context, req corrector.Request) (*corrector.Output, error)

	// Requests records every request passed to Correct in order.
	Requests []corrector.Request
}

// Correct records req and returns the configured result.
func (c *Corrector) Correct(ctx context.Context, req corrector.Request) (*corrector.Output, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	fn, out, err := c.CorrectFunc, c.Output, c.Err
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return out, err
}

// Calls returns a snapshot of the recorded requests.
func (c *Corrector) Calls() []corrector.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]corrector.Request, len(c.Requests))
	copy(out, c.Requests)
	return out
}

// Rewrite returns a CorrectFunc that answers every rewrite request with
// corrected.
func Rewrite(corrected string) func(context.Context, corrector.Request) (*corrector.Output, error) {
	return func(_ context.Context, req corrector.Request) (*corrector.Output, error) {
		return &corrector.Output{Mode: corrector.ModeRewrite, Corrected: corrected}, nil
	}
}

var _ corrector.Corrector = (*Corrector)(nil)
