// Package corrector defines the boundary between the correction service and
// whatever produces corrections, normally a language model.
//
// A [Corrector] is asked either to annotate a text with discrete errors or to
// rewrite it in full. The service never trusts the output blindly: rewritten
// text is diffed against the original and checked against the protected
// markers before anything is returned to a client.
package corrector

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by Corrector implementations.
var (
	// ErrMalformedOutput reports output that cannot be parsed or violates the
	// expected shape. Partial output is never recovered.
	ErrMalformedOutput = errors.New("malformed corrector output")

	// ErrUnavailable reports a backend failure or timeout.
	ErrUnavailable = errors.New("corrector unavailable")

	// ErrInputTooLarge reports a request that does not fit the backend's
	// context window.
	ErrInputTooLarge = errors.New("input too large for corrector")
)

// Mode selects what a [Corrector] produces.
type Mode string

const (
	// ModeAnnotate asks for a list of [Annotation] values.
	ModeAnnotate Mode = "annotate"

	// ModeRewrite asks for the fully corrected text.
	ModeRewrite Mode = "rewrite"
)

// ParseMode maps a wire value onto a Mode. The empty string selects
// [ModeAnnotate], the behaviour of the original check endpoint.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAnnotate:
		return ModeAnnotate, nil
	case ModeRewrite:
		return ModeRewrite, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Annotation is one error found in the original text.
type Annotation struct {
	// Error is the incorrect text as it appears in the original.
	Error string `json:"error"`

	// Correction is the suggested replacement for Error.
	Correction string `json:"correction"`

	// Position is the code point offset in the original text at which Error
	// starts. It is reported by the model and therefore advisory.
	Position int `json:"position"`
}

// Request is the input of [Corrector.Correct].
type Request struct {
	Text string
	Mode Mode

	// Markers lists the literal tokens the corrector must leave untouched.
	Markers []string

	// Annotations optionally guides a rewrite with previously found errors.
	Annotations []Annotation
}

// Output is the result of [Corrector.Correct]. Exactly one of Annotations or
// Corrected is meaningful, selected by Mode.
type Output struct {
	Mode        Mode
	Annotations []Annotation
	Corrected   string
}

// Corrector produces annotations or a corrected text for a request.
// Implementations must be safe for concurrent use and must honour ctx
// cancellation.
type Corrector interface {
	Correct(ctx context.Context, req Request) (*Output, error)
}
