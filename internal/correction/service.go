// Package correction is the service facade of textfix. It asks a
// [corrector.Corrector] for corrections and turns rewritten text into an
// applyable edit script.
//
// A rewrite is never returned as-is: the corrected text is diffed against the
// original, reduced to [patch.ReplaceOp] values and checked against the
// protected markers. The ops are only returned when applying them to the
// original reproduces the corrected text exactly.
package correction

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/textfix/internal/anchor"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/diff"
	"github.com/MrWong99/textfix/internal/guard"
	"github.com/MrWong99/textfix/internal/observe"
	"github.com/MrWong99/textfix/internal/patch"
)

// DefaultMarker is the protected marker used when none is configured.
const DefaultMarker = "****"

// ErrInvalidRequest reports a request the service refuses before or instead
// of producing a result. It also wraps [corrector.ErrInputTooLarge].
var ErrInvalidRequest = errors.New("invalid request")

// errInconsistent reports an edit script that does not reproduce the
// corrected text. It indicates a bug, never bad input.
var errInconsistent = errors.New("correction: edit script does not reproduce corrected text")

// Request is the input of [Service.Check].
type Request struct {
	Text string

	// Mode defaults to [corrector.ModeAnnotate] when empty.
	Mode corrector.Mode

	// Marker, when set, replaces the configured markers for this request.
	Marker string
}

// Result is the output of [Service.Check]. Annotations is set in annotate
// mode, Ops and Corrected in rewrite mode.
type Result struct {
	Mode        corrector.Mode
	Annotations []corrector.Annotation
	Ops         []patch.ReplaceOp
	Corrected   string
}

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithMarkers sets the default protected markers. Calling it without
// arguments disables marker protection. Default: [DefaultMarker].
func WithMarkers(markers ...string) Option {
	return func(s *Service) {
		s.markers = markers
	}
}

// WithMaxEditDistance caps the diff search. Zero keeps the diff default.
func WithMaxEditDistance(d int) Option {
	return func(s *Service) {
		s.maxEditDistance = d
	}
}

// WithOffsetUnits selects the unit of emitted offsets. Default:
// [patch.UnitsCodepoint].
func WithOffsetUnits(u patch.Units) Option {
	return func(s *Service) {
		s.units = u
	}
}

// WithAnchorer re-anchors annotation positions on the original text before
// they are returned. Nil disables anchoring.
func WithAnchorer(a *anchor.Anchorer) Option {
	return func(s *Service) {
		s.anchorer = a
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service orchestrates a corrector, the diff engine and the marker guard. It
// is safe for concurrent use; the default markers may be swapped at runtime
// with [Service.SetMarkers].
type Service struct {
	corrector corrector.Corrector

	// guard is nil when marker protection is disabled.
	guard atomic.Pointer[guard.Guard]

	markers         []string
	maxEditDistance int
	units           patch.Units
	anchorer        *anchor.Anchorer
	metrics         *observe.Metrics
}

// New creates a [Service] backed by c.
func New(c corrector.Corrector, opts ...Option) (*Service, error) {
	if c == nil {
		return nil, errors.New("correction: corrector must not be nil")
	}
	s := &Service{
		corrector: c,
		markers:   []string{DefaultMarker},
		units:     patch.UnitsCodepoint,
	}
	for _, o := range opts {
		o(s)
	}
	if !s.units.IsValid() {
		return nil, fmt.Errorf("correction: unknown offset units %q", s.units)
	}
	if s.maxEditDistance < 0 {
		return nil, fmt.Errorf("correction: max edit distance must not be negative, got %d", s.maxEditDistance)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if err := s.SetMarkers(s.markers...); err != nil {
		return nil, err
	}
	s.markers = nil
	return s, nil
}

// SetMarkers replaces the default protected markers. No markers disables
// protection for requests that do not name their own marker.
func (s *Service) SetMarkers(markers ...string) error {
	if len(markers) == 0 {
		s.guard.Store(nil)
		return nil
	}
	g, err := guard.New(markers...)
	if err != nil {
		return fmt.Errorf("correction: %w", err)
	}
	s.guard.Store(g)
	return nil
}

// Markers returns the current default markers.
func (s *Service) Markers() []string {
	if g := s.guard.Load(); g != nil {
		return g.Markers()
	}
	return nil
}

// guardFor returns the guard for a request. A request marker wins over the
// defaults.
func (s *Service) guardFor(marker string) *guard.Guard {
	if marker != "" {
		g, _ := guard.New(marker)
		return g
	}
	return s.guard.Load()
}

// Check corrects req.Text. In annotate mode the corrector's annotations are
// returned; annotations that would alter a protected marker are dropped. In
// rewrite mode the corrected text is reduced to validated replace ops.
func (s *Service) Check(ctx context.Context, req Request) (*Result, error) {
	mode, err := corrector.ParseMode(string(req.Mode))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	} else {
		err = checkInput(req.Text, req.Marker)
	}
	if err != nil {
		s.metrics.RecordCorrection(ctx, string(req.Mode), ErrorCode(err), 0, 0)
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanCheck,
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.Int("text.length", len(req.Text)),
		),
	)
	defer span.End()

	g := s.guardFor(req.Marker)
	start := time.Now()
	out, err := s.correct(ctx, corrector.Request{
		Text:    req.Text,
		Mode:    mode,
		Markers: markersOf(g),
	})
	correctorSeconds := time.Since(start).Seconds()

	var res *Result
	if err == nil {
		switch mode {
		case corrector.ModeAnnotate:
			res = &Result{Mode: mode, Annotations: s.annotations(ctx, g, req.Text, out.Annotations)}
		case corrector.ModeRewrite:
			var ops []patch.ReplaceOp
			if ops, err = s.reduce(ctx, g, req.Text, out.Corrected); err == nil {
				res = &Result{Mode: mode, Ops: ops, Corrected: out.Corrected}
			}
		}
	}

	nops := 0
	if res != nil {
		nops = len(res.Ops)
	}
	s.finish(ctx, span, string(mode), err, correctorSeconds, nops)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyCorrections asks the corrector to rewrite text guided by annotations
// and returns the corrected text once it has passed the same validation as a
// rewrite.
func (s *Service) ApplyCorrections(ctx context.Context, text string, annotations []corrector.Annotation, marker string) (string, error) {
	if err := checkInput(text, marker); err != nil {
		s.metrics.RecordCorrection(ctx, "apply", ErrorCode(err), 0, 0)
		return "", err
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanApply,
		trace.WithAttributes(
			attribute.Int("text.length", len(text)),
			attribute.Int("annotations", len(annotations)),
		),
	)
	defer span.End()

	g := s.guardFor(marker)
	start := time.Now()
	out, err := s.correct(ctx, corrector.Request{
		Text:        text,
		Mode:        corrector.ModeRewrite,
		Markers:     markersOf(g),
		Annotations: annotations,
	})
	correctorSeconds := time.Since(start).Seconds()

	var corrected string
	if err == nil {
		if _, err = s.reduce(ctx, g, text, out.Corrected); err == nil {
			corrected = out.Corrected
		}
	}

	s.finish(ctx, span, "apply", err, correctorSeconds, 0)
	if err != nil {
		return "", err
	}
	return corrected, nil
}

// correct calls the corrector and normalises its failures onto the error
// taxonomy.
func (s *Service) correct(ctx context.Context, req corrector.Request) (*corrector.Output, error) {
	out, err := s.corrector.Correct(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, corrector.ErrInputTooLarge):
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case errors.Is(err, corrector.ErrMalformedOutput), errors.Is(err, corrector.ErrUnavailable):
		return nil, fmt.Errorf("correction: %w", err)
	default:
		return nil, fmt.Errorf("correction: %w: %w", corrector.ErrUnavailable, err)
	}
	if out == nil || out.Mode != req.Mode {
		return nil, fmt.Errorf("correction: %w: corrector answered a %s request without %s output",
			corrector.ErrMalformedOutput, req.Mode, req.Mode)
	}
	if req.Mode == corrector.ModeRewrite && !utf8.ValidString(out.Corrected) {
		return nil, fmt.Errorf("correction: %w: corrected text is not valid UTF-8", corrector.ErrMalformedOutput)
	}
	return out, nil
}

// annotations post-processes corrector annotations for text.
func (s *Service) annotations(ctx context.Context, g *guard.Guard, text string, anns []corrector.Annotation) []corrector.Annotation {
	if s.anchorer != nil {
		anns = s.anchorer.Anchor(text, anns)
	}

	out := make([]corrector.Annotation, 0, len(anns))
	for _, a := range anns {
		if g != nil && g.Count(a.Error) != g.Count(a.Correction) {
			observe.Logger(ctx).Warn("correction: dropping annotation that alters a marker",
				"error", a.Error, "correction", a.Correction, "position", a.Position)
			s.metrics.GuardViolations.Add(ctx, 1)
			continue
		}
		out = append(out, a)
	}

	if s.units == patch.UnitsUTF16 && len(out) > 0 {
		idx := patch.NewUTF16Index(text)
		for i := range out {
			out[i].Position = idx.Offset(out[i].Position)
		}
	}
	return out
}

// reduce diffs original against corrected and returns the validated ops in
// the configured units. The result is never nil.
func (s *Service) reduce(ctx context.Context, g *guard.Guard, original, corrected string) ([]patch.ReplaceOp, error) {
	start := time.Now()
	defer func() {
		s.metrics.DiffDuration.Record(ctx, time.Since(start).Seconds())
	}()

	var (
		opts   []diff.Option
		ranges []guard.Range
	)
	if s.maxEditDistance > 0 {
		opts = append(opts, diff.WithMaxEditDistance(s.maxEditDistance))
	}
	if g != nil {
		opts = append(opts, diff.WithAtomizer(g.Split))
		ranges = g.Ranges(original)
	}

	ops := patch.Reduce(diff.Text(original, corrected, opts...))
	if err := patch.Validate(ops, ranges); err != nil {
		s.metrics.GuardViolations.Add(ctx, 1)
		return nil, fmt.Errorf("correction: %w", err)
	}
	// Markers are atoms, so a removed or altered one always surfaces above
	// as a touched range. Only a marker the corrector introduced is left.
	if g != nil {
		if before, after := len(ranges), g.Count(corrected); before != after {
			s.metrics.GuardViolations.Add(ctx, 1)
			return nil, fmt.Errorf("correction: %w: marker count changed from %d to %d",
				patch.ErrProtectedToken, before, after)
		}
	}

	applied, err := patch.Apply(original, ops)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInconsistent, err)
	}
	if applied != corrected {
		return nil, errInconsistent
	}

	if s.units == patch.UnitsUTF16 {
		ops = patch.ToUTF16(original, ops)
	}
	return ops, nil
}

// finish records metrics, span status and a log line for one request.
func (s *Service) finish(ctx context.Context, span trace.Span, mode string, err error, correctorSeconds float64, ops int) {
	status := ErrorCode(err)
	s.metrics.RecordCorrection(ctx, mode, status, correctorSeconds, ops)
	observe.FinishSpan(span, status, ops, err)

	log := observe.Logger(ctx)
	switch status {
	case "ok":
		log.Debug("correction finished", "mode", mode, "ops", ops, "corrector_seconds", correctorSeconds)
	case "invalid_request":
		log.Info("correction rejected", "mode", mode, "err", err)
	default:
		log.Warn("correction failed", "mode", mode, "status", status, "err", err)
	}
}

// publicMessages are shown to clients instead of the underlying error, which
// may carry corrector output or diff internals.
var publicMessages = map[string]string{
	"malformed_output":          "the corrector returned output that could not be used",
	"unavailable":               "the corrector is currently unavailable",
	"protected_token_violation": "the correction would alter a protected marker",
	"internal":                  "internal error",
}

// PublicMessage returns the client-facing message for err. Only invalid
// requests echo the error itself, since it describes the caller's input.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := publicMessages[ErrorCode(err)]; ok {
		return msg
	}
	return err.Error()
}

// checkInput rejects text the code point offsets cannot describe.
func checkInput(text, marker string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidRequest)
	}
	if !utf8.ValidString(marker) {
		return fmt.Errorf("%w: marker is not valid UTF-8", ErrInvalidRequest)
	}
	return nil
}

// ErrorCode maps err onto the stable code used in error responses and
// metrics. A nil error yields "ok".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, patch.ErrProtectedToken):
		return "protected_token_violation"
	case errors.Is(err, corrector.ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, corrector.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

func markersOf(g *guard.Guard) []string {
	if g == nil {
		return nil
	}
	return g.Markers()
}
