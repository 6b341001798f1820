// Package mcptool exposes the correction service as an MCP server so that
// agents can check and rewrite text through tool calls.
//
// Three tools are registered by [NewServer]:
//   - "check_text" annotates a text without changing it.
//   - "rewrite_text" rewrites a text and returns the replace ops.
//   - "apply_corrections" applies caller-supplied annotations to a text.
//
// Tool failures are reported as tool results with IsError set, carrying the
// same error codes as the HTTP API.
package mcptool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/observe"
	"github.com/MrWong99/textfix/internal/patch"
)

// Tool names.
const (
	ToolCheckText        = "check_text"
	ToolRewriteText      = "rewrite_text"
	ToolApplyCorrections = "apply_corrections"
)

// Corrections is the part of [correction.Service] the tools call.
type Corrections interface {
	Check(ctx context.Context, req correction.Request) (*correction.Result, error)
	ApplyCorrections(ctx context.Context, text string, annotations []corrector.Annotation, marker string) (string, error)
}

// TextArgs is the input of check_text and rewrite_text.
type TextArgs struct {
	Text   string `json:"text" jsonschema:"the text to correct"`
	Marker string `json:"marker,omitempty" jsonschema:"protected marker to preserve; defaults to the server's markers"`
}

// CheckResult is the output of check_text.
type CheckResult struct {
	Annotations []corrector.Annotation `json:"annotations"`
}

// RewriteResult is the output of rewrite_text.
type RewriteResult struct {
	Ops       []patch.ReplaceOp `json:"ops"`
	Corrected string            `json:"corrected"`
}

// ApplyArgs is the input of apply_corrections.
type ApplyArgs struct {
	Text        string                 `json:"text" jsonschema:"the original text"`
	Annotations []corrector.Annotation `json:"annotations" jsonschema:"corrections to apply, each naming the erroneous span and its replacement"`
	Marker      string                 `json:"marker,omitempty" jsonschema:"protected marker to preserve; defaults to the server's markers"`
}

// ApplyResult is the output of apply_corrections.
type ApplyResult struct {
	Corrected string `json:"corrected"`
}

type tools struct {
	svc     Corrections
	metrics *observe.Metrics
}

// NewServer builds an MCP server with the correction tools registered.
// A nil m records to [observe.DefaultMetrics].
func NewServer(svc Corrections, m *observe.Metrics, version string) *mcp.Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	t := &tools{svc: svc, metrics: m}

	server := mcp.NewServer(&mcp.Implementation{Name: "textfix", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolCheckText,
		Description: "Find spelling and grammar errors in a text. Returns annotations with the erroneous span, its correction and its position. Protected markers such as **** are never annotated.",
	}, t.checkText)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolRewriteText,
		Description: "Correct a text and return the minimal replace operations that turn it into the corrected text. Protected markers are preserved.",
	}, t.rewriteText)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolApplyCorrections,
		Description: "Apply a list of annotations to a text and return the corrected text. Fails if a correction would alter a protected marker.",
	}, t.applyCorrections)
	return server
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func (t *tools) checkText(ctx context.Context, _ *mcp.CallToolRequest, args TextArgs) (*mcp.CallToolResult, CheckResult, error) {
	res, err := t.svc.Check(ctx, correction.Request{Text: args.Text, Mode: corrector.ModeAnnotate, Marker: args.Marker})
	if err := t.done(ctx, ToolCheckText, err); err != nil {
		return nil, CheckResult{}, err
	}
	return nil, CheckResult{Annotations: res.Annotations}, nil
}

func (t *tools) rewriteText(ctx context.Context, _ *mcp.CallToolRequest, args TextArgs) (*mcp.CallToolResult, RewriteResult, error) {
	res, err := t.svc.Check(ctx, correction.Request{Text: args.Text, Mode: corrector.ModeRewrite, Marker: args.Marker})
	if err := t.done(ctx, ToolRewriteText, err); err != nil {
		return nil, RewriteResult{}, err
	}
	return nil, RewriteResult{Ops: res.Ops, Corrected: res.Corrected}, nil
}

func (t *tools) applyCorrections(ctx context.Context, _ *mcp.CallToolRequest, args ApplyArgs) (*mcp.CallToolResult, ApplyResult, error) {
	corrected, err := t.svc.ApplyCorrections(ctx, args.Text, args.Annotations, args.Marker)
	if err := t.done(ctx, ToolApplyCorrections, err); err != nil {
		return nil, ApplyResult{}, err
	}
	return nil, ApplyResult{Corrected: corrected}, nil
}

// done records the call and turns err into the message the client sees.
func (t *tools) done(ctx context.Context, tool string, err error) error {
	code := correction.ErrorCode(err)
	t.metrics.RecordToolCall(ctx, tool, code)
	if err == nil {
		return nil
	}
	observe.Logger(ctx).Debug("mcptool: tool call failed", slog.String("tool", tool), slog.String("code", code), "err", err)
	return fmt.Errorf("%s: %s", code, correction.PublicMessage(err))
}
