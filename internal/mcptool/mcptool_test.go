package mcptool_test

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/corrector/mock"
	"github.com/MrWong99/textfix/internal/mcptool"
	"github.com/MrWong99/textfix/internal/observe"
	"github.com/MrWong99/textfix/internal/patch"
)

// connect starts the tool server over in-memory transports and returns a
// connected client session.
func connect(t *testing.T, c corrector.Corrector, m *observe.Metrics) *mcp.ClientSession {
	t.Helper()
	svc, err := correction.New(c)
	if err != nil {
		t.Fatalf("correction.New: %v", err)
	}
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := mcptool.NewServer(svc, m, "test").Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

// structured re-decodes the structured content of res into v.
func structured(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error: %s", text(res))
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal structured content %s: %v", data, err)
	}
}

func text(res *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestListTools(t *testing.T) {
	t.Parallel()

	cs := connect(t, &mock.Corrector{}, nil)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
	want := []string{mcptool.ToolApplyCorrections, mcptool.ToolCheckText, mcptool.ToolRewriteText}
	if len(names) != len(want) {
		t.Fatalf("tools = %v, want %v", names, want)
	}
	for _, w := range want {
		found := false
		for _, n := range names {
			found = found || n == w
		}
		if !found {
			t.Errorf("tool %q not registered (have %v)", w, names)
		}
	}
}

func TestCheckText(t *testing.T) {
	t.Parallel()

	anns := []corrector.Annotation{{Error: "teh", Correction: "the", Position: 0}}
	c := &mock.Corrector{Output: &corrector.Output{Mode: corrector.ModeAnnotate, Annotations: anns}}
	cs := connect(t, c, nil)

	var got mcptool.CheckResult
	structured(t, call(t, cs, mcptool.ToolCheckText, map[string]any{"text": "teh cat"}), &got)
	if !reflect.DeepEqual(got.Annotations, anns) {
		t.Errorf("annotations = %+v, want %+v", got.Annotations, anns)
	}
	if calls := c.Calls(); len(calls) != 1 || calls[0].Mode != corrector.ModeAnnotate {
		t.Errorf("corrector calls = %+v, want one annotate call", calls)
	}
}

func TestRewriteText(t *testing.T) {
	t.Parallel()

	cs := connect(t, &mock.Corrector{CorrectFunc: mock.Rewrite("secret **** tokens")}, nil)

	var got mcptool.RewriteResult
	structured(t, call(t, cs, mcptool.ToolRewriteText, map[string]any{"text": "secret **** token"}), &got)
	want := []patch.ReplaceOp{{Start: 17, Length: 0, Replacement: "s"}}
	if !reflect.DeepEqual(got.Ops, want) {
		t.Errorf("ops = %+v, want %+v", got.Ops, want)
	}
	if got.Corrected != "secret **** tokens" {
		t.Errorf("corrected = %q, want %q", got.Corrected, "secret **** tokens")
	}
}

func TestApplyCorrections(t *testing.T) {
	t.Parallel()

	c := &mock.Corrector{CorrectFunc: mock.Rewrite("the **** cat")}
	cs := connect(t, c, nil)

	var got mcptool.ApplyResult
	structured(t, call(t, cs, mcptool.ToolApplyCorrections, map[string]any{
		"text": "teh **** cat",
		"annotations": []map[string]any{
			{"error": "teh", "correction": "the", "position": 0},
		},
	}), &got)
	if got.Corrected != "the **** cat" {
		t.Errorf("corrected = %q, want %q", got.Corrected, "the **** cat")
	}
}

func TestToolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		c        *mock.Corrector
		tool     string
		args     map[string]any
		wantText string
	}{
		{
			name:     "protected token",
			c:        &mock.Corrector{CorrectFunc: mock.Rewrite("secret [redacted] token")},
			tool:     mcptool.ToolRewriteText,
			args:     map[string]any{"text": "secret **** token"},
			wantText: "protected_token_violation: the correction would alter a protected marker",
		},
		{
			name:     "corrector unavailable",
			c:        &mock.Corrector{Err: corrector.ErrUnavailable},
			tool:     mcptool.ToolCheckText,
			args:     map[string]any{"text": "x"},
			wantText: "unavailable: the corrector is currently unavailable",
		},
		{
			name:     "apply alters marker",
			c:        &mock.Corrector{CorrectFunc: mock.Rewrite("the cat")},
			tool:     mcptool.ToolApplyCorrections,
			args:     map[string]any{"text": "teh **** cat", "annotations": []map[string]any{}},
			wantText: "protected_token_violation: the correction would alter a protected marker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := call(t, connect(t, tt.c, nil), tt.tool, tt.args)
			if !res.IsError {
				t.Fatalf("IsError = false, want true (content %q)", text(res))
			}
			got := text(res)
			if got != tt.wantText {
				t.Errorf("content = %q, want %q", got, tt.wantText)
			}
			for _, leak := range []string{"op [", "touches", "llmcorrect", "correction:"} {
				if strings.Contains(got, leak) {
					t.Errorf("content = %q leaks %q", got, leak)
				}
			}
		})
	}
}

func TestToolCallsAreRecorded(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cs := connect(t, &mock.Corrector{CorrectFunc: mock.Rewrite("a b")}, m)
	call(t, cs, mcptool.ToolRewriteText, map[string]any{"text": "a **** b"})
	call(t, cs, mcptool.ToolRewriteText, map[string]any{"text": "a b"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "textfix.tool.calls" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("textfix.tool.calls is %T, want Sum[int64]", met.Data)
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	if counts["ok"] != 1 || counts["protected_token_violation"] != 1 {
		t.Errorf("tool call counts = %v, want one ok and one protected_token_violation", counts)
	}
}
