package llmcorrect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MrWong99/textfix/internal/corrector"
)

// annotationsSchema is the contract for annotate-mode output.
const annotationsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["error", "correction", "position"],
    "properties": {
      "error":      {"type": "string"},
      "correction": {"type": "string"},
      "position":   {"type": "integer", "minimum": 0}
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("annotations.json", strings.NewReader(annotationsSchema)); err != nil {
		return nil, fmt.Errorf("load annotations schema: %w", err)
	}
	return compiler.Compile("annotations.json")
})

// parseAnnotations decodes and validates annotate-mode output. A bare array
// is expected; an object wrapping the array under a single key is accepted
// since some models refuse to emit a top-level array.
func parseAnnotations(content string) ([]corrector.Annotation, error) {
	cleaned := stripMarkdown(content)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode annotations: %v", corrector.ErrMalformedOutput, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after annotations", corrector.ErrMalformedOutput)
	}
	doc = unwrapArray(doc)

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: annotations do not match schema: %v", corrector.ErrMalformedOutput, err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode annotations: %v", corrector.ErrMalformedOutput, err)
	}
	annotations := []corrector.Annotation{}
	if err := json.Unmarshal(raw, &annotations); err != nil {
		return nil, fmt.Errorf("%w: decode annotations: %v", corrector.ErrMalformedOutput, err)
	}
	return annotations, nil
}

// unwrapArray returns the array held by a single-key object, or doc itself.
func unwrapArray(doc any) any {
	obj, ok := doc.(map[string]any)
	if !ok || len(obj) != 1 {
		return doc
	}
	for _, v := range obj {
		if arr, ok := v.([]any); ok {
			return arr
		}
	}
	return doc
}

// parseRewrite extracts the corrected text from rewrite-mode output and
// restores the original's outer whitespace, which models tend to drop.
func parseRewrite(content, original string) (string, error) {
	text := stripMarkdown(content)
	if inner, ok := unwrapEnvelope(text); ok {
		text = inner
	} else {
		text = unquote(text, original)
	}
	text = strings.TrimSpace(text)
	if strings.TrimSpace(original) == "" {
		// Nothing to correct; an empty reply keeps the original as is.
		if text == "" {
			return original, nil
		}
		return text, nil
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty corrected text", corrector.ErrMalformedOutput)
	}
	return leadingSpace(original) + text + trailingSpace(original), nil
}

// unwrapEnvelope recognises the JSON shapes older prompts asked for:
// [{"Corrected_Text": "..."}] and {"corrected_text": "..."}. Key matching is
// case-insensitive.
func unwrapEnvelope(s string) (string, bool) {
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return "", false
	}
	var doc any
	if err := json.NewDecoder(bytes.NewReader([]byte(s))).Decode(&doc); err != nil {
		return "", false
	}
	if arr, ok := doc.([]any); ok {
		if len(arr) != 1 {
			return "", false
		}
		doc = arr[0]
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return "", false
	}
	for k, v := range obj {
		if strings.EqualFold(k, "corrected_text") {
			str, ok := v.(string)
			return str, ok
		}
	}
	return "", false
}

// unquote strips one pair of surrounding double quotes the model added
// because the prompt quoted the text.
func unquote(s, original string) string {
	trimmed := strings.TrimSpace(original)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' &&
		!(strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`)) {
		return s[1 : len(s)-1]
	}
	return s
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around their output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```text", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
				s = before
			}
			break
		}
	}
	return strings.TrimSpace(s)
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeftFunc(s, unicode.IsSpace))]
}

func trailingSpace(s string) string {
	return s[len(strings.TrimRightFunc(s, unicode.IsSpace)):]
}
