// Package structured implements structured-output mode: the system prompt is
// augmented with strict JSON instructions and the reply is parsed back into
// data, with fallback extraction strategies for replies that wrap the JSON.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ParseError is returned by Extract when no strategy produced valid JSON.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("structured output is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the outcome of a structured call. Error is set, next to the raw
// Response, when the reply could not be parsed.
type Result struct {
	Response       string `json:"response"`
	StructuredData any    `json:"structuredData,omitempty"`
	Error          string `json:"error,omitempty"`
}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// AugmentPrompt appends formatting instructions for schema to systemPrompt.
// An empty schema leaves the prompt unchanged.
func AugmentPrompt(systemPrompt string, schema json.RawMessage) string {
	if len(bytes.TrimSpace(schema)) == 0 {
		return systemPrompt
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, schema, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(schema)
	}

	var b strings.Builder
	if s := strings.TrimSpace(systemPrompt); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond ONLY with a JSON value that conforms to this JSON schema:\n")
	b.WriteString(pretty.String())
	b.WriteString("\n\nDo not add explanations, markdown fences or any text outside the JSON.")
	return b.String()
}

// Extract parses raw as JSON. It tries, in order: the whole text, the text
// with a leading "json" label stripped, and the first ```json fenced block.
func Extract(raw string) (any, error) {
	text := strings.TrimSpace(raw)

	var firstErr error
	try := func(candidate string) (any, bool) {
		var v any
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			return v, true
		}
		if firstErr == nil {
			firstErr = err
		}
		return nil, false
	}

	if v, ok := try(text); ok {
		return v, nil
	}
	if rest, found := strings.CutPrefix(text, "json"); found {
		if v, ok := try(strings.TrimSpace(rest)); ok {
			return v, nil
		}
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if v, ok := try(strings.TrimSpace(m[1])); ok {
			return v, nil
		}
	}
	if firstErr == nil {
		firstErr = errors.New("empty response")
	}
	return nil, &ParseError{Raw: raw, Err: firstErr}
}

// Parse wraps Extract into a Result. It never fails.
func Parse(raw string) Result {
	res := Result{Response: raw}
	data, err := Extract(raw)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.StructuredData = data
	return res
}

// Complete runs req against p. When req carries a schema the prompt is
// augmented and the reply parsed; StructuredData or Error is filled in on the
// returned reply. Fallback replies are passed through unparsed.
func Complete(ctx context.Context, p provider.ChatProvider, req models.ChatRequest) (*models.ChatReply, error) {
	if len(bytes.TrimSpace(req.Schema)) == 0 {
		return p.Complete(ctx, req)
	}

	req.SystemPrompt = AugmentPrompt(req.SystemPrompt, req.Schema)
	reply, err := p.Complete(ctx, req)
	if err != nil || reply.Fallback {
		return reply, err
	}

	res := Parse(reply.Response)
	reply.StructuredData = res.StructuredData
	reply.Error = res.Error
	return reply, nil
}
