// Package interpreter decides whether a model reply is a tool call or a plain answer.
package interpreter

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nkiryanov/courseadvisor/internal/models"
)

type Kind int

const (
	PlainText Kind = iota
	ToolCall
)

func (k Kind) String() string {
	if k == ToolCall {
		return "tool_call"
	}
	return "plain_text"
}

// Result of interpretation
// Call is set for ToolCall, Text holds the raw reply for PlainText
type Result struct {
	Kind Kind
	Call models.ToolCall
	Text string
}

type envelope struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Interpret never fails: anything that is not a call of a known tool is plain text
func Interpret(raw string, known func(name string) bool) Result {
	plain := Result{Kind: PlainText, Text: raw}

	obj, ok := firstObject(stripFences(raw))
	if !ok {
		return plain
	}

	var env envelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return plain
	}

	name := strings.TrimSpace(env.Tool)
	if name == "" {
		return plain
	}

	args, ok := decodeArgs(env.Args)
	if !ok {
		return plain
	}

	if known != nil && !known(name) {
		return plain
	}

	return Result{
		Kind: ToolCall,
		Call: models.ToolCall{Name: name, Args: args},
		Text: raw,
	}
}

// Opening fence may carry a language tag, e.g. ```json
var fenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

// stripFences removes markdown code fence markers keeping the fenced content
func stripFences(s string) string {
	return fenceRe.ReplaceAllString(s, "")
}

// firstObject returns the first balanced {...} substring
// Braces inside JSON string literals are not counted
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// Missing or null args is an empty map, any other non-object is rejected
// Non-string values are kept as their JSON text
func decodeArgs(raw json.RawMessage) (map[string]string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]string{}, true
	}
	if trimmed[0] != '{' {
		return nil, false
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, false
	}

	args := make(map[string]string, len(values))
	for k, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			args[k] = s
			continue
		}
		args[k] = string(bytes.TrimSpace(v))
	}
	return args, true
}
