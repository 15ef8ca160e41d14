package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

const (
	tagOpen  = "<tool_call>"
	tagClose = "</tool_call>"
)

var fenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// ParseToolCalls extracts tool directives from model text. Two grammars
// are accepted: <tool_call>…</tool_call> tags, and fenced json blocks
// containing a tool_name key. Tag matches win; the fenced grammar is
// only consulted when no tag matched. Directives whose JSON body does
// not parse are dropped silently and contribute no call.
func ParseToolCalls(text string) []ToolCall {
	calls := parseTagged(text)
	if len(calls) > 0 {
		return calls
	}
	return parseFenced(text)
}

func parseTagged(text string) []ToolCall {
	calls := []ToolCall{}
	rest := text
	for {
		start := strings.Index(rest, tagOpen)
		if start < 0 {
			break
		}
		rest = rest[start+len(tagOpen):]

		end := strings.Index(rest, tagClose)
		if end < 0 {
			break
		}
		body := rest[:end]
		rest = rest[end+len(tagClose):]

		if call, ok := decodeCall(body); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func parseFenced(text string) []ToolCall {
	calls := []ToolCall{}
	for _, match := range fenceRe.FindAllStringSubmatch(text, -1) {
		body := match[1]
		if !strings.Contains(body, "tool_name") {
			continue
		}
		if call, ok := decodeCall(body); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// decodeCall locates the first balanced JSON object inside body with a
// depth-aware scan (nested parameter objects are never mis-clipped) and
// unmarshals it. Malformed JSON yields no call.
func decodeCall(body string) (ToolCall, bool) {
	object, ok := extractObject(body)
	if !ok {
		return ToolCall{}, false
	}

	var raw struct {
		ToolName       string                 `json:"tool_name"`
		Parameters     map[string]interface{} `json:"parameters"`
		Reasoning      string                 `json:"reasoning"`
		ExpectedOutput string                 `json:"expected_output"`
	}
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		log.Debug().Err(err).Msg("Dropping malformed tool directive")
		return ToolCall{}, false
	}
	if raw.ToolName == "" {
		return ToolCall{}, false
	}

	id, _ := gonanoid.New()
	return ToolCall{
		ID:             id,
		ToolName:       raw.ToolName,
		Parameters:     normalizeParams(raw.Parameters),
		Reasoning:      raw.Reasoning,
		ExpectedOutput: raw.ExpectedOutput,
	}, true
}

// extractObject returns the first balanced {...} span in s, honoring
// string literals and escapes.
func extractObject(s string) (string, bool) {
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

// normalizeParams maps JSON values structurally: integral floats become
// ints, nulls become empty strings, containers recurse.
func normalizeParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return int(val)
		}
		return val
	case map[string]interface{}:
		return normalizeParams(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// StripToolMarkup removes tool directives from text, leaving the prose
// that becomes the user-facing answer.
func StripToolMarkup(text string) string {
	out := text
	for {
		start := strings.Index(out, tagOpen)
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], tagClose)
		if end < 0 {
			out = out[:start]
			break
		}
		out = out[:start] + out[start+end+len(tagClose):]
	}
	out = fenceRe.ReplaceAllStringFunc(out, func(block string) string {
		if strings.Contains(block, "tool_name") {
			return ""
		}
		return block
	})
	return strings.TrimSpace(out)
}

// EncodeToolCall renders a call in the tag grammar. Used in prompts and
// round-trip tests.
func EncodeToolCall(call ToolCall) (string, error) {
	payload := map[string]interface{}{
		"tool_name": call.ToolName,
	}
	if len(call.Parameters) > 0 {
		payload["parameters"] = call.Parameters
	}
	if call.Reasoning != "" {
		payload["reasoning"] = call.Reasoning
	}
	if call.ExpectedOutput != "" {
		payload["expected_output"] = call.ExpectedOutput
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return tagOpen + "\n" + string(body) + "\n" + tagClose, nil
}
