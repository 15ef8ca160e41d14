package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseToolCalls_Tagged tests the tag grammar
func TestParseToolCalls_Tagged(t *testing.T) {
	text := `I'll check that file for you.
<tool_call>
{"tool_name": "read_file", "parameters": {"path": "notes.txt"}, "reasoning": "inspect contents", "expected_output": "the file text"}
</tool_call>
Then I'll summarize it.`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)

	call := calls[0]
	assert.NotEmpty(t, call.ID)
	assert.Equal(t, "read_file", call.ToolName)
	assert.Equal(t, "notes.txt", call.Parameters["path"])
	assert.Equal(t, "inspect contents", call.Reasoning)
	assert.Equal(t, "the file text", call.ExpectedOutput)
}

// TestParseToolCalls_Fenced tests the fenced json grammar
func TestParseToolCalls_Fenced(t *testing.T) {
	text := "Here is what I'll do:\n```json\n{\"tool_name\": \"get_system_info\", \"parameters\": {}}\n```\n"

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_system_info", calls[0].ToolName)

	// A fenced block without a tool_name key is plain content, not a directive
	noDirective := "```json\n{\"data\": [1, 2, 3]}\n```"
	assert.Empty(t, ParseToolCalls(noDirective))
}

// TestParseToolCalls_TagGrammarWins tests grammar exclusivity
func TestParseToolCalls_TagGrammarWins(t *testing.T) {
	text := `<tool_call>
{"tool_name": "read_file", "parameters": {"path": "a.txt"}}
</tool_call>
` + "```json\n{\"tool_name\": \"http_get\", \"parameters\": {\"url\": \"https://example.com\"}}\n```"

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].ToolName)
}

// TestParseToolCalls_MultipleInOrder tests that text order is preserved
func TestParseToolCalls_MultipleInOrder(t *testing.T) {
	text := `<tool_call>
{"tool_name": "get_system_info", "parameters": {}}
</tool_call>
some reasoning between calls
<tool_call>
{"tool_name": "list_directory", "parameters": {"path": "src"}}
</tool_call>`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "get_system_info", calls[0].ToolName)
	assert.Equal(t, "list_directory", calls[1].ToolName)
}

// TestParseToolCalls_MalformedDropped tests silent dropping of bad directives
func TestParseToolCalls_MalformedDropped(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"truncated json", `<tool_call>{"tool_name": "read_file", "parameters": {</tool_call>`, 0},
		{"not json at all", `<tool_call>please run read_file</tool_call>`, 0},
		{"missing tool_name", `<tool_call>{"parameters": {"path": "a.txt"}}</tool_call>`, 0},
		{"empty tool_name", `<tool_call>{"tool_name": "", "parameters": {}}</tool_call>`, 0},
		{"unclosed tag", `<tool_call>{"tool_name": "read_file"}`, 0},
		{"good after bad", `<tool_call>{bad}</tool_call><tool_call>{"tool_name": "read_file"}</tool_call>`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ParseToolCalls(tt.text), tt.want)
		})
	}
}

// TestParseToolCalls_NestedParameters tests depth-aware object extraction
func TestParseToolCalls_NestedParameters(t *testing.T) {
	text := `<tool_call>
{"tool_name": "set_config_value", "parameters": {"key": "limits", "value": "{\"max\": 5}", "meta": {"tags": ["a", "b"], "depth": {"inner": 2}}}}
</tool_call>`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)

	params := calls[0].Parameters
	assert.Equal(t, `{"max": 5}`, params["value"])

	meta, ok := params["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"a", "b"}, meta["tags"])

	depth, ok := meta["depth"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, depth["inner"])
}

// TestParseToolCalls_NumberNormalization tests integral float conversion
func TestParseToolCalls_NumberNormalization(t *testing.T) {
	text := `<tool_call>
{"tool_name": "read_file", "parameters": {"max_bytes": 4096, "ratio": 0.5, "note": null}}
</tool_call>`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)

	params := calls[0].Parameters
	assert.Equal(t, 4096, params["max_bytes"])
	assert.Equal(t, 0.5, params["ratio"])
	assert.Equal(t, "", params["note"])
}

// TestEncodeToolCall_RoundTrip tests encode-then-parse fidelity
func TestEncodeToolCall_RoundTrip(t *testing.T) {
	original := ToolCall{
		ToolName: "write_file",
		Parameters: map[string]interface{}{
			"path":    "out.txt",
			"content": "hello \"world\"",
			"append":  true,
		},
		Reasoning:      "persist the result",
		ExpectedOutput: "confirmation",
	}

	encoded, err := EncodeToolCall(original)
	require.NoError(t, err)

	parsed := ParseToolCalls("preamble\n" + encoded + "\npostamble")
	require.Len(t, parsed, 1)

	got := parsed[0]
	assert.Equal(t, original.ToolName, got.ToolName)
	assert.Equal(t, original.Parameters, got.Parameters)
	assert.Equal(t, original.Reasoning, got.Reasoning)
	assert.Equal(t, original.ExpectedOutput, got.ExpectedOutput)
}

// TestStripToolMarkup tests that only prose survives
func TestStripToolMarkup(t *testing.T) {
	text := `Let me look.
<tool_call>
{"tool_name": "read_file", "parameters": {"path": "a.txt"}}
</tool_call>
Done looking.`

	stripped := StripToolMarkup(text)
	assert.Equal(t, "Let me look.\n\nDone looking.", stripped)

	// Fenced directives are removed, ordinary fenced json stays
	fenced := "before\n```json\n{\"tool_name\": \"read_file\"}\n```\nafter"
	assert.Equal(t, "before\n\nafter", StripToolMarkup(fenced))

	plain := "result:\n```json\n{\"data\": 1}\n```"
	assert.Equal(t, plain, StripToolMarkup(plain))
}
