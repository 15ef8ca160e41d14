package agent

import (
	"time"

	"github.com/toolgate/toolgate/pkg/security"
	"github.com/toolgate/toolgate/pkg/tool"
)

// ToolCall is the structured form of one tool directive extracted from
// model-generated text.
type ToolCall struct {
	ID             string                 `json:"id"`
	ToolName       string                 `json:"tool_name"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Reasoning      string                 `json:"reasoning,omitempty"`
	ExpectedOutput string                 `json:"expected_output,omitempty"`
}

// ToolExecutionResult is the audit-ready composite of one execution
// attempt: the call, its result, and the security decisions taken.
type ToolExecutionResult struct {
	Call     ToolCall                 `json:"call"`
	Result   tool.Result              `json:"result"`
	Approval *security.ApprovalResult `json:"approval,omitempty"`
	Check    *security.CheckResult    `json:"check,omitempty"`
}

// AgentResponse is the orchestrator's unit of output per user turn.
// IsComplete is true only when no errors were recorded and every tool
// execution succeeded.
type AgentResponse struct {
	ResponseText   string                `json:"response_text"`
	ToolExecutions []ToolExecutionResult `json:"tool_executions,omitempty"`
	IsComplete     bool                  `json:"is_complete"`
	Errors         []string              `json:"errors,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
	ProcessingTime time.Duration         `json:"processing_time"`
}

// finalize computes IsComplete from the recorded errors and results.
func (r *AgentResponse) finalize(started time.Time) {
	r.ProcessingTime = time.Since(started)

	r.IsComplete = len(r.Errors) == 0
	for _, exec := range r.ToolExecutions {
		if !exec.Result.Success {
			r.IsComplete = false
			break
		}
	}
}

// completionPhrases mark a model response as final, case-insensitive.
var completionPhrases = []string{
	"i have completed",
	"final answer:",
	"in conclusion",
}
