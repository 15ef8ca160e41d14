package agent

import (
	"fmt"
	"strings"
)

// transcriptEntry is one step of the accumulated ReAct transcript.
type transcriptEntry struct {
	role string // "assistant" or "observation"
	text string
}

// buildPrompt assembles the reasoning prompt: the original query, the
// prior-iteration transcript, optional retrieved context, and the
// authorized-tools advertisement.
func buildPrompt(query, toolsPrompt, retrieved string, transcript []transcriptEntry) string {
	var b strings.Builder

	b.WriteString("You are an assistant that can request system tool executions.\n\n")
	b.WriteString(toolsPrompt)
	b.WriteString("\n")

	if retrieved != "" {
		b.WriteString("# Relevant Context\n\n")
		b.WriteString(retrieved)
		b.WriteString("\n\n")
	}

	if len(transcript) > 0 {
		b.WriteString("# Progress So Far\n\n")
		for _, entry := range transcript {
			switch entry.role {
			case "assistant":
				b.WriteString("Assistant:\n")
			case "observation":
				b.WriteString("Observation:\n")
			}
			b.WriteString(entry.text)
			b.WriteString("\n\n")
		}
		b.WriteString("Continue working on the request. When done, state your final answer.\n\n")
	}

	b.WriteString("# User Request\n\n")
	b.WriteString(query)

	return b.String()
}

// buildSynthesisPrompt asks the model to produce the final user-facing
// answer from the accumulated execution results.
func buildSynthesisPrompt(query string, executions []ToolExecutionResult) string {
	var b strings.Builder

	b.WriteString("Summarize the outcome of the following tool executions as a direct answer ")
	b.WriteString("to the user's request. Do not request further tools.\n\n")
	b.WriteString(fmt.Sprintf("User request: %s\n\n", query))

	for i, exec := range executions {
		status := "succeeded"
		detail := fmt.Sprintf("%v", exec.Result.Data)
		if !exec.Result.Success {
			status = "failed"
			detail = exec.Result.ErrorMessage
		}
		b.WriteString(fmt.Sprintf("%d. %s %s: %s\n", i+1, exec.Call.ToolName, status, detail))
	}

	return b.String()
}

// summarizeExecutions is the deterministic synthesis used when no model
// pass is possible.
func summarizeExecutions(executions []ToolExecutionResult) string {
	if len(executions) == 0 {
		return "No tool executions were performed for this request."
	}

	var b strings.Builder
	b.WriteString("Tool execution summary:\n")
	for _, exec := range executions {
		if exec.Result.Success {
			b.WriteString(fmt.Sprintf("- %s succeeded", exec.Call.ToolName))
			if exec.Result.Message != "" {
				b.WriteString(": " + exec.Result.Message)
			}
		} else {
			b.WriteString(fmt.Sprintf("- %s failed: %s", exec.Call.ToolName, exec.Result.ErrorMessage))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
