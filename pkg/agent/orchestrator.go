package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/toolgate/toolgate/internal/observability"
	"github.com/toolgate/toolgate/pkg/security"
	"github.com/toolgate/toolgate/pkg/tool"
)

const (
	defaultMaxIterations = 5
	defaultToolTimeout   = 30 * time.Second
)

// Orchestrator coordinates a query: it advertises authorized tools to
// the model, parses tool directives out of returned text, drives each
// call through the security pipeline, and runs the bounded ReAct loop.
//
// Orchestrators hold no per-query mutable state; one instance may serve
// concurrent queries for different users.
type Orchestrator struct {
	registry  *tool.Registry
	security  *security.Manager
	provider  Provider
	fallback  Provider
	retriever ContextRetriever

	maxIterations int
	toolTimeout   time.Duration
	clientID      string
}

// Config configures an orchestrator.
type Config struct {
	Registry  *tool.Registry
	Security  *security.Manager
	Provider  Provider
	Retriever ContextRetriever

	MaxIterations int
	ToolTimeout   time.Duration
	ClientID      string
}

// NewOrchestrator creates an orchestrator. Registry and security
// manager are required; a missing provider means every query runs on
// the deterministic fallback.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Security == nil {
		return nil, fmt.Errorf("security manager is required")
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = defaultToolTimeout
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "toolgate"
	}

	return &Orchestrator{
		registry:      cfg.Registry,
		security:      cfg.Security,
		provider:      cfg.Provider,
		fallback:      NewFallbackProvider(),
		retriever:     cfg.Retriever,
		maxIterations: maxIterations,
		toolTimeout:   toolTimeout,
		clientID:      clientID,
	}, nil
}

// GetAvailableToolsPrompt renders the tool advertisement for a user's
// current permission level.
func (o *Orchestrator) GetAvailableToolsPrompt(userID string) string {
	level := o.security.GetUserPermissionLevel(userID)
	return o.registry.PromptDescription(level)
}

// ProcessQuery runs the single-pass pipeline: one prompt, one
// parse/execute pass, one synthesis.
func (o *Orchestrator) ProcessQuery(ctx context.Context, userID, query string) AgentResponse {
	return o.ExecuteReActCycle(ctx, userID, query, 1)
}

// ExecuteReActCycle runs the bounded Reasoning-Acting-Observing loop.
// maxIterations < 0 selects the configured default; 0 returns
// immediately without any model or tool call.
func (o *Orchestrator) ExecuteReActCycle(ctx context.Context, userID, query string, maxIterations int) (response AgentResponse) {
	started := time.Now()
	iterations := 0

	defer func() {
		// An unexpected fault must degrade to a coherent response,
		// never escape to the caller or corrupt shared state.
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("user", userID).Msg("Orchestration fault")
			response.Errors = append(response.Errors, fmt.Sprintf("orchestration error: %v", r))
			response.ResponseText = "I'm sorry, something went wrong while processing your request."
			response.finalize(started)
		}
		observability.RecordQuery(time.Since(started), iterations)
	}()

	if maxIterations < 0 {
		maxIterations = o.maxIterations
	}
	if maxIterations == 0 {
		response.ResponseText = summarizeExecutions(nil)
		response.finalize(started)
		return response
	}

	toolsPrompt := o.GetAvailableToolsPrompt(userID)
	retrieved := o.retrieveContext(ctx, query)

	transcript := []transcriptEntry{}
	denied := false
	finalText := ""

	for iterations = 0; iterations < maxIterations; iterations++ {
		if err := ctx.Err(); err != nil {
			response.Errors = append(response.Errors, fmt.Sprintf("query cancelled: %v", err))
			response.finalize(started)
			response.IsComplete = false
			return response
		}

		prompt := buildPrompt(query, toolsPrompt, retrieved, transcript)
		text, err := o.generate(ctx, prompt)
		if err != nil {
			log.Error().Err(err).Str("user", userID).Msg("Model boundary failed")
			response.Errors = append(response.Errors, fmt.Sprintf("model error: %v", err))
			response.ResponseText = "I'm sorry, something went wrong while processing your request."
			response.finalize(started)
			return response
		}

		calls := ParseToolCalls(text)

		if len(calls) == 0 {
			finalText = StripToolMarkup(text)
			break
		}

		transcript = append(transcript, transcriptEntry{role: "assistant", text: text})

		// Sequential, in text order: the model's causal ordering of
		// tool effects is part of its reasoning.
		for _, call := range calls {
			exec := o.ExecuteToolCall(ctx, userID, call)
			response.ToolExecutions = append(response.ToolExecutions, exec)

			if !exec.Result.Success {
				response.Errors = append(response.Errors, fmt.Sprintf("%s: %s", call.ToolName, exec.Result.ErrorMessage))
				if exec.Check != nil && !exec.Check.IsAllowed {
					denied = true
				}
			}
			if exec.Check != nil {
				response.Warnings = append(response.Warnings, exec.Check.Warnings...)
			}

			transcript = append(transcript, transcriptEntry{
				role: "observation",
				text: observationText(call, exec),
			})
		}

		if denied {
			log.Warn().Str("user", userID).Msg("Stopping cycle after security denial")
			break
		}
		if containsCompletionPhrase(text) {
			finalText = StripToolMarkup(text)
			break
		}
	}

	if finalText == "" {
		finalText = o.synthesize(ctx, query, response.ToolExecutions)
	}

	response.ResponseText = finalText
	response.finalize(started)
	return response
}

// ExecuteToolCall drives one call through the full pipeline: schema
// validation, security check, approval, backup, execution, audit. Each
// failure short-circuits this call only and is recorded in its result.
func (o *Orchestrator) ExecuteToolCall(ctx context.Context, userID string, call ToolCall) ToolExecutionResult {
	exec := ToolExecutionResult{Call: call}
	started := time.Now()

	def, ok := o.registry.Get(call.ToolName)
	if !ok {
		exec.Result = tool.Failure("unknown tool: %s", call.ToolName)
		o.audit(ctx, userID, call, nil, exec)
		return exec
	}

	defer func() {
		observability.RecordToolExecution(call.ToolName, time.Since(started), exec.Result.Success)
	}()

	if err := o.registry.ValidateParams(call.ToolName, call.Parameters); err != nil {
		exec.Result = tool.Failure("parameter validation failed: %v", err)
		o.audit(ctx, userID, call, def, exec)
		return exec
	}

	check := o.security.ValidateExecution(userID, def, call.Parameters)
	exec.Check = &check
	if !check.IsAllowed {
		exec.Result = tool.Failure("%s", check.DenialReason)
		o.audit(ctx, userID, call, def, exec)
		return exec
	}

	settings := o.security.GetUserSettings(userID)

	needsApproval := def.RequiresApproval ||
		(def.IsModifying && settings.RequireApprovalForModifying)
	if needsApproval {
		approval, err := o.security.RequestApproval(ctx, userID, def, call.Parameters)
		if err != nil {
			exec.Result = tool.Failure("approval request failed: %v", err)
			o.audit(ctx, userID, call, def, exec)
			return exec
		}
		exec.Approval = &approval
		if !approval.IsApproved {
			exec.Result = tool.Failure("execution not approved: %s", approval.Comments)
			o.audit(ctx, userID, call, def, exec)
			return exec
		}
	}

	backupID := ""
	if def.IsModifying && settings.AutoCreateBackups {
		backup, err := o.security.CreateBackup(ctx, def, call.Parameters)
		if err != nil {
			exec.Result = tool.Failure("backup failed: %v", err)
			o.audit(ctx, userID, call, def, exec)
			return exec
		}
		backupID = backup.BackupID
	}

	exec.Result = o.runTool(ctx, userID, def, call, exec.Approval != nil)
	exec.Result.BackupID = backupID

	if def.IsModifying && settings.MaxModifiedFiles > 0 &&
		len(exec.Result.ModifiedFiles) > settings.MaxModifiedFiles {
		exec.Check.Warnings = append(exec.Check.Warnings, fmt.Sprintf(
			"tool %s modified %d files, above the configured ceiling of %d",
			def.Name, len(exec.Result.ModifiedFiles), settings.MaxModifiedFiles))
	}

	o.audit(ctx, userID, call, def, exec)
	return exec
}

// runTool executes the tool body under the configured timeout.
func (o *Orchestrator) runTool(ctx context.Context, userID string, def *tool.Definition, call ToolCall, approved bool) tool.Result {
	started := time.Now()

	execCtx := &tool.ExecutionContext{
		Params:          call.Parameters,
		UserID:          userID,
		ExecutionID:     uuid.NewString(),
		ApprovalGranted: approved,
		Timeout:         o.toolTimeout,
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	type outcome struct {
		data interface{}
		err  error
	}
	resultChan := make(chan outcome, 1)
	go func() {
		data, err := def.Handler(timeoutCtx, execCtx)
		resultChan <- outcome{data, err}
	}()

	select {
	case res := <-resultChan:
		duration := time.Since(started)
		if res.err != nil {
			log.Error().Str("tool", def.Name).Err(res.err).Msg("Tool execution failed")
			result := tool.Failure("execution failed: %v", res.err)
			result.Err = res.err
			result.ExecutionTime = duration
			return result
		}

		result := tool.Result{
			Success:       true,
			Data:          res.data,
			Message:       fmt.Sprintf("%s completed", def.Name),
			ExecutionTime: duration,
		}
		if modified, ok := res.data.(interface{ Modified() []string }); ok {
			result.ModifiedFiles = modified.Modified()
		} else if def.IsModifying {
			result.ModifiedFiles = security.CandidatePaths(call.Parameters)
		}

		log.Debug().Str("tool", def.Name).Dur("duration", duration).Msg("Tool execution completed")
		return result

	case <-timeoutCtx.Done():
		duration := time.Since(started)
		log.Error().Str("tool", def.Name).Dur("duration", duration).Msg("Tool execution timeout")
		result := tool.Failure("tool execution timeout after %v", o.toolTimeout)
		result.ExecutionTime = duration
		return result
	}
}

// audit records exactly one entry per execution attempt, success or
// failure.
func (o *Orchestrator) audit(ctx context.Context, userID string, call ToolCall, def *tool.Definition, exec ToolExecutionResult) {
	entry := security.AuditEntry{
		AuditID:       uuid.NewString(),
		UserID:        userID,
		ToolName:      call.ToolName,
		Parameters:    call.Parameters,
		ResultSummary: exec.Result.Message,
		IsSuccess:     exec.Result.Success,
		Timestamp:     time.Now(),
		Duration:      exec.Result.ExecutionTime,
		ModifiedFiles: exec.Result.ModifiedFiles,
		BackupID:      exec.Result.BackupID,
		ClientID:      o.clientID,
	}
	if !exec.Result.Success {
		entry.ResultSummary = exec.Result.ErrorMessage
	}
	if def != nil {
		entry.RequiredApproval = def.RequiresApproval
	}
	if exec.Approval != nil {
		entry.RequiredApproval = true
		entry.ApprovalObtained = exec.Approval.IsApproved
		entry.ApprovalID = exec.Approval.ApprovalID
	}

	if err := o.security.LogExecution(ctx, entry); err != nil {
		log.Error().Err(err).Str("tool", call.ToolName).Msg("Audit append failed")
	}
}

// generate calls the model boundary, falling back to the deterministic
// generator when the provider is missing or unavailable.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	if o.provider != nil && o.provider.Available() {
		return o.provider.GenerateResponse(ctx, prompt)
	}
	return o.fallback.GenerateResponse(ctx, prompt)
}

// synthesize produces the final answer from accumulated results via a
// follow-up model pass, degrading to the deterministic summary.
func (o *Orchestrator) synthesize(ctx context.Context, query string, executions []ToolExecutionResult) string {
	if len(executions) == 0 {
		text, err := o.generate(ctx, query)
		if err != nil {
			return summarizeExecutions(nil)
		}
		return StripToolMarkup(text)
	}

	if o.provider != nil && o.provider.Available() {
		text, err := o.provider.GenerateResponse(ctx, buildSynthesisPrompt(query, executions))
		if err == nil {
			return StripToolMarkup(text)
		}
		log.Warn().Err(err).Msg("Synthesis pass failed, using deterministic summary")
	}
	return summarizeExecutions(executions)
}

func (o *Orchestrator) retrieveContext(ctx context.Context, query string) string {
	if o.retriever == nil {
		return ""
	}
	retrieved, err := o.retriever.RetrieveContext(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("Context retrieval failed")
		return ""
	}
	return retrieved
}

func containsCompletionPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func observationText(call ToolCall, exec ToolExecutionResult) string {
	if exec.Result.Success {
		return fmt.Sprintf("%s succeeded: %v", call.ToolName, exec.Result.Data)
	}
	return fmt.Sprintf("%s failed: %s", call.ToolName, exec.Result.ErrorMessage)
}
