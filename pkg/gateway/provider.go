package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/toolgate/toolgate/pkg/security"
)

// PendingApprovals tracks broadcast approval requests awaiting a human
// decision. The first decision for an ID wins; later ones are ignored.
type PendingApprovals struct {
	mu      sync.Mutex
	pending map[string]chan DecisionMessage
}

// NewPendingApprovals creates an empty pending set.
func NewPendingApprovals() *PendingApprovals {
	return &PendingApprovals{
		pending: make(map[string]chan DecisionMessage),
	}
}

// Register creates a pending slot and returns the channel its decision
// will arrive on.
func (p *PendingApprovals) Register(approvalID string) <-chan DecisionMessage {
	ch := make(chan DecisionMessage, 1)
	p.mu.Lock()
	p.pending[approvalID] = ch
	p.mu.Unlock()
	return ch
}

// Unregister drops a pending slot that is no longer awaited.
func (p *PendingApprovals) Unregister(approvalID string) {
	p.mu.Lock()
	delete(p.pending, approvalID)
	p.mu.Unlock()
}

// Resolve delivers a decision to its waiter. Returns false when the
// approval is unknown or already resolved.
func (p *PendingApprovals) Resolve(decision DecisionMessage) bool {
	p.mu.Lock()
	ch, ok := p.pending[decision.ApprovalID]
	if ok {
		delete(p.pending, decision.ApprovalID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- decision
	return true
}

// DenyAll resolves every outstanding approval as denied.
func (p *PendingApprovals) DenyAll(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.pending {
		ch <- DecisionMessage{ApprovalID: id, Approved: false, Comments: reason}
		delete(p.pending, id)
	}
}

// Count returns the number of outstanding approvals.
func (p *PendingApprovals) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// RequestApproval implements security.ApprovalProvider. It broadcasts
// the request to every authenticated approver and blocks until the
// first decision arrives or the context expires. With no approver
// connected it denies immediately rather than letting the caller wait
// out the full timeout.
func (s *Server) RequestApproval(ctx context.Context, req security.ApprovalRequest) (security.ApprovalDecision, error) {
	if s.ApproverCount() == 0 {
		return security.ApprovalDecision{
			Approved: false,
			Comments: "no approver connected",
		}, nil
	}

	approvalID := uuid.NewString()
	decisions := s.approvals.Register(approvalID)
	defer s.approvals.Unregister(approvalID)

	s.broadcaster.Broadcast("approval.request", map[string]interface{}{
		"approval_id":  approvalID,
		"user_id":      req.UserID,
		"tool_name":    req.ToolName,
		"category":     string(req.Category),
		"is_modifying": req.IsModifying,
		"parameters":   req.Parameters,
		"preview":      req.Preview,
		"timeout_ms":   req.Timeout.Milliseconds(),
	})

	select {
	case decision := <-decisions:
		return security.ApprovalDecision{
			Approved:         decision.Approved,
			Comments:         decision.Comments,
			RememberDecision: decision.Remember,
			ValidityDuration: time.Duration(decision.ValidityMS) * time.Millisecond,
		}, nil
	case <-ctx.Done():
		return security.ApprovalDecision{}, fmt.Errorf("approval request %s abandoned: %w", approvalID, ctx.Err())
	}
}
