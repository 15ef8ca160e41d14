package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/toolgate/toolgate/pkg/tool"
)

// ApprovalRequest is what an approver sees for a pending tool
// invocation.
type ApprovalRequest struct {
	UserID      string                 `json:"user_id"`
	ToolName    string                 `json:"tool_name"`
	Category    tool.Category          `json:"category"`
	IsModifying bool                   `json:"is_modifying"`
	Parameters  map[string]interface{} `json:"parameters"`
	Preview     string                 `json:"preview"`
	Timeout     time.Duration          `json:"timeout"`
}

// ApprovalDecision is an approver's answer to a request.
type ApprovalDecision struct {
	Approved         bool          `json:"approved"`
	Comments         string        `json:"comments,omitempty"`
	RememberDecision bool          `json:"remember_decision"`
	ValidityDuration time.Duration `json:"validity_duration,omitempty"`
}

// ApprovalProvider conducts the human approval round-trip. Production
// deployments inject a real provider (the websocket gateway); tests and
// headless runs use the simulated provider.
type ApprovalProvider interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// SimulatedApprovalProvider is the deterministic fallback policy:
// non-modifying tools auto-approve, modifying tools are denied unless
// GrantModifying is set.
type SimulatedApprovalProvider struct {
	GrantModifying bool
	Comments       string
}

// RequestApproval implements ApprovalProvider.
func (p *SimulatedApprovalProvider) RequestApproval(_ context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	if !req.IsModifying {
		return ApprovalDecision{Approved: true, Comments: "auto-approved (read-only)"}, nil
	}
	if p.GrantModifying {
		comments := p.Comments
		if comments == "" {
			comments = "granted by configured approver"
		}
		return ApprovalDecision{Approved: true, Comments: comments}, nil
	}
	comments := p.Comments
	if comments == "" {
		comments = "modifying execution denied without explicit approval"
	}
	return ApprovalDecision{Approved: false, Comments: comments}, nil
}

// approvalCacheKey builds the remembered-approval key from user, tool
// and a canonical, type-aware serialization of the parameters. Keys are
// sorted recursively and values marshaled as JSON so semantically
// different parameter sets never collide by stringification.
func approvalCacheKey(userID, toolName string, params map[string]interface{}) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", userID, toolName)
	h.Write(canonicalJSON(params))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(value interface{}) []byte {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, canonicalJSON(v[k])...)
		}
		return append(out, '}')
	case []interface{}:
		out := []byte{'['}
		for i, item := range v {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, canonicalJSON(item)...)
		}
		return append(out, ']')
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", v)))
		}
		return b
	}
}
