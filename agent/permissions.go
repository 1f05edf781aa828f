package agent

import (
	"encoding/json"
	"sync"
)

// PermissionRequest describes a pending tool invocation for the prompt
// collaborator.
type PermissionRequest struct {
	ToolName  string
	Risk      RiskLevel
	Arguments json.RawMessage
}

// PermissionDecision is the outcome of a prompt. AlwaysAllow requests a
// session-scoped override for the tool.
type PermissionDecision struct {
	Approved    bool
	AlwaysAllow bool
}

// Prompter asks the user whether a tool invocation may proceed. The UI
// layer owns the actual prompt.
type Prompter interface {
	Prompt(req PermissionRequest) PermissionDecision
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(req PermissionRequest) PermissionDecision

func (f PrompterFunc) Prompt(req PermissionRequest) PermissionDecision { return f(req) }

// PermissionPolicy configures the permission manager.
type PermissionPolicy struct {
	// AutoApprove approves MEDIUM and HIGH risk tools without prompting.
	AutoApprove bool
	// PromptLowRisk disables the default auto-approval of LOW risk tools,
	// sending them through the same gate as everything else.
	PromptLowRisk bool
	// SessionOverrideAllowed lets a prompt decision persist for the
	// rest of the session ("always allow this tool").
	SessionOverrideAllowed bool
}

// PermissionManager decides whether a tool invocation may proceed. It is
// purely a gate; it never executes the tool.
type PermissionManager struct {
	policy    PermissionPolicy
	prompter  Prompter
	overrides map[string]bool
	mu        sync.Mutex
}

// NewPermissionManager creates a PermissionManager. A nil prompter means
// MEDIUM and HIGH risk tools are denied unless AutoApprove is set.
func NewPermissionManager(policy PermissionPolicy, prompter Prompter) *PermissionManager {
	return &PermissionManager{
		policy:    policy,
		prompter:  prompter,
		overrides: make(map[string]bool),
	}
}

// Check returns whether the tool invocation may proceed. LOW risk tools
// auto-approve; higher risk consults the policy, session overrides, and
// the prompt collaborator, in that order.
func (p *PermissionManager) Check(def *ToolDefinition, args json.RawMessage) bool {
	if def.Risk == RiskLow && !p.policy.PromptLowRisk {
		return true
	}

	if p.policy.AutoApprove {
		return true
	}

	p.mu.Lock()
	allowed, overridden := p.overrides[def.Name]
	p.mu.Unlock()
	if overridden {
		return allowed
	}

	if p.prompter == nil {
		return false
	}

	decision := p.prompter.Prompt(PermissionRequest{
		ToolName:  def.Name,
		Risk:      def.Risk,
		Arguments: args,
	})
	if decision.AlwaysAllow && p.policy.SessionOverrideAllowed {
		p.mu.Lock()
		p.overrides[def.Name] = decision.Approved
		p.mu.Unlock()
	}
	return decision.Approved
}
