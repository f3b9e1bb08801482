// Package perm defines the tool-permission callback surface.
package perm

import "context"

// Mode selects how the agent CLI handles tool permissions.
type Mode string

const (
	// ModeDefault prompts per the CLI's standard rules.
	ModeDefault Mode = "default"
	// ModeAcceptEdits auto-accepts file edits.
	ModeAcceptEdits Mode = "acceptEdits"
	// ModePlan restricts the agent to planning.
	ModePlan Mode = "plan"
	// ModeBypass skips all permission checks.
	ModeBypass Mode = "bypassPermissions"
)

// Normalize maps legacy mode aliases to their current names.
func Normalize(mode string) string {
	switch mode {
	case "acceptAll":
		return string(ModeBypass)
	case "prompt":
		return string(ModeDefault)
	default:
		return mode
	}
}

// RuleBehavior is the action a permission rule takes.
type RuleBehavior string

const (
	// BehaviorAllow allows without prompting.
	BehaviorAllow RuleBehavior = "allow"
	// BehaviorDeny denies without prompting.
	BehaviorDeny RuleBehavior = "deny"
	// BehaviorAsk prompts the user.
	BehaviorAsk RuleBehavior = "ask"
)

// Rule is one permission rule targeting a tool.
type Rule struct {
	ToolName    string
	RuleContent *string
}

// UpdateKind is the kind of permission update.
type UpdateKind string

const (
	// UpdateAddRules adds rules.
	UpdateAddRules UpdateKind = "addRules"
	// UpdateReplaceRules replaces rules.
	UpdateReplaceRules UpdateKind = "replaceRules"
	// UpdateRemoveRules removes rules.
	UpdateRemoveRules UpdateKind = "removeRules"
	// UpdateSetMode changes the permission mode.
	UpdateSetMode UpdateKind = "setMode"
	// UpdateAddDirectories grants access to directories.
	UpdateAddDirectories UpdateKind = "addDirectories"
	// UpdateRemoveDirectories revokes directory access.
	UpdateRemoveDirectories UpdateKind = "removeDirectories"
)

// Update describes one change to the agent's permission configuration.
type Update struct {
	Kind        UpdateKind
	Rules       []*Rule
	Behavior    *RuleBehavior
	Mode        *Mode
	Directories []string
	Destination *string // userSettings | projectSettings | localSettings | session
}

// Wire converts the update to the CLI's JSON shape.
func (u *Update) Wire() map[string]any {
	result := map[string]any{"type": string(u.Kind)}

	if len(u.Rules) > 0 {
		rules := make([]map[string]any, len(u.Rules))

		for i, r := range u.Rules {
			rule := map[string]any{"toolName": r.ToolName}
			if r.RuleContent != nil {
				rule["ruleContent"] = *r.RuleContent
			}

			rules[i] = rule
		}

		result["rules"] = rules
	}

	if u.Behavior != nil {
		result["behavior"] = string(*u.Behavior)
	}

	if u.Mode != nil {
		result["mode"] = string(*u.Mode)
	}

	if len(u.Directories) > 0 {
		result["directories"] = u.Directories
	}

	if u.Destination != nil {
		result["destination"] = *u.Destination
	}

	return result
}

// Request is what the agent CLI asks before using a tool.
type Request struct {
	// ToolName is the tool the agent wants to run.
	ToolName string
	// Input is the raw tool input.
	Input map[string]any
	// BlockedPath, when set, names the path that triggered the check.
	BlockedPath *string
	// Suggestions are permission updates the CLI proposes.
	Suggestions []*Update
}

// Decision is the callback's answer: either *Allow or *Deny.
type Decision interface {
	Behavior() RuleBehavior
}

var (
	_ Decision = (*Allow)(nil)
	_ Decision = (*Deny)(nil)
)

// Allow permits the tool use, optionally rewriting its input or applying
// permission updates.
type Allow struct {
	UpdatedInput       map[string]any
	UpdatedPermissions []*Update
}

// Behavior implements Decision.
func (*Allow) Behavior() RuleBehavior { return BehaviorAllow }

// Deny blocks the tool use with a message shown to the agent.
type Deny struct {
	Message string
	// Interrupt also stops the agent's current turn.
	Interrupt bool
}

// Behavior implements Decision.
func (*Deny) Behavior() RuleBehavior { return BehaviorDeny }

// Callback is consulted before each tool use. Returning an error produces
// an error response on the control protocol; it does not crash the engine.
type Callback func(ctx context.Context, req *Request) (Decision, error)
