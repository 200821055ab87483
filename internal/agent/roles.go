// Package agent defines the fixed agent roles of the pipeline and the
// completion clients that produce their turns.
package agent

import "fmt"

// Role identifies one of the five fixed agent roles.
type Role string

const (
	RolePlanner   Role = "planner"
	RoleWriter    Role = "writer"
	RoleSanitizer Role = "sanitizer"
	RoleReviewer  Role = "reviewer"
	RoleNotifier  Role = "notifier"
)

// CycleOrder returns the fixed role cycle. The role of turn i in a run is
// always CycleOrder()[i mod 5].
func CycleOrder() []Role {
	return []Role{RolePlanner, RoleWriter, RoleSanitizer, RoleReviewer, RoleNotifier}
}

// RoleAt returns the role for the given zero-based turn index.
func RoleAt(turn int) Role {
	order := CycleOrder()
	return order[turn%len(order)]
}

// Role instruction prompts. Each is the full system text for one turn.
const (
	plannerPrompt = `You're the Planner. Based on the user's request, break down the task into steps.
Respond in a concise, numbered list of actions.`

	writerPrompt = `You're the Writer. Based on the plan, write correct and clean Python code. Do not include any explanation.`

	sanitizerPrompt = `You're the Sanitizer. Check the Python code for syntax errors or dangerous operations.
If safe, say 'SAFE'. If not, explain the issue.`

	reviewerPrompt = `You're the Reviewer. Review the generated code for quality and correctness.
If it's okay, say 'APPROVED'. Otherwise, list improvements.`

	notifierPrompt = `You're the Notifier. Format a short summary message to email the user about task completion and provide the PR link.`
)

// SystemPrompt returns the role instruction for a role.
func SystemPrompt(role Role) (string, error) {
	switch role {
	case RolePlanner:
		return plannerPrompt, nil
	case RoleWriter:
		return writerPrompt, nil
	case RoleSanitizer:
		return sanitizerPrompt, nil
	case RoleReviewer:
		return reviewerPrompt, nil
	case RoleNotifier:
		return notifierPrompt, nil
	default:
		return "", fmt.Errorf("unknown role: %s", role)
	}
}
