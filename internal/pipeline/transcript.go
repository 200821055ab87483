package pipeline

import (
	"strings"

	"github.com/crewpipe/crewpipe/internal/agent"
)

// Transcript is the shared, append-only conversation of a run. It is owned
// exclusively by the coordinator and never mutated concurrently; runs never
// share a transcript.
type Transcript struct {
	taskLine string
	turns    []Turn
}

// NewTranscript creates a transcript seeded with the requester's task.
func NewTranscript(task Task) *Transcript {
	return &Transcript{
		taskLine: "User wants: " + task.Description,
	}
}

// Append adds a turn. Empty text is a valid turn: a silent agent does not
// short-circuit the cycle.
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turns returns the turns in order. The returned slice must not be mutated.
func (t *Transcript) Turns() []Turn {
	return t.turns
}

// LatestText returns the text of the most recent turn by the given role,
// or "" when the role has not spoken.
func (t *Transcript) LatestText(role agent.Role) string {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i].Text
		}
	}
	return ""
}

// roleTitles renders roles for the serialized transcript.
var roleTitles = map[agent.Role]string{
	agent.RolePlanner:   "Planner",
	agent.RoleWriter:    "Writer",
	agent.RoleSanitizer: "Sanitizer",
	agent.RoleReviewer:  "Reviewer",
	agent.RoleNotifier:  "Notifier",
}

// Render serializes the transcript for an agent-turn prompt: the task line
// followed by each turn labeled with its role.
func (t *Transcript) Render() string {
	var b strings.Builder
	b.WriteString(t.taskLine)
	for _, turn := range t.turns {
		b.WriteString("\n\n")
		b.WriteString(roleTitles[turn.Role])
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}
