// Package pipeline coordinates a fixed sequence of agent turns into a
// reviewed, sandboxed, gated code delivery.
//
// One call to Coordinator.Run is one run: a bounded number of agent turns
// over a shared transcript, at most one artifact extraction, exactly one
// sandbox execution of that artifact, one terminal gate decision, and at most
// one publish/notify pair. Nothing is retried at this level and no error
// escapes Run; every collaborator failure folds into the RunOutcome.
package pipeline

import (
	"github.com/crewpipe/crewpipe/internal/agent"
)

// Task is the unit of work for one run. Immutable once created.
type Task struct {
	// Description is the requester's free-text task.
	Description string

	// RequesterContact is the address notified after successful delivery.
	RequesterContact string
}

// Turn is one role's contribution to the transcript.
type Turn struct {
	Role agent.Role
	Text string
}

// CandidateArtifact is the single source-code text chosen for sandboxed
// execution, derived from the most recent code-shaped Writer turn.
type CandidateArtifact struct {
	SourceText string

	// ExtractedAtTurn is the zero-based transcript index the artifact came from.
	ExtractedAtTurn int
}

// OutcomeKind is the terminal result classification of a run.
type OutcomeKind string

const (
	// OutcomeDelivered: the artifact was published and the requester notified.
	OutcomeDelivered OutcomeKind = "delivered"

	// OutcomeAborted: the run stopped before delivery, either because a
	// collaborator failed or because the gate rejected the artifact.
	OutcomeAborted OutcomeKind = "aborted"

	// OutcomeNoArtifact: no code-shaped Writer turn was produced. This is a
	// normal, non-error outcome.
	OutcomeNoArtifact OutcomeKind = "no_artifact"

	// OutcomeDeliveryFailed: the gate decided PROCEED but publishing failed.
	OutcomeDeliveryFailed OutcomeKind = "delivery_failed"
)

// RunOutcome is the complete, terminal result of one run.
type RunOutcome struct {
	Kind OutcomeKind

	// Failure classifies why the run did not deliver. Empty on delivery.
	Failure FailureKind

	// Reason is the human-readable explanation for Aborted and
	// DeliveryFailed outcomes.
	Reason string

	// PullRequestURL is the durable reference on successful delivery.
	PullRequestURL string

	// Notified reports whether the best-effort notification was sent.
	Notified bool

	// RunID uniquely identifies the run across logs and branch names.
	RunID string
}

// Process exit codes per outcome kind.
const (
	ExitDelivered      = 0
	ExitAborted        = 2
	ExitNoArtifact     = 3
	ExitDeliveryFailed = 4
)

// ExitCode maps the outcome to the process exit status.
func (o RunOutcome) ExitCode() int {
	switch o.Kind {
	case OutcomeDelivered:
		return ExitDelivered
	case OutcomeAborted:
		return ExitAborted
	case OutcomeNoArtifact:
		return ExitNoArtifact
	case OutcomeDeliveryFailed:
		return ExitDeliveryFailed
	default:
		return 1
	}
}
