package pipeline

// FailureKind is the error taxonomy of a run. Collaborator failures are
// caught at their call sites and classified here rather than propagated.
type FailureKind string

const (
	// FailureCollaborator: an external call failed (network, auth, quota).
	FailureCollaborator FailureKind = "collaborator_error"

	// FailureContainment: sandbox setup or execution failed or timed out.
	FailureContainment FailureKind = "containment_error"

	// FailureExtractionMiss: no code-shaped artifact was found.
	FailureExtractionMiss FailureKind = "extraction_miss"

	// FailurePolicyAbort: the gate rejected a successfully produced artifact.
	FailurePolicyAbort FailureKind = "policy_abort"
)
