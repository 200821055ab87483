package pipeline

import (
	"context"
	"fmt"

	"github.com/crewpipe/crewpipe/internal/agent"
	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/crewpipe/crewpipe/internal/gate"
	"github.com/crewpipe/crewpipe/internal/logging"
	"github.com/crewpipe/crewpipe/internal/sandbox"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rolesPerCycle is the length of the fixed role cycle.
var rolesPerCycle = len(agent.CycleOrder())

const commitMessage = "Add agent-generated feature"

// ArtifactExecutor runs one untrusted artifact under containment.
type ArtifactExecutor interface {
	Execute(ctx context.Context, sourceText string) (sandbox.ExecutionResult, error)
}

// Publisher publishes one artifact and returns a durable reference.
type Publisher interface {
	Publish(ctx context.Context, sourceText, commitMessage string) (string, error)
}

// Notifier sends the best-effort requester notification.
type Notifier interface {
	Notify(ctx context.Context, prURL, recipient string) bool
}

// Coordinator drives one run through the role cycle, extraction, sandboxed
// execution, the gate and delivery. All collaborators are injected; the
// coordinator owns only the sequencing and the transcript.
type Coordinator struct {
	client    agent.CompletionClient
	executor  ArtifactExecutor
	publisher Publisher
	notifier  Notifier

	maxTurns int
	log      *logging.Logger
}

// NewCoordinator builds a coordinator. MaxTurns is always the cycle length
// times the configured number of cycles.
func NewCoordinator(
	client agent.CompletionClient,
	executor ArtifactExecutor,
	publisher Publisher,
	notifier Notifier,
	cfg config.PipelineConfig,
	log *logging.Logger,
) *Coordinator {
	cycles := cfg.Cycles
	if cycles < 1 {
		cycles = 1
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Coordinator{
		client:    client,
		executor:  executor,
		publisher: publisher,
		notifier:  notifier,
		maxTurns:  cycles * rolesPerCycle,
		log:       log,
	}
}

// Run executes one complete pipeline pass for the task. It never panics and
// never returns an error: every failure is classified and folded into the
// RunOutcome. The step sequence is strictly ordered; nothing overlaps.
func (c *Coordinator) Run(ctx context.Context, task Task) RunOutcome {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	c.log.Info(ctx, "run started",
		zap.String("task", task.Description),
		zap.Int("max_turns", c.maxTurns),
	)

	transcript := NewTranscript(task)

	for i := 0; i < c.maxTurns; i++ {
		role := agent.RoleAt(i)
		turnCtx := logging.WithRole(ctx, string(role))

		prompt, err := agent.SystemPrompt(role)
		if err != nil {
			return c.abort(ctx, runID, FailureCollaborator, fmt.Sprintf("role prompt: %v", err))
		}

		text, err := c.client.Complete(turnCtx, prompt, transcript.Render())
		if err != nil {
			return c.abort(ctx, runID, FailureCollaborator, fmt.Sprintf("agent turn %d (%s) failed: %v", i, role, err))
		}

		// An empty turn is valid and does not short-circuit the cycle.
		transcript.Append(Turn{Role: role, Text: text})
		c.log.Debug(turnCtx, "turn appended", zap.Int("turn", i), zap.Int("chars", len(text)))
	}

	artifact, ok := ExtractArtifact(transcript)
	if !ok {
		c.log.Info(ctx, "no code-shaped artifact in transcript")
		return RunOutcome{Kind: OutcomeNoArtifact, Failure: FailureExtractionMiss, RunID: runID}
	}
	c.log.Info(ctx, "artifact extracted", zap.Int("turn", artifact.ExtractedAtTurn))

	result, err := c.executor.Execute(ctx, artifact.SourceText)
	if err != nil {
		return c.abort(ctx, runID, FailureContainment, fmt.Sprintf("sandbox execution: %v", err))
	}
	c.log.Info(ctx, "sandboxed execution finished",
		zap.Bool("succeeded", result.Succeeded),
		zap.String("failure_reason", result.FailureReason),
	)

	verdict := gate.ParseVerdict(transcript.LatestText(agent.RoleSanitizer))
	decision := gate.Decide(result, verdict)
	if decision.Outcome == gate.Abort {
		kind := FailurePolicyAbort
		if !result.Succeeded {
			kind = FailureContainment
		}
		return c.abort(ctx, runID, kind, decision.Reason)
	}
	c.log.Info(ctx, "gate decided proceed", zap.String("reason", decision.Reason))

	prURL, err := c.publisher.Publish(ctx, artifact.SourceText, commitMessage)
	if err != nil {
		c.log.Error(ctx, "publish failed", zap.Error(err))
		return RunOutcome{
			Kind:    OutcomeDeliveryFailed,
			Failure: FailureCollaborator,
			Reason:  fmt.Sprintf("publish failed: %v", err),
			RunID:   runID,
		}
	}

	notified := c.notifier.Notify(ctx, prURL, task.RequesterContact)

	c.log.Info(ctx, "run delivered",
		zap.String("pull_request", prURL),
		zap.Bool("notified", notified),
	)
	return RunOutcome{
		Kind:           OutcomeDelivered,
		PullRequestURL: prURL,
		Notified:       notified,
		RunID:          runID,
	}
}

func (c *Coordinator) abort(ctx context.Context, runID string, kind FailureKind, reason string) RunOutcome {
	c.log.Warn(ctx, "run aborted",
		zap.String("failure_kind", string(kind)),
		zap.String("reason", reason),
	)
	return RunOutcome{Kind: OutcomeAborted, Failure: kind, Reason: reason, RunID: runID}
}
