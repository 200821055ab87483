// Package gate decides whether a sandboxed run may proceed to irreversible
// delivery actions. Decisions are pure: no side effects, no external calls.
//
// The sanitizer's judgment and the sandbox's execution outcome are separate
// inputs. The sanitizer verdict is parsed from the sanitizer agent's own turn
// text, never from the sandboxed program's output, so a generated program
// cannot print its way past the gate.
package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/crewpipe/crewpipe/internal/sandbox"
)

// SafeMarker is the literal, case-sensitive token the sanitizer emits for
// code it judged safe.
const SafeMarker = "SAFE"

// Outcome is the gate's terminal decision.
type Outcome string

const (
	Proceed Outcome = "proceed"
	Abort   Outcome = "abort"
)

// Decision is the single, terminal gate decision for a run.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Verdict is the structured sanitizer judgment parsed from the sanitizer
// agent's turn.
type Verdict struct {
	Safe bool

	// Detail summarizes the sanitizer's objection when Safe is false.
	Detail string
}

var (
	// safeTokenRe matches the marker as a standalone token, case-sensitive.
	safeTokenRe = regexp.MustCompile(`(^|[^A-Za-z])` + SafeMarker + `($|[^A-Za-z])`)

	// contradictionRe matches explicit negations that override the marker.
	contradictionRe = regexp.MustCompile(`\b(UNSAFE|NOT SAFE)\b`)
)

// ParseVerdict extracts a structured verdict from sanitizer turn text.
//
// Rules, in order:
//  1. Empty or whitespace-only text is unsafe (no verdict given).
//  2. An explicit contradiction (UNSAFE, NOT SAFE) is unsafe even when the
//     marker also appears.
//  3. The marker as a standalone case-sensitive token is safe; "safe",
//     "SAFETY" or the marker embedded in a longer word do not count.
//  4. Anything else is unsafe; the first line of the text becomes the detail.
func ParseVerdict(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Verdict{Safe: false, Detail: "sanitizer gave no verdict"}
	}
	if contradictionRe.MatchString(trimmed) {
		return Verdict{Safe: false, Detail: summarize(trimmed)}
	}
	if safeTokenRe.MatchString(trimmed) {
		return Verdict{Safe: true}
	}
	return Verdict{Safe: false, Detail: summarize(trimmed)}
}

// Decide maps an execution result and a sanitizer verdict to the terminal
// decision. PROCEED requires both a successful execution and a safe verdict;
// every other combination aborts with a human-readable reason.
//
// Decide is pure and idempotent: identical inputs always yield identical
// decisions.
func Decide(result sandbox.ExecutionResult, verdict Verdict) Decision {
	if !result.Succeeded {
		reason := result.FailureReason
		if reason == "" {
			reason = "execution failed"
		}
		return Decision{Outcome: Abort, Reason: fmt.Sprintf("sandbox execution failed: %s", reason)}
	}
	if !verdict.Safe {
		detail := verdict.Detail
		if detail == "" {
			detail = "sanitizer did not mark the code " + SafeMarker
		}
		return Decision{Outcome: Abort, Reason: fmt.Sprintf("sanitizer rejected the code: %s", detail)}
	}
	return Decision{Outcome: Proceed, Reason: "execution succeeded and sanitizer marked the code " + SafeMarker}
}

// summarize returns the first line of text, capped for log readability.
func summarize(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const maxLen = 200
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	return line
}
