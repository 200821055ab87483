package pipeline

import (
	"regexp"

	"github.com/crewpipe/crewpipe/internal/agent"
)

// functionDeclRe is the "is code" predicate: a line starting (after optional
// indentation) with a Python function-definition marker. The rule is
// deliberately narrow and explicit so its edge cases stay enumerable:
// prose mentioning "define" does not match, a fenced or indented "def f(...)"
// does.
var functionDeclRe = regexp.MustCompile(`(?m)^[ \t]*def[ \t]+\w+[ \t]*\(`)

// IsCode reports whether text contains a function-definition marker.
func IsCode(text string) bool {
	return functionDeclRe.MatchString(text)
}

// ExtractArtifact scans the transcript from most recent to oldest for a
// Writer turn whose text satisfies IsCode and returns it as the candidate
// artifact. The first match wins; a run extracts at most once and never
// re-extracts. A miss is a normal outcome, not a fault.
func ExtractArtifact(t *Transcript) (CandidateArtifact, bool) {
	turns := t.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != agent.RoleWriter {
			continue
		}
		if IsCode(turns[i].Text) {
			return CandidateArtifact{SourceText: turns[i].Text, ExtractedAtTurn: i}, true
		}
	}
	return CandidateArtifact{}, false
}
