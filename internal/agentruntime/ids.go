package agentruntime

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// AgentRuntimeId identifies a single agent instance within a Runtime. It is
// caller-supplied at Create time rather than generated, since callers
// typically want a stable, human-legible name (e.g. "ingest-worker-3")
// rather than an opaque identifier.
type AgentRuntimeId string

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// MakeAgentRuntimeID validates and constructs an AgentRuntimeId. It rejects
// the empty string, anything over 128 characters, and anything outside the
// conservative [a-zA-Z0-9._-] charset, since ids frequently end up as log
// fields, metric labels, and (via the gateway) URL path segments.
func MakeAgentRuntimeID(raw string) (AgentRuntimeId, error) {
	if !idPattern.MatchString(raw) {
		return "", &InvalidIdError{Raw: raw}
	}

	return AgentRuntimeId(raw), nil
}

func (id AgentRuntimeId) String() string {
	return string(id)
}

// ActivityID is the identifier on an individual AgentActivity. It is
// produced by NewActivityID, never caller-supplied, so correlation and
// causality tracking stay unambiguous.
type ActivityID string

// NewActivityID mints a time-ordered activity identifier. UUIDv7 (RFC 9562)
// carries a millisecond timestamp in its high bits with random low bits for
// tie-breaking, giving the "ULID-like, monotonic preferred" ordering
// without introducing a dependency the rest of the stack doesn't already
// carry.
func NewActivityID() ActivityID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system clock/entropy source is
		// broken beyond repair; fall back to a random v4 rather than
		// propagating an error from an id constructor.
		id = uuid.New()
	}

	return ActivityID(id.String())
}

func (id ActivityID) String() string {
	return string(id)
}

// InvalidIdError reports that a caller-supplied AgentRuntimeId failed
// validation.
type InvalidIdError struct {
	Raw string
}

func (e *InvalidIdError) Error() string {
	return fmt.Sprintf("agentruntime: invalid id %q", e.Raw)
}
