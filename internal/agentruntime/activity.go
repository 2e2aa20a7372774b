package agentruntime

import "time"

// Priority selects which of the mailbox's four priority classes an activity
// is queued under. Strict ordering is HIGH, then NORMAL, then LOW, then
// BACKGROUND; BACKGROUND can starve under sustained load at the higher
// classes, which is an accepted tradeoff rather than a bug.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
	PriorityBackground

	numPriorities = int(PriorityBackground) + 1
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	case PriorityBackground:
		return "BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// ActivityType classifies what an AgentActivity represents. Workflows are
// free to ignore the distinction entirely, but it's threaded through for
// collaborators (the gateway, tracesink) that want to filter or display by
// kind.
type ActivityType int

const (
	ActivityCommand ActivityType = iota
	ActivityEvent
	ActivityQuery
	ActivityResponse
	ActivityError
	ActivityStateChange
	ActivitySystem
)

func (t ActivityType) String() string {
	switch t {
	case ActivityCommand:
		return "COMMAND"
	case ActivityEvent:
		return "EVENT"
	case ActivityQuery:
		return "QUERY"
	case ActivityResponse:
		return "RESPONSE"
	case ActivityError:
		return "ERROR"
	case ActivityStateChange:
		return "STATE_CHANGE"
	case ActivitySystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Metadata carries the envelope fields that ride alongside an activity's
// payload but aren't part of it.
type Metadata struct {
	// Priority selects the mailbox class. Ignored entirely when the
	// mailbox has prioritization disabled.
	Priority Priority

	// SourceAgentRuntimeId names the instance (if any) that produced
	// this activity, for causality tracking across instances.
	SourceAgentRuntimeId AgentRuntimeId

	// CorrelationId links a request activity to its eventual response,
	// left to callers to populate and interpret.
	CorrelationId string

	// ScheduledFor, if non-zero, delays delivery until that instant.
	// The activity sits in the mailbox's delay queue until then.
	ScheduledFor time.Time

	// Timeout overrides the mailbox's default backpressure timeout for
	// this specific Offer call. Zero means "use the mailbox default".
	Timeout time.Duration

	// Processed is set by the instance once the workflow has returned
	// for this activity; it is never meaningful on the way in.
	Processed bool

	// Persisted is set by a tracesink-style subscriber once it has
	// durably recorded the activity; the runtime itself never sets or
	// reads this field.
	Persisted bool

	// Extra carries caller-defined extension fields the runtime has no
	// opinion about.
	Extra map[string]any
}

// AgentActivity is the single envelope type flowing through every mailbox.
// Payload is intentionally `any`: the workflow that owns an instance is the
// only code that needs to know its concrete shape, and forcing a type
// parameter onto AgentActivity itself would make Runtime (which must hold
// instances of differing state/payload types in one registry) impossible to
// express without reflection at every call site.
type AgentActivity struct {
	ID       ActivityID
	Type     ActivityType
	Payload  any
	Metadata Metadata

	createdAt time.Time
}

// NewActivity constructs an AgentActivity with a fresh id and createdAt
// timestamp. Metadata.Priority defaults to NORMAL: Priority's zero value is
// PriorityHigh, so leaving it unset would silently preempt real work.
func NewActivity(kind ActivityType, payload any) *AgentActivity {
	return &AgentActivity{
		ID:      NewActivityID(),
		Type:    kind,
		Payload: payload,
		Metadata: Metadata{
			Priority: PriorityNormal,
		},
		createdAt: time.Now(),
	}
}

// CreatedAt reports when NewActivity constructed this activity.
func (a *AgentActivity) CreatedAt() time.Time {
	return a.createdAt
}
