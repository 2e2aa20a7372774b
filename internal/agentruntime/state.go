package agentruntime

import "time"

// AgentRuntimeStatus is the lifecycle status of an agent instance.
type AgentRuntimeStatus int

const (
	StatusIdle AgentRuntimeStatus = iota
	StatusProcessing
	StatusError
	StatusTerminated
)

func (s AgentRuntimeStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusProcessing:
		return "PROCESSING"
	case StatusError:
		return "ERROR"
	case StatusTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// MailboxMetrics is the mailbox sub-record surfaced through getState
// snapshots: current queue occupancy plus the mailbox's own lifetime
// counters. Distinct from Processed/Failures below, which count workflow
// invocations rather than raw dequeues.
type MailboxMetrics struct {
	// Size is the number of activities currently queued or delayed,
	// awaiting dispatch.
	Size int

	// Processed is the count of activities the mailbox has handed to
	// Take, regardless of whether the workflow later succeeded.
	Processed uint64

	// Timeouts is the count of Offer calls that failed with
	// MailboxFullError.
	Timeouts uint64
}

// AgentRuntimeState is the immutable snapshot an instance publishes after
// every processing cycle: its own replacement record, not a delta, so
// GetState and the fan-out stream can hand it to readers without further
// locking.
type AgentRuntimeState[S any] struct {
	ID     AgentRuntimeId
	Status AgentRuntimeStatus
	State  S

	// Processed is the count of activities the workflow has completed
	// successfully. Failed/panicked invocations count toward Failures
	// instead, matching the driver loop's processing.processed semantics.
	Processed uint64

	// Failures is the count of activities for which the workflow
	// returned or panicked with an error.
	Failures uint64

	// LastError is the most recent workflow failure, or nil.
	LastError error

	// LastActivityID names the most recently processed activity.
	LastActivityID ActivityID

	// AvgProcessingTime is an exponentially-weighted moving average
	// (alpha=0.2) of per-activity workflow duration on successful
	// invocations, favoring responsiveness to recent load over a simple
	// running mean.
	AvgProcessingTime time.Duration

	// Mailbox reports the owning mailbox's current occupancy and
	// lifetime counters.
	Mailbox MailboxMetrics

	// UpdatedAt is when this snapshot was produced.
	UpdatedAt time.Time
}

// Snapshot is the type-erased counterpart of AgentRuntimeState, returned by
// Runtime-level (non-generic) operations that can't know an instance's
// concrete state type statically. Handle[S].GetState reads the typed record
// directly; Handle[S].Subscribe recovers the concrete type by asserting
// Snapshot.State.(S), which is always safe since a Snapshot only ever wraps
// a state produced under that same Handle[S].
type Snapshot struct {
	ID                AgentRuntimeId
	Status            AgentRuntimeStatus
	State             any
	Processed         uint64
	Failures          uint64
	LastError         error
	LastActivityID    ActivityID
	AvgProcessingTime time.Duration
	Mailbox           MailboxMetrics
	UpdatedAt         time.Time
}

func toSnapshot[S any](st AgentRuntimeState[S]) Snapshot {
	return Snapshot{
		ID:                st.ID,
		Status:            st.Status,
		State:             st.State,
		Processed:         st.Processed,
		Failures:          st.Failures,
		LastError:         st.LastError,
		LastActivityID:    st.LastActivityID,
		AvgProcessingTime: st.AvgProcessingTime,
		Mailbox:           st.Mailbox,
		UpdatedAt:         st.UpdatedAt,
	}
}

const ewmaAlpha = 0.2

func nextEWMA(prev time.Duration, sample time.Duration, hasPrev bool) time.Duration {
	if !hasPrev {
		return sample
	}

	weighted := ewmaAlpha*float64(sample) + (1-ewmaAlpha)*float64(prev)

	return time.Duration(weighted)
}
