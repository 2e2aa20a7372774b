package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/agentruntime/internal/agentruntime"
)

func TestParseActivityTypeRoundTrip(t *testing.T) {
	cases := map[string]agentruntime.ActivityType{
		"COMMAND":      agentruntime.ActivityCommand,
		"EVENT":        agentruntime.ActivityEvent,
		"QUERY":        agentruntime.ActivityQuery,
		"RESPONSE":     agentruntime.ActivityResponse,
		"ERROR":        agentruntime.ActivityError,
		"STATE_CHANGE": agentruntime.ActivityStateChange,
		"SYSTEM":       agentruntime.ActivitySystem,
	}

	for in, want := range cases {
		require.Equal(t, want, parseActivityType(in), "input=%s", in)
	}
}

func TestParseActivityTypeDefaultsToCommand(t *testing.T) {
	require.Equal(t, agentruntime.ActivityCommand, parseActivityType(""))
	require.Equal(t, agentruntime.ActivityCommand, parseActivityType("bogus"))
}

func TestParsePriorityRoundTrip(t *testing.T) {
	cases := map[string]agentruntime.Priority{
		"HIGH":       agentruntime.PriorityHigh,
		"LOW":        agentruntime.PriorityLow,
		"BACKGROUND": agentruntime.PriorityBackground,
	}

	for in, want := range cases {
		require.Equal(t, want, parsePriority(in), "input=%s", in)
	}
}

func TestParsePriorityDefaultsToNormal(t *testing.T) {
	require.Equal(t, agentruntime.PriorityNormal, parsePriority(""))
	require.Equal(t, agentruntime.PriorityNormal, parsePriority("bogus"))
	require.Equal(t, agentruntime.PriorityNormal, parsePriority("NORMAL"))
}

func TestStateFromSnapshotOmitsErrorWhenNil(t *testing.T) {
	snap := agentruntime.Snapshot{
		ID:                "worker-1",
		Status:            agentruntime.StatusIdle,
		State:             map[string]int{"count": 3},
		Processed:         7,
		Failures:          0,
		LastError:         nil,
		AvgProcessingTime: 150 * time.Millisecond,
		Mailbox: agentruntime.MailboxMetrics{
			Size:      2,
			Processed: 7,
			Timeouts:  1,
		},
	}

	sp := stateFromSnapshot(snap)
	require.Equal(t, "worker-1", sp.AgentRuntimeID)
	require.Equal(t, "IDLE", sp.Status)
	require.Equal(t, uint64(7), sp.Processed)
	require.Empty(t, sp.LastError)
	require.Equal(t, "150ms", sp.AvgProcessingTime)
	require.Equal(t, MailboxPayload{Size: 2, Processed: 7, Timeouts: 1}, sp.Mailbox)
}

func TestStateFromSnapshotCarriesLastError(t *testing.T) {
	cause := errors.New("workflow exploded")
	snap := agentruntime.Snapshot{
		ID:        "worker-2",
		Status:    agentruntime.StatusError,
		LastError: cause,
	}

	sp := stateFromSnapshot(snap)
	require.Equal(t, "ERROR", sp.Status)
	require.Equal(t, "workflow exploded", sp.LastError)
}

func TestErrorFrameShape(t *testing.T) {
	frame := errorFrame(ErrValidationError, "bad id")
	require.Equal(t, TypeError, frame.Type)

	payload, ok := frame.Payload.(ErrorPayload)
	require.True(t, ok)
	require.Equal(t, ErrValidationError, payload.Code)
	require.Equal(t, "bad id", payload.Message)
}
