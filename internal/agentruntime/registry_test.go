package agentruntime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRuntimeCreateSendGetStateLifecycle (S1) covers the basic control-plane
// round trip: Create an instance, Send it activities, observe state change
// through GetState.
func TestRuntimeCreateSendGetStateLifecycle(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("s1-basic")
	require.NoError(t, err)

	handle, err := Create(rt, id, counterState{}, WithWorkflow[counterState](incrementWorkflow))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, handle.Send(context.Background(), NewActivity(ActivityCommand, 2)))
	}

	require.Eventually(t, func() bool {
		return handle.GetState().Processed == 3
	}, time.Second, time.Millisecond)

	require.Equal(t, 6, handle.GetState().State.Count)

	snap, err := rt.GetState(id)
	require.NoError(t, err)
	require.Equal(t, 6, snap.State.(counterState).Count)
}

// TestRuntimeCreateDuplicateIdRejected (S2) covers the AlreadyExists path.
func TestRuntimeCreateDuplicateIdRejected(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("s2-dup")
	require.NoError(t, err)

	_, err = Create(rt, id, counterState{})
	require.NoError(t, err)

	_, err = Create(rt, id, counterState{})
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
}

// TestRuntimeSendUnknownIdNotFound (S3) covers Send/GetState/Subscribe/
// Terminate against an id the registry has never seen.
func TestRuntimeSendUnknownIdNotFound(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("never-created")
	require.NoError(t, err)

	require.ErrorIs(t, rt.Send(context.Background(), id, NewActivity(ActivityCommand, 1)), ErrNotFound)

	_, err = rt.GetState(id)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = rt.Subscribe(id)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, rt.Terminate(context.Background(), id), ErrNotFound)
}

// TestRuntimeTerminateThenGetStateReturnsLastSnapshot (S4) exercises this
// repository's resolution of the GetState-on-terminated open question.
func TestRuntimeTerminateThenGetStateReturnsLastSnapshot(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("s4-terminated")
	require.NoError(t, err)

	handle, err := Create(rt, id, counterState{}, WithWorkflow[counterState](incrementWorkflow))
	require.NoError(t, err)

	require.NoError(t, handle.Send(context.Background(), NewActivity(ActivityCommand, 5)))
	require.Eventually(t, func() bool {
		return handle.GetState().Processed == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, rt.Terminate(context.Background(), id, WithDrainTimeout(time.Second)))

	snap, err := rt.GetState(id)
	require.NoError(t, err)
	require.Equal(t, StatusTerminated, snap.Status)
	require.Equal(t, 5, snap.State.(counterState).Count)

	err = rt.Send(context.Background(), id, NewActivity(ActivityCommand, 1))
	var termErr *TerminatedError
	require.ErrorAs(t, err, &termErr)
}

// TestRuntimeSubscribeFanOutMultipleSubscribers (S5) covers the fan-out
// contract: multiple subscribers each see every event independently.
func TestRuntimeSubscribeFanOutMultipleSubscribers(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("s5-fanout")
	require.NoError(t, err)

	handle, err := Create(rt, id, counterState{}, WithWorkflow[counterState](incrementWorkflow))
	require.NoError(t, err)

	subA, err := rt.Subscribe(id)
	require.NoError(t, err)
	subB, err := rt.Subscribe(id)
	require.NoError(t, err)

	require.NoError(t, handle.Send(context.Background(), NewActivity(ActivityCommand, 4)))

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case ev := <-sub.C:
			require.Equal(t, 4, ev.Snapshot.State.(counterState).Count)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	require.NoError(t, rt.Unsubscribe(id, subA))
	_, stillOpen := <-subA.C
	require.False(t, stillOpen)
}

// TestRuntimeSubscriberLagDropsOldest (S6) covers the drop-oldest
// overflow policy and the lag count surfaced on close.
func TestRuntimeSubscriberLagDropsOldest(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(WithDefaultInstanceConfig(AgentRuntimeConfig{
		Mailbox:              MailboxConfig{PriorityQueueSize: 64, Prioritized: true, BackpressureTimeout: time.Second},
		DrainTimeout:         time.Second,
		SubscriberBufferSize: 2,
	}))
	id, err := MakeAgentRuntimeID("s6-lag")
	require.NoError(t, err)

	handle, err := Create(rt, id, counterState{}, WithWorkflow[counterState](incrementWorkflow))
	require.NoError(t, err)

	sub, err := rt.Subscribe(id)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, handle.Send(context.Background(), NewActivity(ActivityCommand, 1)))
	}

	require.Eventually(t, func() bool {
		return handle.GetState().Processed == 10
	}, time.Second, time.Millisecond)

	require.NoError(t, rt.Unsubscribe(id, sub))

	drained := 0
	for range sub.C {
		drained++
	}
	require.LessOrEqual(t, drained, 2)

	require.Greater(t, sub.Lagged(), uint64(0))
}

func TestRuntimeConfigurationErrorRejectsBadMailboxConfig(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()
	id, err := MakeAgentRuntimeID("bad-config")
	require.NoError(t, err)

	_, err = Create(rt, id, counterState{}, WithInstanceConfig[counterState](AgentRuntimeConfig{
		Mailbox:              MailboxConfig{PriorityQueueSize: 0, Prioritized: true},
		DrainTimeout:         time.Second,
		SubscriberBufferSize: 16,
	}))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRuntimeShutdownTerminatesAllInstances(t *testing.T) {
	t.Parallel()

	rt := NewRuntime()

	var ids []AgentRuntimeId
	for i := 0; i < 3; i++ {
		id, err := MakeAgentRuntimeID(string(rune('a' + i)))
		require.NoError(t, err)
		_, err = Create(rt, id, counterState{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, rt.Shutdown(context.Background(), time.Second))

	for _, id := range ids {
		snap, err := rt.GetState(id)
		require.NoError(t, err)
		require.Equal(t, StatusTerminated, snap.Status)
	}

	_, err := Create(rt, "post-shutdown", counterState{})
	require.Error(t, err)
}

func TestIdentityWorkflowLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	res := IdentityWorkflow[counterState]()(context.Background(), NewActivity(ActivityCommand, 1), counterState{Count: 9})
	require.True(t, res.IsOk())
	got, err := res.Unpack()
	require.NoError(t, err)
	require.Equal(t, 9, got.Count)
}
