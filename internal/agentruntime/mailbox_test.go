package agentruntime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestActivity(priority Priority, tag string) *AgentActivity {
	act := NewActivity(ActivityCommand, tag)
	act.Metadata.Priority = priority

	return act
}

func TestMailboxFIFOWithinPriority(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: 16, Prioritized: true})
	defer mb.stopScheduler()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		act := newTestActivity(PriorityNormal, string(rune('a'+i)))
		require.NoError(t, mb.Offer(ctx, act))
	}

	for i := 0; i < 5; i++ {
		act, err := mb.Take(ctx)
		require.NoError(t, err)
		require.Equal(t, string(rune('a'+i)), act.Payload)
	}
}

func TestMailboxStrictPriorityOrdering(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: 16, Prioritized: true})
	defer mb.stopScheduler()
	ctx := context.Background()

	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityBackground, "bg")))
	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityLow, "low")))
	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityNormal, "normal")))
	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityHigh, "high")))

	order := []string{"high", "normal", "low", "bg"}
	for _, want := range order {
		act, err := mb.Take(ctx)
		require.NoError(t, err)
		require.Equal(t, want, act.Payload)
	}
}

func TestMailboxBackpressureTimesOut(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{
		PriorityQueueSize:   1,
		Prioritized:         true,
		BackpressureTimeout: 20 * time.Millisecond,
	})
	defer mb.stopScheduler()
	ctx := context.Background()

	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityHigh, "first")))

	err := mb.Offer(ctx, newTestActivity(PriorityHigh, "second"))
	require.Error(t, err)

	var full *MailboxFullError
	require.ErrorAs(t, err, &full)
	require.Equal(t, AgentRuntimeId("t1"), full.ID)

	_, timeouts := mb.Metrics()
	require.Equal(t, uint64(1), timeouts)
}

func TestMailboxOfferHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: 1, Prioritized: true})
	defer mb.stopScheduler()
	require.NoError(t, mb.Offer(context.Background(), newTestActivity(PriorityHigh, "first")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mb.Offer(ctx, newTestActivity(PriorityHigh, "second"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMailboxScheduledDeliveryWaitsUntilReady(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: 8, Prioritized: true})
	defer mb.stopScheduler()
	ctx := context.Background()

	act := newTestActivity(PriorityHigh, "delayed")
	act.Metadata.ScheduledFor = time.Now().Add(60 * time.Millisecond)
	require.NoError(t, mb.Offer(ctx, act))

	takeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := mb.Take(takeCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := mb.Take(context.Background())
	require.NoError(t, err)
	require.Equal(t, "delayed", got.Payload)
}

func TestMailboxCloseDrainsBeforeClosedError(t *testing.T) {
	t.Parallel()

	mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: 8, Prioritized: true})
	defer mb.stopScheduler()
	ctx := context.Background()

	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityHigh, "one")))
	require.NoError(t, mb.Offer(ctx, newTestActivity(PriorityHigh, "two")))

	mb.Close()

	err := mb.Offer(ctx, newTestActivity(PriorityHigh, "rejected"))
	require.ErrorIs(t, err, ErrMailboxClosed)

	act, err := mb.Take(ctx)
	require.NoError(t, err)
	require.Equal(t, "one", act.Payload)

	act, err = mb.Take(ctx)
	require.NoError(t, err)
	require.Equal(t, "two", act.Payload)

	_, err = mb.Take(ctx)
	require.ErrorIs(t, err, ErrMailboxClosed)
}

// TestMailboxProcessedCounterMonotonic exercises the "processed" counter as
// a universal property: across arbitrary sequences of offers, the count of
// successful Take calls never exceeds or falls behind the count of
// successfully offered activities.
func TestMailboxProcessedCounterMonotonic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "n")
		mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: n + 1, Prioritized: true})
		defer mb.stopScheduler()
		ctx := context.Background()

		for i := 0; i < n; i++ {
			p := Priority(rapid.IntRange(0, 3).Draw(t, "priority"))
			require.NoError(t, mb.Offer(ctx, newTestActivity(p, "x")))
		}

		for i := 0; i < n; i++ {
			_, err := mb.Take(ctx)
			require.NoError(t, err)

			soFar, _ := mb.Metrics()
			require.Equal(t, uint64(i+1), soFar)
		}

		processed, _ := mb.Metrics()
		require.Equal(t, uint64(n), processed)
	})
}

// TestMailboxStrictPriorityOrderingProperty checks, for arbitrary
// interleavings of priority classes offered up front, that Take always
// drains strictly higher classes before lower ones.
func TestMailboxStrictPriorityOrderingProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		counts := [4]int{
			rapid.IntRange(0, 5).Draw(t, "high"),
			rapid.IntRange(0, 5).Draw(t, "normal"),
			rapid.IntRange(0, 5).Draw(t, "low"),
			rapid.IntRange(0, 5).Draw(t, "bg"),
		}

		total := counts[0] + counts[1] + counts[2] + counts[3]
		if total == 0 {
			return
		}

		mb := newMailbox("t1", MailboxConfig{PriorityQueueSize: total + 1, Prioritized: true})
		defer mb.stopScheduler()
		ctx := context.Background()

		for p := 0; p < 4; p++ {
			for i := 0; i < counts[p]; i++ {
				require.NoError(t, mb.Offer(ctx, newTestActivity(Priority(p), "x")))
			}
		}

		var lastClassSeen int
		for i := 0; i < total; i++ {
			act, err := mb.Take(ctx)
			require.NoError(t, err)
			class := int(act.Metadata.Priority)
			require.GreaterOrEqual(t, class, lastClassSeen,
				"a lower-priority activity was delivered before a higher-priority one")
			lastClassSeen = class
		}
	})
}
