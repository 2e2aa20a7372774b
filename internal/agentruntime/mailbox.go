package agentruntime

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// mailbox is the prioritized, bounded inbox for a single agent instance.
//
// Storage is one buffered channel per priority class (four when
// prioritization is enabled, one otherwise). A container/heap-based delay
// queue holds activities whose Metadata.ScheduledFor is still in the
// future; a dedicated goroutine sleeps until exactly the next readyAt
// instant and then moves ready entries into their priority channel, so
// Take never has to poll.
//
// Capacity is enforced by a counting semaphore per priority class (a
// buffered chan struct{} of the configured size) rather than by the
// channel's own capacity, since a scheduled activity occupies a capacity
// slot from the moment it's Offer'd even while it's sitting in the delay
// heap rather than the channel. Offer acquires a token up front (honoring
// ctx and the backpressure timeout); Take releases it once the activity is
// dequeued.
//
// Close stops new Offers immediately but does not discard what's already
// queued or delayed: Take keeps draining both until they're empty, then
// starts returning ErrMailboxClosed. This is what lets an instance's
// terminate path implement drain-then-stop by simply continuing its normal
// Take loop after calling Close, bounded by a drain timeout enforced by the
// caller.
type mailbox struct {
	owner AgentRuntimeId
	cfg   MailboxConfig

	queues [numPriorities]chan *AgentActivity
	tokens [numPriorities]chan struct{}

	heapMu   sync.Mutex
	delay    delayQueue
	wakeHeap chan struct{}

	doorbell chan struct{}

	mu        sync.RWMutex
	closed    atomic.Bool
	closedCh  chan struct{}
	closeOnce sync.Once

	schedulerDone chan struct{}

	processed atomic.Uint64
	timeouts  atomic.Uint64
}

func newMailbox(owner AgentRuntimeId, cfg MailboxConfig) *mailbox {
	n := numPriorities
	if !cfg.Prioritized {
		n = 1
	}

	mb := &mailbox{
		owner:         owner,
		cfg:           cfg,
		doorbell:      make(chan struct{}, 1),
		closedCh:      make(chan struct{}),
		wakeHeap:      make(chan struct{}, 1),
		schedulerDone: make(chan struct{}),
	}

	capacity := cfg.capacity()
	for i := 0; i < numPriorities; i++ {
		if i < n || !cfg.Prioritized {
			mb.queues[i] = make(chan *AgentActivity, capacity)
			mb.tokens[i] = make(chan struct{}, capacity)
		}
	}
	if !cfg.Prioritized {
		// Every class shares queue/token index 0.
		for i := 1; i < numPriorities; i++ {
			mb.queues[i] = mb.queues[0]
			mb.tokens[i] = mb.tokens[0]
		}
	}

	go mb.runScheduler()

	return mb
}

func (mb *mailbox) classFor(p Priority) int {
	if !mb.cfg.Prioritized {
		return 0
	}

	idx := int(p)
	if idx < 0 || idx >= numPriorities {
		return int(PriorityNormal)
	}

	return idx
}

func (mb *mailbox) ring() {
	select {
	case mb.doorbell <- struct{}{}:
	default:
	}
}

func (mb *mailbox) wakeScheduler() {
	select {
	case mb.wakeHeap <- struct{}{}:
	default:
	}
}

// Offer enqueues an activity, blocking until room is available, the
// activity's (or mailbox's) deadline elapses, ctx is cancelled, or the
// mailbox is closed.
func (mb *mailbox) Offer(ctx context.Context, act *AgentActivity) error {
	if mb.closed.Load() {
		return ErrMailboxClosed
	}

	class := mb.classFor(act.Metadata.Priority)

	timeout := mb.cfg.BackpressureTimeout
	if act.Metadata.Timeout > 0 {
		timeout = act.Metadata.Timeout
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case mb.tokens[class] <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		mb.timeouts.Add(1)
		return &MailboxFullError{ID: mb.owner, Priority: act.Metadata.Priority}
	case <-mb.closedCh:
		return ErrMailboxClosed
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if mb.closed.Load() {
		<-mb.tokens[class]
		return ErrMailboxClosed
	}

	if !act.Metadata.ScheduledFor.IsZero() && act.Metadata.ScheduledFor.After(time.Now()) {
		mb.heapMu.Lock()
		heap.Push(&mb.delay, &delayedActivity{
			activity: act,
			priority: class,
			readyAt:  act.Metadata.ScheduledFor.UnixNano(),
		})
		mb.heapMu.Unlock()
		mb.wakeScheduler()

		return nil
	}

	mb.queues[class] <- act
	mb.ring()

	return nil
}

// Take returns the next activity in strict priority order (HIGH before
// NORMAL before LOW before BACKGROUND, FIFO within a class), blocking until
// one is available, ctx is cancelled, or the mailbox is closed and fully
// drained.
func (mb *mailbox) Take(ctx context.Context) (*AgentActivity, error) {
	n := numPriorities
	if !mb.cfg.Prioritized {
		n = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for p := 0; p < n; p++ {
			select {
			case act := <-mb.queues[p]:
				<-mb.tokens[p]
				mb.processed.Add(1)
				return act, nil
			default:
			}
		}

		if mb.closed.Load() && mb.empty() {
			return nil, ErrMailboxClosed
		}

		select {
		case <-mb.doorbell:
		case <-mb.closedCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (mb *mailbox) empty() bool {
	n := numPriorities
	if !mb.cfg.Prioritized {
		n = 1
	}

	for p := 0; p < n; p++ {
		if len(mb.queues[p]) > 0 {
			return false
		}
	}

	mb.heapMu.Lock()
	defer mb.heapMu.Unlock()

	return mb.delay.Len() == 0
}

// Close stops accepting new Offers. Already-queued and already-delayed
// activities are still returned by Take until they're exhausted.
func (mb *mailbox) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed.Store(true)
		close(mb.closedCh)
		mb.mu.Unlock()
	})
}

// stopScheduler halts the delay-queue goroutine. Called once the instance
// driver is done pulling from this mailbox (after Take starts returning
// ErrMailboxClosed, or the instance is force-stopped past its drain
// timeout).
func (mb *mailbox) stopScheduler() {
	select {
	case <-mb.schedulerDone:
	default:
		close(mb.schedulerDone)
	}
}

func (mb *mailbox) runScheduler() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	armed := false

	for {
		mb.heapMu.Lock()
		readyAt, has := mb.delay.peekReadyAt()
		mb.heapMu.Unlock()

		if has {
			d := time.Until(time.Unix(0, readyAt))
			if d <= 0 {
				mb.deliverReady()
				continue
			}

			if armed {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer.Reset(d)
			armed = true
		}

		select {
		case <-mb.schedulerDone:
			return
		case <-mb.wakeHeap:
			continue
		case <-timer.C:
			armed = false
			mb.deliverReady()
		}
	}
}

// deliverReady moves every delay-heap entry whose readyAt has elapsed into
// its target priority channel.
func (mb *mailbox) deliverReady() {
	now := time.Now().UnixNano()

	for {
		mb.heapMu.Lock()
		readyAt, has := mb.delay.peekReadyAt()
		if !has || readyAt > now {
			mb.heapMu.Unlock()
			return
		}
		item := heap.Pop(&mb.delay).(*delayedActivity)
		mb.heapMu.Unlock()

		mb.mu.RLock()
		mb.queues[item.priority] <- item.activity
		mb.mu.RUnlock()
		mb.ring()
	}
}

// Metrics returns the mailbox's processed/timeouts counters.
func (mb *mailbox) Metrics() (processed, timeouts uint64) {
	return mb.processed.Load(), mb.timeouts.Load()
}

// mailboxMetrics reports the MailboxMetrics sub-record exposed through
// getState snapshots: current queue occupancy plus the processed/timeouts
// counters.
func (mb *mailbox) mailboxMetrics() MailboxMetrics {
	n := numPriorities
	if !mb.cfg.Prioritized {
		n = 1
	}

	size := 0
	for p := 0; p < n; p++ {
		size += len(mb.queues[p])
	}

	mb.heapMu.Lock()
	size += mb.delay.Len()
	mb.heapMu.Unlock()

	processed, timeouts := mb.Metrics()

	return MailboxMetrics{
		Size:      size,
		Processed: processed,
		Timeouts:  timeouts,
	}
}
