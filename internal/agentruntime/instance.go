package agentruntime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roasbeef/agentruntime/internal/logging"
)

// instanceBase is the type-erased surface every agentInstance[S]
// implements, letting Runtime hold a single heterogeneous map keyed by
// AgentRuntimeId regardless of each instance's concrete state type.
type instanceBase interface {
	ID() AgentRuntimeId
	send(ctx context.Context, act *AgentActivity) error
	terminate(ctx context.Context, drainTimeout time.Duration) error
	snapshot() Snapshot
	subscribe() *Subscription
	unsubscribe(sub *Subscription)
}

type agentInstance[S any] struct {
	id       AgentRuntimeId
	workflow Workflow[S]
	mailbox  *mailbox
	fanout   *fanout
	log      logging.Logger

	current atomic.Pointer[AgentRuntimeState[S]]

	driverCtx    context.Context
	driverCancel context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
	stopOnce     sync.Once
}

func newAgentInstance[S any](
	id AgentRuntimeId, initial S, workflow Workflow[S],
	cfg AgentRuntimeConfig, log logging.Logger,
) *agentInstance[S] {

	ctx, cancel := context.WithCancel(context.Background())

	inst := &agentInstance[S]{
		id:           id,
		workflow:     workflow,
		mailbox:      newMailbox(id, cfg.Mailbox),
		fanout:       newFanout(cfg.SubscriberBufferSize),
		log:          log,
		driverCtx:    ctx,
		driverCancel: cancel,
	}

	inst.current.Store(&AgentRuntimeState[S]{
		ID:        id,
		Status:    StatusIdle,
		State:     initial,
		UpdatedAt: time.Now(),
	})

	return inst
}

func (a *agentInstance[S]) ID() AgentRuntimeId {
	return a.id
}

func (a *agentInstance[S]) start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.run()
	})
}

// send offers an activity to this instance's mailbox. It does not wait for
// the workflow to process it; Offer's blocking is purely about mailbox
// room, not end-to-end processing.
func (a *agentInstance[S]) send(ctx context.Context, act *AgentActivity) error {
	st := a.current.Load()
	if st.Status == StatusTerminated {
		return &TerminatedError{ID: a.id}
	}

	err := a.mailbox.Offer(ctx, act)
	if err == ErrMailboxClosed {
		return &TerminatedError{ID: a.id}
	}

	return err
}

func (a *agentInstance[S]) snapshot() Snapshot {
	st := *a.current.Load()
	st.Mailbox = a.mailbox.mailboxMetrics()

	return toSnapshot(st)
}

func (a *agentInstance[S]) subscribe() *Subscription {
	return a.fanout.subscribe()
}

func (a *agentInstance[S]) unsubscribe(sub *Subscription) {
	a.fanout.unsubscribe(sub)
}

// terminate requests drain-then-stop shutdown: the mailbox stops accepting
// new activities immediately, but the driver keeps processing whatever's
// already queued or scheduled until either the mailbox empties or
// drainTimeout elapses, whichever comes first.
func (a *agentInstance[S]) terminate(ctx context.Context, drainTimeout time.Duration) error {
	a.stopOnce.Do(func() {
		a.mailbox.Close()
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var timeoutCh <-chan time.Time
	if drainTimeout > 0 {
		timer := time.NewTimer(drainTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-done:
		return nil
	case <-timeoutCh:
		a.driverCancel()
		return nil
	case <-ctx.Done():
		a.driverCancel()
		return ctx.Err()
	}
}

// run is the processing loop: per spec, take the next activity, invoke the
// workflow, update status/counters, publish a snapshot and an
// ActivityEvent, repeat. Exits once Take reports the mailbox closed and
// drained, or the driver context is cancelled (forced stop past the drain
// timeout).
func (a *agentInstance[S]) run() {
	defer a.wg.Done()
	defer a.mailbox.stopScheduler()
	defer a.markTerminated()

	for {
		act, err := a.mailbox.Take(a.driverCtx)
		if err != nil {
			return
		}

		a.processOne(act)
	}
}

func (a *agentInstance[S]) processOne(act *AgentActivity) {
	ctx := logging.WithFields(a.driverCtx,
		"agent_runtime_id", a.id,
		"activity_id", act.ID,
	)

	a.setStatus(StatusProcessing)

	start := time.Now()
	result, failErr := a.invokeWorkflow(ctx, act)
	elapsed := time.Since(start)
	act.Metadata.Processed = true

	prev := a.current.Load()
	next := AgentRuntimeState[S]{
		ID:                a.id,
		Processed:         prev.Processed,
		Failures:          prev.Failures,
		LastActivityID:    act.ID,
		AvgProcessingTime: prev.AvgProcessingTime,
		UpdatedAt:         time.Now(),
	}

	if failErr != nil {
		next.Status = StatusError
		next.Failures++
		next.LastError = failErr
		next.State = prev.State

		a.log.ErrorS(ctx, "workflow processing failed", failErr)
	} else {
		next.Status = StatusIdle
		next.Processed++
		next.LastError = nil
		next.State = result
		next.AvgProcessingTime = nextEWMA(prev.AvgProcessingTime, elapsed, prev.Processed > 0)
	}

	next.Mailbox = a.mailbox.mailboxMetrics()

	a.current.Store(&next)

	a.fanout.publish(ActivityEvent{
		Activity: act,
		Snapshot: toSnapshot(next),
	})
}

func (a *agentInstance[S]) invokeWorkflow(ctx context.Context, act *AgentActivity) (state S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{
				ID:         a.id,
				ActivityID: act.ID,
				Cause:      fmt.Errorf("workflow panicked: %v", r),
			}
			state = a.current.Load().State
		}
	}()

	prev := a.current.Load()

	res := a.workflow(ctx, act, prev.State)
	if res.IsErr() {
		return prev.State, &ProcessingError{
			ID:         a.id,
			ActivityID: act.ID,
			Cause:      res.Err(),
		}
	}

	next, unpackErr := res.Unpack()
	if unpackErr != nil {
		return prev.State, &ProcessingError{
			ID:         a.id,
			ActivityID: act.ID,
			Cause:      unpackErr,
		}
	}

	return next, nil
}

func (a *agentInstance[S]) setStatus(status AgentRuntimeStatus) {
	prev := a.current.Load()
	next := *prev
	next.Status = status
	a.current.Store(&next)
}

func (a *agentInstance[S]) markTerminated() {
	prev := a.current.Load()
	next := *prev
	next.Status = StatusTerminated
	next.UpdatedAt = time.Now()
	a.current.Store(&next)

	a.fanout.closeAll()
}

// Ensure agentInstance[S] satisfies instanceBase for every S at compile
// time (checked against a throwaway instantiation, never constructed).
var _ instanceBase = (*agentInstance[struct{}])(nil)
