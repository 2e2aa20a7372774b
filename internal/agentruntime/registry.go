package agentruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roasbeef/agentruntime/internal/logging"
)

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	logger          logging.Logger
	defaultInstance AgentRuntimeConfig
}

// WithLogger overrides the Runtime's structured logger. Defaults to a
// disabled logger so embedding callers don't get unsolicited output.
func WithLogger(l logging.Logger) RuntimeOption {
	return func(c *runtimeConfig) {
		c.logger = l
	}
}

// WithDefaultInstanceConfig overrides the AgentRuntimeConfig new instances
// get when Create is called without a CreateOption overriding it.
func WithDefaultInstanceConfig(cfg AgentRuntimeConfig) RuntimeOption {
	return func(c *runtimeConfig) {
		c.defaultInstance = cfg
	}
}

// Runtime is the control plane: it owns the registry of live and
// terminated agent instances and exposes the five operations spec'd for
// it (Create/Send/GetState/Subscribe/Terminate). A single Runtime can host
// instances of differing state types simultaneously, since instanceBase
// erases S; callers that want a typed view use the Handle[S] returned by
// Create.
type Runtime struct {
	mu        sync.RWMutex
	instances map[AgentRuntimeId]instanceBase

	cfg runtimeConfig

	shutdownOnce sync.Once
	shuttingDown bool
}

// NewRuntime constructs an empty Runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	cfg := runtimeConfig{
		logger:          logging.Disabled(),
		defaultInstance: DefaultAgentRuntimeConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Runtime{
		instances: make(map[AgentRuntimeId]instanceBase),
		cfg:       cfg,
	}
}

// CreateOption configures a single Create call.
type CreateOption[S any] func(*createConfig[S])

type createConfig[S any] struct {
	runtimeCfg AgentRuntimeConfig
	workflow   Workflow[S]
}

// WithInstanceConfig overrides the AgentRuntimeConfig for this Create call.
func WithInstanceConfig[S any](cfg AgentRuntimeConfig) CreateOption[S] {
	return func(c *createConfig[S]) {
		c.runtimeCfg = cfg
	}
}

// WithWorkflow supplies the Workflow this instance runs. Without it, the
// instance uses IdentityWorkflow[S].
func WithWorkflow[S any](wf Workflow[S]) CreateOption[S] {
	return func(c *createConfig[S]) {
		c.workflow = wf
	}
}

// Create registers and starts a new agent instance under id with the given
// initial state. Create is a package-level generic function, not a Runtime
// method, since Go methods can't carry their own type parameters.
func Create[S any](rt *Runtime, id AgentRuntimeId, initial S, opts ...CreateOption[S]) (*Handle[S], error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.shuttingDown {
		return nil, ErrMailboxClosed
	}

	if _, exists := rt.instances[id]; exists {
		return nil, &AlreadyExistsError{ID: id}
	}

	cc := createConfig[S]{
		runtimeCfg: rt.cfg.defaultInstance,
		workflow:   IdentityWorkflow[S](),
	}
	for _, opt := range opts {
		opt(&cc)
	}

	if err := cc.runtimeCfg.Validate(); err != nil {
		return nil, err
	}

	inst := newAgentInstance(id, initial, cc.workflow, cc.runtimeCfg, rt.cfg.logger)
	rt.instances[id] = inst
	inst.start()

	return &Handle[S]{inst: inst, rt: rt}, nil
}

// Send delivers an activity to the named instance's mailbox. It returns
// NotFound if no instance was ever created under id, or TerminatedError if
// the instance exists but has already shut down.
func (rt *Runtime) Send(ctx context.Context, id AgentRuntimeId, act *AgentActivity) error {
	inst, err := rt.lookup(id)
	if err != nil {
		return err
	}

	return inst.send(ctx, act)
}

// GetState returns a type-erased snapshot of the named instance's current
// state. A terminated instance still answers GetState with its last
// snapshot rather than NotFound, on the view that "terminated" is itself
// meaningful state a caller may need to observe (see DESIGN.md).
func (rt *Runtime) GetState(id AgentRuntimeId) (Snapshot, error) {
	inst, err := rt.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	return inst.snapshot(), nil
}

// Subscribe opens a type-erased activity stream for the named instance.
// The returned Subscription must eventually be passed to Unsubscribe (or
// simply left to be closed when the instance terminates) or its fan-out
// bookkeeping leaks.
func (rt *Runtime) Subscribe(id AgentRuntimeId) (*Subscription, error) {
	inst, err := rt.lookup(id)
	if err != nil {
		return nil, err
	}

	return inst.subscribe(), nil
}

// Unsubscribe detaches a Subscription previously returned by Subscribe.
func (rt *Runtime) Unsubscribe(id AgentRuntimeId, sub *Subscription) error {
	inst, err := rt.lookup(id)
	if err != nil {
		return err
	}

	inst.unsubscribe(sub)

	return nil
}

// TerminateOption configures a single Terminate call.
type TerminateOption func(*terminateConfig)

type terminateConfig struct {
	drainTimeout time.Duration
	hasTimeout   bool
}

// WithDrainTimeout overrides the default drain timeout for this Terminate
// call. Zero means wait forever for the mailbox to drain on its own.
func WithDrainTimeout(d time.Duration) TerminateOption {
	return func(c *terminateConfig) {
		c.drainTimeout = d
		c.hasTimeout = true
	}
}

// Terminate requests drain-then-stop shutdown of the named instance: no
// further Sends are accepted, but whatever's already queued (or scheduled)
// is still processed, bounded by the drain timeout (5s unless overridden).
// The instance remains registered after termination so GetState keeps
// answering with its final snapshot.
func (rt *Runtime) Terminate(ctx context.Context, id AgentRuntimeId, opts ...TerminateOption) error {
	inst, err := rt.lookup(id)
	if err != nil {
		return err
	}

	tc := terminateConfig{drainTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&tc)
	}

	return inst.terminate(ctx, tc.drainTimeout)
}

// Shutdown terminates every currently-registered instance, draining each
// with the given timeout, and blocks new Create calls from that point on.
func (rt *Runtime) Shutdown(ctx context.Context, drainTimeout time.Duration) error {
	rt.mu.Lock()
	rt.shuttingDown = true
	snapshot := make([]instanceBase, 0, len(rt.instances))
	for _, inst := range rt.instances {
		snapshot = append(snapshot, inst)
	}
	rt.mu.Unlock()

	var firstErr error
	for _, inst := range snapshot {
		if err := inst.terminate(ctx, drainTimeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (rt *Runtime) lookup(id AgentRuntimeId) (instanceBase, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	inst, ok := rt.instances[id]
	if !ok {
		return nil, ErrNotFound
	}

	return inst, nil
}

// Handle is the typed view onto an instance returned by Create. It's a thin
// convenience wrapper: everything it does is also reachable, type-erased,
// through the owning Runtime by id.
type Handle[S any] struct {
	inst *agentInstance[S]
	rt   *Runtime
}

// ID returns the instance's AgentRuntimeId.
func (h *Handle[S]) ID() AgentRuntimeId {
	return h.inst.ID()
}

// Send delivers an activity to this instance.
func (h *Handle[S]) Send(ctx context.Context, act *AgentActivity) error {
	return h.inst.send(ctx, act)
}

// GetState returns this instance's current typed state snapshot.
func (h *Handle[S]) GetState() AgentRuntimeState[S] {
	st := *h.inst.current.Load()
	st.Mailbox = h.inst.mailbox.mailboxMetrics()

	return st
}

// TypedSubscription is a Subscribe stream whose Snapshot.State has already
// been cast back to S.
type TypedSubscription[S any] struct {
	C <-chan TypedActivityEvent[S]

	underlying *Subscription
}

// TypedActivityEvent is ActivityEvent with Snapshot replaced by its
// concrete AgentRuntimeState[S].
type TypedActivityEvent[S any] struct {
	Activity *AgentActivity
	State    AgentRuntimeState[S]
}

// Subscribe opens a typed activity stream for this instance.
func (h *Handle[S]) Subscribe() *TypedSubscription[S] {
	sub := h.inst.subscribe()
	out := make(chan TypedActivityEvent[S])

	go func() {
		defer close(out)
		for ev := range sub.C {
			state, ok := ev.Snapshot.State.(S)
			if !ok {
				panic(&RuntimeInvariantViolation{
					Detail: fmt.Sprintf(
						"handle for %q received a snapshot whose "+
							"state did not assert back to its own type",
						ev.Snapshot.ID,
					),
				})
			}
			out <- TypedActivityEvent[S]{
				Activity: ev.Activity,
				State: AgentRuntimeState[S]{
					ID:                ev.Snapshot.ID,
					Status:            ev.Snapshot.Status,
					State:             state,
					Processed:         ev.Snapshot.Processed,
					Failures:          ev.Snapshot.Failures,
					LastError:         ev.Snapshot.LastError,
					LastActivityID:    ev.Snapshot.LastActivityID,
					AvgProcessingTime: ev.Snapshot.AvgProcessingTime,
					Mailbox:           ev.Snapshot.Mailbox,
					UpdatedAt:         ev.Snapshot.UpdatedAt,
				},
			}
		}
	}()

	return &TypedSubscription[S]{C: out, underlying: sub}
}

// Unsubscribe detaches a TypedSubscription.
func (h *Handle[S]) Unsubscribe(sub *TypedSubscription[S]) {
	h.inst.unsubscribe(sub.underlying)
}

// Terminate requests drain-then-stop shutdown of this instance.
func (h *Handle[S]) Terminate(ctx context.Context, opts ...TerminateOption) error {
	tc := terminateConfig{drainTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&tc)
	}

	return h.inst.terminate(ctx, tc.drainTimeout)
}
