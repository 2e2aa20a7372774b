package agentruntime

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Workflow is the user-supplied function that drives one agent instance's
// state transitions. It receives the activity being processed and the
// instance's current state, and returns either the next state or a failure.
// A returned error never terminates the instance: the driver loop records
// it, flips the instance to ERROR status, and keeps calling Workflow for
// subsequent activities.
//
// The fn.Result return type mirrors the teacher's ActorBehavior.Receive
// signature; it reads naturally at call sites that already use fn.Result
// elsewhere (WhenOk/WhenErr/Unpack) and avoids the ambiguity of a bare
// (S, error) return when S itself is a pointer type that could be nil on
// success.
type Workflow[S any] func(ctx context.Context, activity *AgentActivity, state S) fn.Result[S]

// IdentityWorkflow is the default workflow: it leaves state untouched and
// always succeeds, suitable for instances used purely as an activity log
// or a subscription fan-out point with no state machine of their own.
func IdentityWorkflow[S any]() Workflow[S] {
	return func(_ context.Context, _ *AgentActivity, state S) fn.Result[S] {
		return fn.Ok(state)
	}
}
