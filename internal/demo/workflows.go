// Package demo holds small, self-contained Workflow implementations used
// by cmd/agentctl to exercise the runtime end-to-end without pulling in a
// real domain (an AI provider adapter, a pipeline producer, and so on, all
// of which remain out of scope).
package demo

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/agentruntime/internal/agentruntime"
)

// CounterState is the state type for CounterWorkflow: it sums every
// integer payload it's sent.
type CounterState struct {
	Total int `json:"total"`
}

// CounterWorkflow accumulates integer payloads into CounterState.Total. Any
// other payload type is reported as a processing failure, not silently
// ignored.
func CounterWorkflow(_ context.Context, act *agentruntime.AgentActivity, state CounterState) fn.Result[CounterState] {
	delta, ok := act.Payload.(float64)
	if !ok {
		if i, ok2 := act.Payload.(int); ok2 {
			delta = float64(i)
		} else {
			return fn.Err[CounterState](
				fmt.Errorf("counter workflow: payload %T is not numeric", act.Payload),
			)
		}
	}

	return fn.Ok(CounterState{Total: state.Total + int(delta)})
}

// LogState is the state type for LogWorkflow: a ring of the last few
// payloads seen, for a demo instance whose only purpose is to show
// Subscribe fan-out working.
type LogState struct {
	Entries []string `json:"entries"`
}

const logStateMaxEntries = 20

// LogWorkflow appends a string representation of every activity payload it
// receives, capping retained history at logStateMaxEntries.
func LogWorkflow(_ context.Context, act *agentruntime.AgentActivity, state LogState) fn.Result[LogState] {
	entries := append(state.Entries, fmt.Sprintf("%v", act.Payload))
	if len(entries) > logStateMaxEntries {
		entries = entries[len(entries)-logStateMaxEntries:]
	}

	return fn.Ok(LogState{Entries: entries})
}
