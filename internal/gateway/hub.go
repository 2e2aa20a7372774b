// Package gateway implements the WebSocket collaborator described
// informatively in spec.md §6: a thin transport translating JSON frames
// into calls against an *agentruntime.Runtime's control plane, and
// streaming activity events back out.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roasbeef/agentruntime/internal/agentruntime"
	"github.com/roasbeef/agentruntime/internal/logging"
)

// Hub owns the set of live client connections and the Runtime they talk
// to. There is deliberately no per-connection authentication/authorization
// logic here beyond the AuthFunc hook: that's a collaborator concern
// spec.md leaves external, wired in only as the hook this Hub calls.
type Hub struct {
	rt  *agentruntime.Runtime
	log logging.Logger

	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}

	// AuthFunc, if set, is called once per incoming connection; a
	// non-nil error rejects the upgrade with ErrUnauthorized.
	AuthFunc func(r *http.Request) error
}

// NewHub constructs a Hub bound to rt. allowedOrigins, when non-empty,
// restricts the WebSocket upgrade's Origin check; an empty list allows
// any origin (suitable for a CLI-facing loopback gateway, not a public
// deployment).
func NewHub(rt *agentruntime.Runtime, log logging.Logger, allowedOrigins ...string) *Hub {
	if log == nil {
		log = logging.Disabled()
	}

	h := &Hub{
		rt:         rt,
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	return h
}

// Run processes connection registration/deregistration until ctx is
// cancelled. It must be started in its own goroutine before ServeHTTP is
// used.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}

		case <-ctx.Done():
			for c := range h.clients {
				c.close()
			}
			return
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and spawns the
// client's read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.AuthFunc != nil {
		if err := h.AuthFunc(r); err != nil {
			http.Error(w, ErrUnauthorized, http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnS(r.Context(), "gateway: upgrade failed", "err", err)
		return
	}

	c := newClient(h, conn, h.log)
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// dispatch decodes and executes a single inbound frame against the
// runtime, queuing the appropriate ack/error/state reply on c.
func (h *Hub) dispatch(c *client, frame InboundFrame) {
	switch frame.Type {
	case TypeSend:
		h.handleSend(c, frame)
	case TypeGetState:
		h.handleGetState(c, frame)
	case TypeSubscribe:
		h.handleSubscribe(c, frame)
	case TypeUnsubscribe:
		h.handleUnsubscribe(c, frame)
	case TypeTerminate:
		h.handleTerminate(c, frame)
	default:
		c.enqueue(errorFrame(ErrUnknownMessageType,
			fmt.Sprintf("unknown message type %q", frame.Type)))
	}
}

func (h *Hub) handleSend(c *client, frame InboundFrame) {
	var payload SendPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.enqueue(errorFrame(ErrParseError, err.Error()))
		return
	}

	id, err := agentruntime.MakeAgentRuntimeID(payload.AgentRuntimeID)
	if err != nil {
		c.enqueue(errorFrame(ErrValidationError, err.Error()))
		return
	}

	act := agentruntime.NewActivity(parseActivityType(payload.ActivityType), payload.Payload)
	act.Metadata.Priority = parsePriority(payload.Priority)
	act.Metadata.CorrelationId = payload.CorrelationID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.rt.Send(ctx, id, act); err != nil {
		c.enqueue(errorFrame(ErrAgentRuntimeSendFailed, err.Error()))
		return
	}

	c.enqueue(OutboundFrame{Type: TypeAck, Payload: AckPayload{For: TypeSend}})
}

func (h *Hub) handleGetState(c *client, frame InboundFrame) {
	var payload GetStatePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.enqueue(errorFrame(ErrParseError, err.Error()))
		return
	}

	id, err := agentruntime.MakeAgentRuntimeID(payload.AgentRuntimeID)
	if err != nil {
		c.enqueue(errorFrame(ErrValidationError, err.Error()))
		return
	}

	snap, err := h.rt.GetState(id)
	if err != nil {
		c.enqueue(errorFrame(ErrInternalServerError, err.Error()))
		return
	}

	c.enqueue(OutboundFrame{Type: TypeState, Payload: stateFromSnapshot(snap)})
}

func (h *Hub) handleSubscribe(c *client, frame InboundFrame) {
	var payload SubscribePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.enqueue(errorFrame(ErrParseError, err.Error()))
		return
	}

	id, err := agentruntime.MakeAgentRuntimeID(payload.AgentRuntimeID)
	if err != nil {
		c.enqueue(errorFrame(ErrValidationError, err.Error()))
		return
	}

	sub, err := h.rt.Subscribe(id)
	if err != nil {
		c.enqueue(errorFrame(ErrAgentRuntimeSubscribeFailed, err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.trackSubscription(payload.AgentRuntimeID, cancel)

	go func() {
		defer h.rt.Unsubscribe(id, sub)

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				c.enqueue(OutboundFrame{
					Type: TypeActivityEvent,
					Payload: ActivityEventPayload{
						AgentRuntimeID: string(ev.Snapshot.ID),
						ActivityID:     string(ev.Activity.ID),
						ActivityType:   ev.Activity.Type.String(),
						State:          stateFromSnapshot(ev.Snapshot),
					},
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	c.enqueue(OutboundFrame{Type: TypeAck, Payload: AckPayload{For: TypeSubscribe}})
}

func (h *Hub) handleUnsubscribe(c *client, frame InboundFrame) {
	var payload SubscribePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.enqueue(errorFrame(ErrParseError, err.Error()))
		return
	}

	c.stopSubscription(payload.AgentRuntimeID)
	c.enqueue(OutboundFrame{Type: TypeAck, Payload: AckPayload{For: TypeUnsubscribe}})
}

func (h *Hub) handleTerminate(c *client, frame InboundFrame) {
	var payload TerminatePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		c.enqueue(errorFrame(ErrParseError, err.Error()))
		return
	}

	id, err := agentruntime.MakeAgentRuntimeID(payload.AgentRuntimeID)
	if err != nil {
		c.enqueue(errorFrame(ErrValidationError, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.rt.Terminate(ctx, id); err != nil {
		c.enqueue(errorFrame(ErrInternalServerError, err.Error()))
		return
	}

	c.enqueue(OutboundFrame{Type: TypeAck, Payload: AckPayload{For: TypeTerminate}})
}

func stateFromSnapshot(snap agentruntime.Snapshot) StatePayload {
	sp := StatePayload{
		AgentRuntimeID:    string(snap.ID),
		Status:            snap.Status.String(),
		State:             snap.State,
		Processed:         snap.Processed,
		Failures:          snap.Failures,
		AvgProcessingTime: snap.AvgProcessingTime.String(),
		Mailbox: MailboxPayload{
			Size:      snap.Mailbox.Size,
			Processed: snap.Mailbox.Processed,
			Timeouts:  snap.Mailbox.Timeouts,
		},
	}
	if snap.LastError != nil {
		sp.LastError = snap.LastError.Error()
	}

	return sp
}

func parseActivityType(s string) agentruntime.ActivityType {
	switch s {
	case "COMMAND":
		return agentruntime.ActivityCommand
	case "EVENT":
		return agentruntime.ActivityEvent
	case "QUERY":
		return agentruntime.ActivityQuery
	case "RESPONSE":
		return agentruntime.ActivityResponse
	case "ERROR":
		return agentruntime.ActivityError
	case "STATE_CHANGE":
		return agentruntime.ActivityStateChange
	case "SYSTEM":
		return agentruntime.ActivitySystem
	default:
		return agentruntime.ActivityCommand
	}
}

func parsePriority(s string) agentruntime.Priority {
	switch s {
	case "HIGH":
		return agentruntime.PriorityHigh
	case "LOW":
		return agentruntime.PriorityLow
	case "BACKGROUND":
		return agentruntime.PriorityBackground
	default:
		return agentruntime.PriorityNormal
	}
}
