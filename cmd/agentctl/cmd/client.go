package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roasbeef/agentruntime/internal/gateway"
)

// dialGateway opens a short-lived WebSocket connection to a running
// `agentctl serve` instance at --addr, used by the one-shot client
// subcommands (send/get-state/subscribe/terminate).
func dialGateway() (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: addrFlag, Path: "/ws"}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("agentctl: dialing gateway at %s: %w", u.String(), err)
	}

	return conn, nil
}

// sendFrame writes one InboundFrame and returns the next OutboundFrame the
// gateway sends back (typically an ack, error, or state frame).
func sendFrame(conn *websocket.Conn, frameType string, data any) (gateway.OutboundFrame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return gateway.OutboundFrame{}, err
	}

	frame := struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: frameType, Data: raw}

	if err := conn.WriteJSON(frame); err != nil {
		return gateway.OutboundFrame{}, err
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var reply gateway.OutboundFrame
	if err := conn.ReadJSON(&reply); err != nil {
		return gateway.OutboundFrame{}, err
	}

	return reply, nil
}
