package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/agentruntime/internal/gateway"
)

var (
	sendActivityType  string
	sendPayloadJSON   string
	sendPriority      string
	sendCorrelationID string
)

var sendCmd = &cobra.Command{
	Use:   "send <agent-runtime-id>",
	Short: "send an activity to a running instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendActivityType, "type", "COMMAND", "activity type (COMMAND, EVENT, QUERY, ...)")
	sendCmd.Flags().StringVar(&sendPayloadJSON, "payload", "null", "JSON-encoded payload")
	sendCmd.Flags().StringVar(&sendPriority, "priority", "NORMAL", "HIGH, NORMAL, LOW, or BACKGROUND")
	sendCmd.Flags().StringVar(&sendCorrelationID, "correlation-id", "", "optional correlation id")
	RootCmd.AddCommand(sendCmd)
}

func runSend(_ *cobra.Command, args []string) error {
	var payload any
	if err := json.Unmarshal([]byte(sendPayloadJSON), &payload); err != nil {
		return fmt.Errorf("agentctl: --payload is not valid JSON: %w", err)
	}

	conn, err := dialGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := sendFrame(conn, gateway.TypeSend, gateway.SendPayload{
		AgentRuntimeID: args[0],
		ActivityType:   sendActivityType,
		Payload:        payload,
		Priority:       sendPriority,
		CorrelationID:  sendCorrelationID,
	})
	if err != nil {
		return err
	}

	return printFrame(reply)
}
