package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roasbeef/agentruntime/internal/gateway"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <agent-runtime-id>",
	Short: "stream activity events from a running instance until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribe,
}

func init() {
	RootCmd.AddCommand(subscribeCmd)
}

func runSubscribe(_ *cobra.Command, args []string) error {
	conn, err := dialGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := sendFrame(conn, gateway.TypeSubscribe, gateway.SubscribePayload{
		AgentRuntimeID: args[0],
	})
	if err != nil {
		return err
	}
	if err := printFrame(reply); err != nil {
		return err
	}

	for {
		var frame gateway.OutboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if err := printFrame(frame); err != nil {
			return err
		}
	}
}

func printFrame(frame gateway.OutboundFrame) error {
	fmt.Printf("%s: %+v\n", frame.Type, frame.Payload)
	return nil
}
