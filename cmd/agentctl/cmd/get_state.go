package cmd

import (
	"github.com/spf13/cobra"

	"github.com/roasbeef/agentruntime/internal/gateway"
)

var getStateCmd = &cobra.Command{
	Use:   "get-state <agent-runtime-id>",
	Short: "fetch an instance's current state snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetState,
}

func init() {
	RootCmd.AddCommand(getStateCmd)
}

func runGetState(_ *cobra.Command, args []string) error {
	conn, err := dialGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := sendFrame(conn, gateway.TypeGetState, gateway.GetStatePayload{
		AgentRuntimeID: args[0],
	})
	if err != nil {
		return err
	}

	return printFrame(reply)
}
