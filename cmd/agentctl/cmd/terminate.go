package cmd

import (
	"github.com/spf13/cobra"

	"github.com/roasbeef/agentruntime/internal/gateway"
)

var terminateCmd = &cobra.Command{
	Use:   "terminate <agent-runtime-id>",
	Short: "drain and stop a running instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runTerminate,
}

func init() {
	RootCmd.AddCommand(terminateCmd)
}

func runTerminate(_ *cobra.Command, args []string) error {
	conn, err := dialGateway()
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := sendFrame(conn, gateway.TypeTerminate, gateway.TerminatePayload{
		AgentRuntimeID: args[0],
	})
	if err != nil {
		return err
	}

	return printFrame(reply)
}
