// Command agentctl bootstraps an agent runtime and drives it, either by
// serving its control plane over a WebSocket gateway or by acting as a
// client against an already-running gateway.
package main

import "github.com/roasbeef/agentruntime/cmd/agentctl/cmd"

func main() {
	cmd.Execute()
}
