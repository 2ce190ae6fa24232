// Command registry-gateway runs the MCP Gateway Registry: the registry
// store, authorization engine, reverse proxy, health monitor, discovery
// index, admin API, and audit log described by this repository's design
// document, wired together the way cmd/docker-mcp wires its own
// subsystems.
package main

import (
	"fmt"
	"os"

	"github.com/mcpgateway/registry/cmd/registry-gateway/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level command error to the §6 exit-code contract:
// 0 clean shutdown, 1 fatal startup error, 2 policy reload failure during
// startup.
func exitCodeFor(err error) int {
	if code, ok := err.(commands.ExitCoder); ok {
		return code.ExitCode()
	}
	return 1
}
