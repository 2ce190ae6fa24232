// Package commands builds the registry-gateway cobra command tree:
// `serve`, `scope validate`, `scope reload`, `reindex`, and `version`,
// following the same spf13/cobra + spf13/pflag combination
// cmd/docker-mcp's own root command uses.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// ExitCoder lets a command's error carry a specific process exit code
// (§6: 0 clean shutdown, 1 fatal startup error, 2 policy reload failure).
type ExitCoder interface {
	error
	ExitCode() int
}

type exitCodeErr struct {
	err  error
	code int
}

func (e *exitCodeErr) Error() string { return e.err.Error() }
func (e *exitCodeErr) ExitCode() int { return e.code }

// WithExitCode wraps err so the top-level main() reports code on exit. A
// nil err returns nil.
func WithExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitCodeErr{err: err, code: code}
}

const helpTemplate = `registry-gateway - MCP Gateway Registry.
{{if .UseLine}}
Usage: {{.UseLine}}
{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableSubCommands}}
Available Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}{{end}}
`

// Root returns the root command for the registry-gateway binary.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "registry-gateway",
		Short:         "Registry, authorizer, and reverse proxy for MCP servers and A2A agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetHelpTemplate(helpTemplate)

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(scopeCommand())
	cmd.AddCommand(reindexCommand())
	cmd.AddCommand(versionCommand())

	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and quit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(Version)
			return nil
		},
	}
}
