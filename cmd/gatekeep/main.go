// Command gatekeep is a policy-enforcing gateway that lets an automated
// agent edit files and run commands inside one project checkout.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	root       string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "Policy-enforcing gateway for agent file edits and command execution",
		Long: `gatekeep validates every file operation and command an agent requests
against the project's path and command policies, backs files up before
mutating them, and records every outcome in an audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/gatekeep/config.json)")
	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "project root (default: PROJECT_ROOT or the current directory)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: error, warn, info or debug")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(checkCmd(opts))
	rootCmd.AddCommand(backupsCmd(opts))
	rootCmd.AddCommand(auditCmd(opts))
	return rootCmd
}

// exitError ends the process with code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
