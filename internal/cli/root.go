// Package cli implements trackctl, a command-line driver for the tracking
// client and the mock backend.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Options carries the persistent flags.
type Options struct {
	ConfigPath string
	LogLevel   string
	BaseURL    string
	Store      string

	Stdout io.Writer
	Stderr io.Writer
}

// buildRootCmd constructs the command tree.
func buildRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "trackctl",
		Short:         "Drive the mobile tracking client from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug|info|warn|error (defaults MOBILETRACKING_LOG_LEVEL or info)")
	pf.StringVar(&opts.BaseURL, "base-url", opts.BaseURL, "Tracking API base URL")
	pf.StringVar(&opts.Store, "store", opts.Store, "Preference store: memory|bolt|redis")

	root.AddCommand(
		newRegisterCmd(opts),
		newTrackCmd(opts),
		newDeepLinkCmd(opts),
		newStatusCmd(opts),
		newClearCmd(opts),
		newServeMockCmd(opts),
	)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)

	return root
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &Options{Stdout: stdout, Stderr: stderr}
	root := buildRootCmd(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/trackctl. SIGINT and SIGTERM
// cancel the running command.
func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return MainWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
