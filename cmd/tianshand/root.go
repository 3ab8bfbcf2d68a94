package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the build.
var version = "dev"

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tianshand",
		Short:         "Event bus and service lifecycle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts serveOptions
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the daemon",
		Example: "  tianshand serve --config /etc/tianshand/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	serveCmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address, overrides config")
	serveCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error")
	serveCmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Human-readable log output")
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	root.AddCommand(completionCmd)

	return root
}
