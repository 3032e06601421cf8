// Package cmd wires the tinyagi CLI surface with cobra (spec §6: "CLI
// surface"). Grounded on the teacher's cmd/root.go persistent-flag and
// subcommand-registration pattern (vanducng-goclaw), re-targeted at
// this spec's harness/task/memory/browser/permission/tools/skills
// command groups in place of the teacher's gateway/channels/cron ones.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/tinyagi/tinyagi/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tinyagi",
	Short: "tinyagi — a long-running personal-assistant orchestrator",
	Long:  "tinyagi: file-queue message ingestion, a generate/verify/revise harness loop, and browser/tooling/memory/skills execution for a personal AI assistant.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: settings.json under the state home)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(harnessCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(browserCmd())
	rootCmd.AddCommand(permissionCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(skillsCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tinyagi %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("TINYAGI_CONFIG"); v != "" {
		return v
	}
	home, err := stateHome()
	if err != nil {
		return "settings.json"
	}
	return home.SettingsPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
