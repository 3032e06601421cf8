package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/config"
)

func harnessCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "harness",
		Short: "Inspect and control the harness loop",
	}
	root.AddCommand(harnessStatusCmd())
	root.AddCommand(harnessEnableCmd())
	root.AddCommand(harnessDisableCmd())
	root.AddCommand(harnessAutonomyCmd())
	return root
}

func harnessStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show harness enabled/autonomy/quiet-hours state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.RLock()
			defer cfg.RUnlock()
			fmt.Printf("enabled:       %v\n", cfg.Harness.Enabled)
			fmt.Printf("autonomy:      %s\n", cfg.Harness.Autonomy)
			fmt.Printf("quiet hours:   %s - %s\n", cfg.Harness.QuietHours.Start, cfg.Harness.QuietHours.End)
			fmt.Printf("digest time:   %s\n", cfg.Harness.DigestTime)
			fmt.Printf("browser:       enabled=%v provider=%s\n", cfg.Harness.Browser.Enabled, cfg.Harness.Browser.Provider)
			return nil
		},
	}
}

func harnessEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable the harness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setHarnessEnabled(true)
		},
	}
}

func harnessDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the harness (external messages no longer supersede needs_input runs; messages still go through the harness loop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setHarnessEnabled(false)
		},
	}
}

func setHarnessEnabled(enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Lock()
	cfg.Harness.Enabled = enabled
	cfg.Unlock()
	if err := config.Save(resolveConfigPath(), cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("harness enabled: %v\n", enabled)
	return nil
}

func harnessAutonomyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "autonomy <low|normal|strict>",
		Short: "Set the harness autonomy level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := args[0]
			switch level {
			case "low", "normal", "strict":
			default:
				return fmt.Errorf("invalid autonomy level %q (want low|normal|strict)", level)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Lock()
			cfg.Harness.Autonomy = level
			cfg.Unlock()
			if err := config.Save(resolveConfigPath(), cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("autonomy set to %s\n", level)
			return nil
		},
	}
}
