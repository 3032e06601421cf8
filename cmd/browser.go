package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/browser"
)

func browserCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "browser",
		Short: "Inspect and control browser automation sessions",
	}
	root.AddCommand(browserSessionsCmd())
	root.AddCommand(browserTabsCmd())
	root.AddCommand(browserAttachCmd())
	root.AddCommand(browserApproveCmd())
	root.AddCommand(browserDenyCmd())
	root.AddCommand(browserApprovalsCmd())
	root.AddCommand(browserReplayCmd())
	return root
}

func browserSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List browser automation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepo(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			sessions, err := repo.ListBrowserSessions(context.Background())
			if err != nil {
				return fmt.Errorf("list browser sessions: %w", err)
			}
			for _, s := range sessions {
				fmt.Printf("%s  run=%s  status=%-10s  debugger=%s\n", s.SessionID, s.RunID, s.Status, s.DebuggerURL)
			}
			return nil
		},
	}
}

func browserTabsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tabs [runId]",
		Short: "List browser tabs, optionally filtered to one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepo(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			tabs, err := repo.ListBrowserTabs(context.Background(), runID)
			if err != nil {
				return fmt.Errorf("list browser tabs: %w", err)
			}
			for _, t := range tabs {
				fmt.Printf("%s  run=%s  session=%s  status=%s\n", t.TabID, t.RunID, t.SessionID, t.Status)
			}
			return nil
		},
	}
}

// browserAttachCmd prints the configured browser provider, debugger and
// profile settings — a read-only diagnostic: it does not probe ports,
// attach, or launch anything.
func browserAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Show the configured Chrome debugger settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.RLock()
			defer cfg.RUnlock()
			b := cfg.Harness.Browser
			fmt.Printf("provider:        %s\n", b.Provider)
			fmt.Printf("debugger_url:    %s\n", b.DebuggerURL)
			fmt.Printf("debugger_ports:  %v\n", b.DebuggerPorts)
			fmt.Printf("profile_path:    %s\n", b.ProfilePath)
			fmt.Printf("profile_dir:     %s\n", b.ProfileDirectory)
			return nil
		},
	}
}

func browserApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <reqId>",
		Short: "Approve a pending browser action approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideBrowserApproval(args[0], true)
		},
	}
}

func browserDenyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny <reqId>",
		Short: "Deny a pending browser action approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideBrowserApproval(args[0], false)
		},
	}
}

func decideBrowserApproval(requestID string, approve bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.DecideBrowserApproval(context.Background(), requestID, approve); err != nil {
		return fmt.Errorf("decide browser approval %s: %w", requestID, err)
	}
	decision := "denied"
	if approve {
		decision = "approved"
	}
	fmt.Printf("browser approval %s %s\n", requestID, decision)
	return nil
}

func browserApprovalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approvals [userId]",
		Short: "List browser action approval requests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepo(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			var userID string
			if len(args) == 1 {
				userID = args[0]
			}
			approvals, err := repo.ListBrowserApprovals(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("list browser approvals: %w", err)
			}
			for _, a := range approvals {
				decision := a.Decision
				if decision == "" {
					decision = "pending"
				}
				fmt.Printf("%s  action=%s  %s\n", a.RequestID, a.ActionID, decision)
			}
			return nil
		},
	}
}

func browserReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <runId> [userId]",
		Short: "Replay a run's recorded browser steps",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := openRepo(cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			home, err := stateHome()
			if err != nil {
				return err
			}

			cfg.RLock()
			browserCfg := cfg.Harness.Browser
			cfg.RUnlock()

			userID := "default"
			if len(args) == 2 {
				userID = args[1]
			}

			exec := browser.New(repo, browserCfg, home.BrowserAuditDir())
			result, err := exec.Replay(context.Background(), args[0], userID)
			if err != nil {
				fmt.Println("No replayable browser trace found for run", args[0])
				return nil
			}
			fmt.Println(result)
			return nil
		},
	}
}
