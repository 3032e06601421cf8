package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/store"
)

func toolsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and manage ToolRegistry rows",
	}
	root.AddCommand(toolsListCmd())
	root.AddCommand(toolsRegisterCmd())
	root.AddCommand(toolsApproveCmd())
	root.AddCommand(toolsBlockCmd())
	return root
}

func toolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered tool",
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

			tools, err := repo.ListTools(context.Background())
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			for _, t := range tools {
				fmt.Printf("%-10s  %-8s  trust=%-10s  status=%s\n", t.Name, t.ToolID, t.TrustClass, t.Status)
			}
			return nil
		},
	}
}

func toolsRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <source>",
		Short: "Manually register a tool",
		Args:  cobra.ExactArgs(2),
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

			tool, err := repo.GetOrRegisterTool(context.Background(), args[0], args[1], store.TrustUnknown)
			if err != nil {
				return fmt.Errorf("register tool: %w", err)
			}
			fmt.Printf("registered %s (%s) trust=%s status=%s\n", tool.Name, tool.ToolID, tool.TrustClass, tool.Status)
			return nil
		},
	}
}

func toolsApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <name> [userId]",
		Short: "Approve a registered tool",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setToolStatus(args[0], store.ToolApproved)
		},
	}
}

func toolsBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <name> [userId]",
		Short: "Block a registered tool",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setToolStatus(args[0], store.ToolBlocked)
		},
	}
}

// setToolStatus approves/blocks a tool by name. The ToolRegistry (spec
// §3) tracks approval status globally rather than per-user, so an
// optional userId argument is accepted for CLI-surface parity but does
// not narrow which rows are affected.
func setToolStatus(name string, status store.ToolStatus) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	tool, err := repo.GetOrRegisterTool(ctx, name, "cli", store.TrustUnknown)
	if err != nil {
		return fmt.Errorf("lookup tool %s: %w", name, err)
	}
	if err := repo.SetToolStatus(ctx, tool.ToolID, status); err != nil {
		return fmt.Errorf("set tool status: %w", err)
	}
	fmt.Printf("%s: %s -> %s\n", name, tool.Status, status)
	return nil
}
