package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func taskCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "task",
		Short: "Inspect TaskRun rows",
	}
	root.AddCommand(taskListCmd())
	root.AddCommand(taskShowCmd())
	return root
}

func taskListCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "list",
		Short: "List recent task runs",
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

			runs, err := repo.ListRecentRuns(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			for _, run := range runs {
				fmt.Printf("%s  %-18s  %-8s  %s\n", run.RunID, run.Status, run.RiskLevel, run.Objective)
			}
			return nil
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 20, "max runs to list")
	return c
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <runId>",
		Short: "Show a run's status, events, and steps",
		Args:  cobra.ExactArgs(1),
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

			ctx := context.Background()
			run, err := repo.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			fmt.Printf("run:      %s\n", run.RunID)
			fmt.Printf("status:   %s\n", run.Status)
			fmt.Printf("risk:     %s\n", run.RiskLevel)
			fmt.Printf("agent:    %s\n", run.AssignedAgent)
			fmt.Printf("loop:     %d/%d\n", run.LoopIteration, run.MaxIterations)
			fmt.Printf("outcome:  %s\n", run.VerifierOutcome)

			events, err := repo.ListEvents(ctx, run.RunID)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			fmt.Println("events:")
			for _, ev := range events {
				fmt.Printf("  [%s] %s %v\n", ev.CreatedAt.Format("15:04:05"), ev.Kind, ev.Payload)
			}

			steps, err := repo.ListSteps(ctx, run.RunID)
			if err != nil {
				return fmt.Errorf("list steps: %w", err)
			}
			fmt.Println("steps:")
			for _, st := range steps {
				fmt.Printf("  [%d] %s -> %s\n", st.Iteration, st.Kind, st.Outcome)
			}
			return nil
		},
	}
}
