package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/memory"
)

func memoryCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage MemoryRecord rows",
	}
	root.AddCommand(memoryShowCmd())
	root.AddCommand(memoryForgetCmd())
	root.AddCommand(memorySummarizeCmd())
	return root
}

func memoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [userId] [topic]",
		Short: "Show a user's memory records, optionally filtered to a topic",
		Args:  cobra.MaximumNArgs(2),
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

			userID := "default"
			if len(args) > 0 {
				userID = args[0]
			}
			var topic string
			if len(args) > 1 {
				topic = strings.ToLower(args[1])
			}

			records, err := repo.ListMemory(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("list memory: %w", err)
			}
			for _, rec := range records {
				if topic != "" && !strings.Contains(strings.ToLower(rec.Key), topic) && !strings.Contains(strings.ToLower(rec.Value), topic) {
					continue
				}
				fmt.Printf("[%s] %-20s %.2f  %s\n", rec.Category, rec.Key, rec.Confidence, rec.Value)
			}
			return nil
		},
	}
}

func memoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <userId> <topic>",
		Short: "Delete every memory record for a user matching a topic",
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

			n, err := repo.ForgetMemory(context.Background(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("forget memory: %w", err)
			}
			fmt.Printf("forgot %d record(s) for %s matching %q\n", n, args[0], args[1])
			return nil
		},
	}
}

func memorySummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [YYYY-MM-DD]",
		Short: "Build (or rebuild) the daily memory summary for a UTC date",
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

			home, err := stateHome()
			if err != nil {
				return err
			}

			date := time.Now().UTC()
			if len(args) == 1 {
				d, err := time.Parse("2006-01-02", args[0])
				if err != nil {
					return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", args[0], err)
				}
				date = d
			}

			memSvc := memory.New(repo, home.MemoryRawDir())
			summary, err := memSvc.Summarize(context.Background(), date, home.MemoryDailyDir(), "", repo)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			fmt.Print(summary)
			return nil
		},
	}
}
