package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print named counters, including the derived response loss rate",
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

			counters, err := repo.ListMetrics(context.Background())
			if err != nil {
				return fmt.Errorf("list metrics: %w", err)
			}

			names := make([]string, 0, len(counters))
			for name := range counters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-32s %.0f\n", name, counters[name])
			}

			delivered := counters["outgoing.delivered"]
			dropped := counters["outgoing.dropped"]
			if total := delivered + dropped; total > 0 {
				fmt.Printf("%-32s %.4f\n", "response_loss_rate", dropped/total)
			} else {
				fmt.Printf("%-32s %s\n", "response_loss_rate", "n/a (no outgoing deliveries recorded yet)")
			}
			return nil
		},
	}
}
