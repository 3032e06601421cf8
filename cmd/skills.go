package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/skills"
)

func skillsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skills",
		Short: "Inspect and manage versioned Skill rows",
	}
	root.AddCommand(skillsListCmd())
	root.AddCommand(skillsShowCmd())
	root.AddCommand(skillsDraftCmd())
	root.AddCommand(skillsActivateCmd())
	root.AddCommand(skillsDisableCmd())
	root.AddCommand(skillsRollbackCmd())
	return root
}

func skillsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every skill",
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

			list, err := repo.ListSkills(context.Background())
			if err != nil {
				return fmt.Errorf("list skills: %w", err)
			}
			for _, s := range list {
				fmt.Printf("%s  %-30s  status=%s\n", s.SkillID, s.Name, s.Status)
			}
			return nil
		},
	}
}

func skillsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a skill and its version history",
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
			sk, err := repo.GetSkillByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get skill %s: %w", args[0], err)
			}
			if sk == nil {
				return fmt.Errorf("skill %s not found", args[0])
			}
			fmt.Printf("%s  %s  status=%s  content=%s\n", sk.SkillID, sk.Name, sk.Status, sk.ContentPath)

			versions, err := repo.ListSkillVersions(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list skill versions: %w", err)
			}
			for _, v := range versions {
				fmt.Printf("  v%d  %s  %s\n", v.Version, v.ContentPath, v.CreatedAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}
}

func skillsDraftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draft <name> <prompt>",
		Short: "Draft a new skill from a name and prompt",
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

			home, err := stateHome()
			if err != nil {
				return err
			}

			svc := skills.New(repo, home.SkillsDir())
			if err := svc.Draft(context.Background(), args[0], args[1]); err != nil {
				return fmt.Errorf("draft skill: %w", err)
			}
			fmt.Printf("drafted %s\n", args[0])
			return nil
		},
	}
}

func skillsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a drafted skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSkillStatus(args[0], true)
		},
	}
}

func skillsDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable an active skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSkillStatus(args[0], false)
		},
	}
}

func setSkillStatus(id string, activate bool) error {
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

	svc := skills.New(repo, home.SkillsDir())
	ctx := context.Background()
	if activate {
		err = svc.Activate(ctx, id)
	} else {
		err = svc.Disable(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("set skill status: %w", err)
	}
	fmt.Printf("%s updated\n", id)
	return nil
}

func skillsRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <id> [version]",
		Short: "Roll a skill's content back to an earlier version (defaults to the latest available)",
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

			version := -1
			if len(args) == 2 {
				v, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[1], err)
				}
				version = v
			}

			svc := skills.New(repo, home.SkillsDir())
			if err := svc.Rollback(context.Background(), args[0], version); err != nil {
				return fmt.Errorf("rollback skill: %w", err)
			}
			fmt.Printf("%s rolled back\n", args[0])
			return nil
		},
	}
}
