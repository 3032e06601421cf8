package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tinyagi/tinyagi/internal/store"
)

func permissionCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "permission",
		Short: "Inspect and manage Permission rows",
	}
	root.AddCommand(permissionListCmd())
	root.AddCommand(permissionGrantCmd())
	root.AddCommand(permissionRevokeCmd())
	return root
}

func permissionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [userId]",
		Short: "List permission rows, optionally filtered to one user",
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
			perms, err := repo.ListPermissions(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("list permissions: %w", err)
			}
			for _, p := range perms {
				fmt.Printf("%s  user=%-12s  %s.%s  status=%-8s  resource=%s\n", p.PermissionID, p.UserID, p.Subject, p.Action, p.Status, p.Resource)
			}
			return nil
		},
	}
}

func permissionGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <userId> <subject> <action> [resource]",
		Short: "Grant an active permission",
		Args:  cobra.RangeArgs(3, 4),
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

			resource := ""
			if len(args) == 4 {
				resource = args[3]
			}
			now := time.Now()
			if err := repo.GrantPermission(context.Background(), &store.Permission{
				PermissionID: uuid.NewString(),
				UserID:       args[0],
				Subject:      args[1],
				Action:       args[2],
				Resource:     resource,
				Status:       store.PermissionActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			}); err != nil {
				return fmt.Errorf("grant permission: %w", err)
			}
			fmt.Printf("granted %s.%s to %s\n", args[1], args[2], args[0])
			return nil
		},
	}
}

func permissionRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <permissionId>",
		Short: "Revoke a permission by id",
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

			if err := repo.RevokePermission(context.Background(), args[0]); err != nil {
				return fmt.Errorf("revoke permission: %w", err)
			}
			fmt.Printf("revoked %s\n", args[0])
			return nil
		},
	}
}
