package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"studyhub-quiz-service/internal/config"
)

// NewReconcileCmd merges recorded sessions whose progress merge failed.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge recorded but unmerged quiz sessions into progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(users) == 0 {
				return fmt.Errorf("at least one --user is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, userID := range users {
				merged, err := svc.quizzes.Reconcile(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", userID, err)
				}
				log.Printf("reconciled %d sessions for %s", merged, userID)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&users, "user", nil, "user id to reconcile (repeatable)")
	return cmd
}
