package main

import (
	"fmt"

	"devmarket/internal/config"
	"devmarket/internal/database"
	"devmarket/internal/domain"
	"devmarket/internal/repo"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		seedTitle  string
		seedBudget string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			db, err := database.NewPostgres(ctx, cfg.DB.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")

			if seedTitle == "" {
				return nil
			}
			budget, err := decimal.NewFromString(seedBudget)
			if err != nil {
				return fmt.Errorf("--seed-budget: %w", err)
			}
			project := &domain.Project{ID: uuid.New(), Title: seedTitle, Budget: budget}
			if err := repo.NewProjectRepo(db).Save(ctx, project); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded project %s (%s, budget %s)\n", project.ID, project.Title, project.Budget.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().StringVar(&seedTitle, "seed-project", "", "also insert a project with this title, for local testing")
	cmd.Flags().StringVar(&seedBudget, "seed-budget", "100.00", "budget of the seeded project")
	return cmd
}
