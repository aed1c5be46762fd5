package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/database"
	"github.com/jmylchreest/vidpipe/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or list database migrations",
	Long:      "Apply pending migrations (up, the default), roll back the latest one (down), or list them (status).",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	db, err := database.New(appConfig.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	switch action {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	tw := newTable(cmd.OutOrStdout(), "VERSION", "DESCRIPTION", "APPLIED")
	for _, st := range statuses {
		applied := "pending"
		if st.AppliedAt != nil {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		tw.AppendRow([]any{st.Version, st.Description, applied})
	}
	tw.Render()
	return nil
}
