package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/file"
	"live-quiz-service/internal/infra/postgres"
)

// NewImportCmd loads quiz definitions from a YAML file into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "import <quizzes.yaml>",
		Short: "Import quiz definitions into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			quizzes, err := file.Read(args[0])
			if err != nil {
				return err
			}
			if migrateFirst {
				if err := runMigrations(cmd.Context(), cfg, logger); err != nil {
					return err
				}
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			if err := postgres.NewQuizWriter(db).Upsert(cmd.Context(), quizzes...); err != nil {
				return err
			}
			logger.Info("quizzes imported", zap.Int("count", len(quizzes)), zap.String("file", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations before importing")
	return cmd
}
