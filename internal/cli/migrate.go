package cli

import (
	"context"
	"fmt"

	"quiz-grading-engine/internal/config"
	pgstore "quiz-grading-engine/internal/infra/postgres"
	pgmigrations "quiz-grading-engine/internal/infra/postgres/migrations"
	"quiz-grading-engine/internal/logging"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations and optionally seeds quiz versions.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the quiz versions from quiz.file into Postgres")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	if seed {
		return seedQuizVersions(ctx, cfg, log)
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := openBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations applied")
	return nil
}

func seedQuizVersions(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Quiz.File == "" {
		return fmt.Errorf("quiz.file not configured")
	}
	versions, err := config.LoadQuizVersions(cfg.Quiz.File)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	for _, v := range versions {
		if err := loader.SaveQuizVersion(ctx, v); err != nil {
			return err
		}
	}
	log.WithField("count", len(versions)).Info("quiz versions seeded")
	return nil
}
