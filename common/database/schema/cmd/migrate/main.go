package main

import (
	"context"
	"log"

	"labjobs/common/database"
	"labjobs/common/database/schema"
	"labjobs/common/database/schema/migrations"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	dbPath := pflag.String("db", "labjobs.db", "path to the sqlite database")
	down := pflag.Bool("down", false, "roll back the most recent migration instead of applying pending ones")
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := database.New(ctx, database.Options{Path: *dbPath}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	migrator := schema.NewMigrator(db.Conn(), logger)

	if *down {
		rollbackLatest(ctx, migrator, logger)
		return
	}

	applied, err := migrator.Up(ctx, migrations.All())
	if err != nil {
		logger.Fatal("Failed to apply migrations", zap.Int("applied", applied), zap.Error(err))
	}

	logger.Info("All migrations completed successfully", zap.Int("applied", applied))
}

func rollbackLatest(ctx context.Context, migrator *schema.Migrator, logger *zap.Logger) {
	if err := migrator.CreateMigrationsTable(ctx); err != nil {
		logger.Fatal("Failed to create migrations table", zap.Error(err))
	}

	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		logger.Fatal("Failed to get applied migrations", zap.Error(err))
	}

	all := migrations.All()
	for i := len(all) - 1; i >= 0; i-- {
		migration := all[i]
		if _, ok := applied[migration.Version]; !ok {
			continue
		}

		if err := migrator.RollbackMigration(ctx, migration); err != nil {
			logger.Fatal("Failed to roll back migration",
				zap.Int("version", migration.Version),
				zap.Error(err),
			)
		}

		logger.Info("Rolled back migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description),
		)
		return
	}

	logger.Info("No applied migrations to roll back")
}
