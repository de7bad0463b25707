// database/migrate.go - Database Migration Runner
package database

import (
	"fmt"

	"gorm.io/gorm"

	"quizhub/logger"
	"quizhub/models"
)

// RunMigrations creates or updates every table the application uses.
func RunMigrations(db *gorm.DB, log *logger.Logger) error {
	log.Info("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Quiz{},
		&models.Completion{},
		&models.Achievement{},
		&models.UserAchievement{},
	); err != nil {
		return fmt.Errorf("failed to run core migrations: %w", err)
	}

	if err := createCoreIndexes(db); err != nil {
		return err
	}

	log.Info("✅ All migrations completed successfully")
	return nil
}

// createCoreIndexes creates indexes the struct tags cannot express. The unlock uniqueness index
// is repeated here so databases migrated before the tag existed also get it.
func createCoreIndexes(db *gorm.DB) error {
	statements := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_user_achievements_unique ON user_achievements(user_id, achievement_id)",
		"CREATE INDEX IF NOT EXISTS idx_completions_user_slug ON completions(user_id, quiz_slug)",
		"CREATE INDEX IF NOT EXISTS idx_users_tier ON users(tier_flag, subscription_status)",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
