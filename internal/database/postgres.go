package database

import (
	"fmt"

	"github.com/Soumit27/eazzgrievnce/internal/config"
	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	logger.Log.Info("Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	logger.Log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Worker{},
		&models.Complaint{},
		&models.Assignment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// The SLA scan joins on the current assignment and filters by deadline.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_complaint_assignments_open_deadline
		ON complaint_assignments (sla_deadline)
		WHERE status IN ('assigned', 'assigned_to_contractor') AND sla_deadline IS NOT NULL`).Error; err != nil {
		return fmt.Errorf("failed to create deadline index: %w", err)
	}

	logger.Log.Info("Database migrations completed")
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
