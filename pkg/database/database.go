package database

import (
	"fmt"
	"log"
	"time"

	"timetracker-service/internal/model"
	"timetracker-service/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DBConfig holds the database configuration
type DBConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// InitDB initializes the database from the application configuration
func InitDB(cfg *config.Config) error {
	return Initialize(DBConfig{
		DSN:             cfg.DB.GetDSN(),
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	})
}

// Initialize initializes the database connection with the provided configuration
func Initialize(config DBConfig) error {
	var err error

	// Set default log level if not specified
	logLevel := config.LogLevel
	if logLevel == 0 {
		logLevel = logger.Info
	}

	// Connect to the database with DisableAutoPrepare option to prevent "prepared statement already exists" errors
	pgConfig := postgres.Config{
		DSN:                  config.DSN,
		PreferSimpleProtocol: true, // Disables implicit prepared statement usage
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Surface unique constraint violations as gorm.ErrDuplicatedKey so
		// handlers can map them to 409 responses
		TranslateError: true,
	})

	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
		return err
	}

	// Configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
		return err
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}

	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
		return err
	}

	fmt.Println("Database connected and migrated successfully")
	return nil
}

// Migrate creates or updates the table structure based on our models
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Tenant{},
		&model.User{},
		&model.Client{},
		&model.Project{},
		&model.Technology{},
		&model.ProjectTechnology{},
		&model.TimeEntry{},
		&model.TimeEntryTechnology{},
		&model.Invitation{},
		&model.PasswordResetToken{},
	)
	if err != nil {
		return err
	}

	// Partial unique index: at most one running timer per user per tenant.
	// Enforced at the database level so concurrent starts cannot both succeed.
	// Soft-deleted rows are excluded so they never hold the running slot.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_one_running
		ON time_entries (tenant_id, user_id) WHERE is_running AND deleted_at IS NULL`).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
