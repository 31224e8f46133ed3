package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db           *gorm.DB
	sessionRepo  persistence.SessionRepository
	metricsRepo  persistence.MetricsRepository
	feedbackRepo persistence.FeedbackRepository
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

// Connect establishes database connection
func (dm *DatabaseManager) Connect(ctx context.Context, dsn string) error {
	logrus.Info("Connecting to PostgreSQL database...")

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db

	dm.sessionRepo = NewSessionRepository(db)
	dm.metricsRepo = NewMetricsRepository(db)
	dm.feedbackRepo = NewFeedbackRepository(db)

	logrus.Info("Successfully connected to PostgreSQL database")
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate runs database migrations
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.Exec("CREATE EXTENSION IF NOT EXISTS \"pgcrypto\"").Error; err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}
	if err := dm.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create pgvector extension: %w", err)
	}

	// Tables are created manually, AutoMigrate mishandles vector columns
	if err := dm.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := dm.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func (dm *DatabaseManager) createTables() error {
	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			request_data JSONB NOT NULL,
			response_text TEXT,
			provider VARCHAR(50) NOT NULL,
			model VARCHAR(255) NOT NULL,
			is_streaming BOOLEAN DEFAULT false,
			used_fallback BOOLEAN DEFAULT false,
			status VARCHAR(50) DEFAULT 'pending' NOT NULL,
			embedding VECTOR(384),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_metrics (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			delta_count INTEGER DEFAULT 0,
			char_count INTEGER DEFAULT 0,
			latency_ms BIGINT DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create session_metrics table: %w", err)
	}

	if err := dm.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_feedback (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			feedback_text TEXT,
			score DECIMAL(3,2) CHECK (score >= 0 AND score <= 1),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create session_feedback table: %w", err)
	}

	return nil
}

func (dm *DatabaseManager) createIndexes() error {
	indexes := []string{
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_sessions_provider_created ON sessions (provider, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_sessions_model_created ON sessions (model, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_sessions_status_created ON sessions (status, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_session_metrics_created ON session_metrics (created_at DESC)",
		"CREATE UNIQUE INDEX CONCURRENTLY IF NOT EXISTS ux_session_metrics_session_id ON session_metrics (session_id)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_session_feedback_session_created ON session_feedback (session_id, created_at DESC)",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_session_feedback_score ON session_feedback (score DESC)",
		// HNSW index for embedding similarity search
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_sessions_embedding_cosine ON sessions USING hnsw (embedding vector_cosine_ops) WHERE embedding IS NOT NULL",
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_sessions_embedding_created ON sessions (created_at DESC) WHERE embedding IS NOT NULL",
	}

	for _, index := range indexes {
		if err := dm.db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
			// Continue with other indexes even if one fails
		}
	}

	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetRepositories returns initialized repositories
func (dm *DatabaseManager) GetRepositories() (persistence.SessionRepository, persistence.MetricsRepository, persistence.FeedbackRepository) {
	return dm.sessionRepo, dm.metricsRepo, dm.feedbackRepo
}

// GetDB returns the underlying GORM database instance
func (dm *DatabaseManager) GetDB() *gorm.DB {
	return dm.db
}
