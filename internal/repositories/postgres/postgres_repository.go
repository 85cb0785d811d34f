package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/cache"
	"github.com/weberitsol/assessment-engine/internal/repositories"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	// Repository instances
	pattern      repositories.PatternRepository
	section      repositories.SectionRepository
	question     repositories.QuestionRepository
	test         repositories.TestRepository
	testQuestion repositories.TestQuestionRepository
	attempt      repositories.AttemptRepository
	response     repositories.ResponseRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

// NewPostgreSQLRepository creates a new repository manager with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}
	repo.initSubRepositories(config.DB)
	return repo
}

func (r *PostgreSQLRepository) initSubRepositories(db *gorm.DB) {
	r.pattern = NewPatternPostgreSQL(db, r.redisClient)
	r.section = NewSectionPostgreSQL(db)
	r.question = NewQuestionPostgreSQL(db, r.redisClient)
	r.test = NewTestPostgreSQL(db, r.redisClient)
	r.testQuestion = NewTestQuestionPostgreSQL(db)
	r.attempt = NewAttemptPostgreSQL(db, r.redisClient)
	r.response = NewResponsePostgreSQL(db)
}

// Pattern returns the pattern repository
func (r *PostgreSQLRepository) Pattern() repositories.PatternRepository {
	return r.pattern
}

// Section returns the section repository
func (r *PostgreSQLRepository) Section() repositories.SectionRepository {
	return r.section
}

// Question returns the question repository
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository {
	return r.question
}

// Test returns the test repository
func (r *PostgreSQLRepository) Test() repositories.TestRepository {
	return r.test
}

// TestQuestion returns the test-question repository
func (r *PostgreSQLRepository) TestQuestion() repositories.TestQuestionRepository {
	return r.testQuestion
}

// Attempt returns the attempt repository
func (r *PostgreSQLRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

// Response returns the response repository
func (r *PostgreSQLRepository) Response() repositories.ResponseRepository {
	return r.response
}

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
		}
		txRepo.initSubRepositories(tx)
		return fn(txRepo)
	})
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// PostgreSQLRepositoryManager manages repository lifecycle
type PostgreSQLRepositoryManager struct {
	config     RepositoryConfig
	repository repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &PostgreSQLRepositoryManager{config: config}
}

// Initialize initializes all repositories
func (m *PostgreSQLRepositoryManager) Initialize() error {
	if m.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}
	m.repository = NewPostgreSQLRepository(m.config)
	return nil
}

// GetRepository returns the repository instance
func (m *PostgreSQLRepositoryManager) GetRepository() repositories.Repository {
	return m.repository
}

// HealthCheck verifies repository health
func (m *PostgreSQLRepositoryManager) HealthCheck(ctx context.Context) error {
	if m.repository == nil {
		return fmt.Errorf("repository not initialized")
	}
	return m.repository.Ping(ctx)
}

// Shutdown gracefully closes repository connections
func (m *PostgreSQLRepositoryManager) Shutdown(ctx context.Context) error {
	if m.repository == nil {
		return nil
	}
	return m.repository.Close()
}
