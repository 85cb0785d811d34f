package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/cache"
	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TestRepository {
	return &TestPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.getDB(tx)
	return db.WithContext(ctx).Create(test).Error
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	db := t.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var test models.Test

	err := t.cacheManager.Test.CacheOrExecute(ctx, cacheKey, &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		if err := db.WithContext(ctx).First(&dbTest, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get test: %w", err)
		}
		return &dbTest, nil
	})

	return &test, err
}

func (t *TestPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	db := t.getDB(tx)
	var test models.Test
	if err := db.WithContext(ctx).
		Preload("Pattern").
		Preload("Pattern.Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_order ASC")
		}).
		Preload("Questions.Question").
		First(&test, id).Error; err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Save(test).Error; err != nil {
		return err
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, test.ID)
	return nil
}

func (t *TestPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Test{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	db := t.getDB(tx)
	var tests []*models.Test
	var total int64

	query := db.WithContext(ctx).Model(&models.Test{})
	query = t.helpers.ApplyTestFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Pattern").Find(&tests).Error; err != nil {
		return nil, 0, err
	}

	return tests, total, nil
}

func (t *TestPostgreSQL) GetByPattern(ctx context.Context, tx *gorm.DB, patternID uint) ([]*models.Test, error) {
	db := t.getDB(tx)
	var tests []*models.Test
	if err := db.WithContext(ctx).
		Where("pattern_id = ?", patternID).
		Order("created_at DESC").
		Find(&tests).Error; err != nil {
		return nil, err
	}
	return tests, nil
}

func (t *TestPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TestPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.TestStats, error) {
	db := t.getDB(tx)
	stats := &repositories.TestStats{}

	type row struct {
		Total     int
		Completed int
		Expired   int
		AvgScore  float64
		MaxScore  float64
		AvgTime   float64
	}
	var r row
	err := db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Select(`COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = ?) as completed,
			COUNT(*) FILTER (WHERE status = ?) as expired,
			COALESCE(AVG(total_score) FILTER (WHERE is_graded), 0) as avg_score,
			COALESCE(MAX(total_score) FILTER (WHERE is_graded), 0) as max_score,
			COALESCE(AVG(EXTRACT(EPOCH FROM (submitted_at - started_at))) FILTER (WHERE submitted_at IS NOT NULL), 0) as avg_time`,
			models.AttemptSubmitted, models.AttemptExpired).
		Where("test_id = ?", id).
		Scan(&r).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get test stats: %w", err)
	}

	stats.TotalAttempts = r.Total
	stats.CompletedAttempts = r.Completed
	stats.ExpiredAttempts = r.Expired
	stats.AverageScore = r.AvgScore
	stats.HighestScore = r.MaxScore
	stats.AverageTimeSpent = int(r.AvgTime)
	return stats, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (t *TestPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}

type TestQuestionPostgreSQL struct {
	db *gorm.DB
}

func NewTestQuestionPostgreSQL(db *gorm.DB) repositories.TestQuestionRepository {
	return &TestQuestionPostgreSQL{db: db}
}

func (tq *TestQuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.TestQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	db := tq.getDB(tx)
	return db.WithContext(ctx).CreateInBatches(questions, 100).Error
}

func (tq *TestQuestionPostgreSQL) GetByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.TestQuestion, error) {
	db := tq.getDB(tx)
	var questions []*models.TestQuestion
	if err := db.WithContext(ctx).
		Where("test_id = ?", testID).
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (tq *TestQuestionPostgreSQL) GetByTestOrdered(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.TestQuestion, error) {
	db := tq.getDB(tx)
	var questions []*models.TestQuestion
	if err := db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("sequence_order ASC").
		Preload("Question").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (tq *TestQuestionPostgreSQL) DeleteByTest(ctx context.Context, tx *gorm.DB, testID uint) error {
	db := tq.getDB(tx)
	return db.WithContext(ctx).
		Where("test_id = ?", testID).
		Delete(&models.TestQuestion{}).Error
}

func (tq *TestQuestionPostgreSQL) CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error) {
	db := tq.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.TestQuestion{}).
		Where("test_id = ?", testID).
		Count(&count).Error
	return count, err
}

func (tq *TestQuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return tq.db
}
