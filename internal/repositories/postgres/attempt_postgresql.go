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

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	db := a.getDB(tx)
	// Cache active attempts for performance
	cacheKey := fmt.Sprintf("id:%d", id)
	var attempt models.TestAttempt

	err := a.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &attempt, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.TestAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get attempt: %w", err)
		}
		return &dbAttempt, nil
	})

	return &attempt, err
}

func (a *AttemptPostgreSQL) GetByIDWithResponses(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	db := a.getDB(tx)
	var attempt models.TestAttempt
	if err := db.WithContext(ctx).
		Preload("Test").
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_question_id ASC")
		}).
		Preload("Responses.TestQuestion").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.CandidateID)
	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.TestAttempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.TestAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Test").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByCandidate(ctx context.Context, tx *gorm.DB, candidateID string, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	filters.CandidateID = &candidateID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetActiveByCandidateAndTest(ctx context.Context, tx *gorm.DB, candidateID string, testID uint) (*models.TestAttempt, error) {
	db := a.getDB(tx)
	var attempt models.TestAttempt
	if err := db.WithContext(ctx).
		Where("candidate_id = ? AND test_id = ? AND status = ?", candidateID, testID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetExpiredInProgress(ctx context.Context, tx *gorm.DB, limit int) ([]*models.TestAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.TestAttempt
	query := db.WithContext(ctx).
		Where("status = ? AND started_at + (duration_minutes * INTERVAL '1 minute') <= NOW()", models.AttemptInProgress).
		Order("started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.AttemptStats, error) {
	db := a.getDB(tx)

	type statusRow struct {
		Status models.AttemptStatus
		Count  int
	}
	var rows []statusRow
	if err := db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Select("status, COUNT(*) as count").
		Where("test_id = ?", testID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}

	stats := &repositories.AttemptStats{
		StatusBreakdown: make(map[models.AttemptStatus]int),
	}
	for _, r := range rows {
		stats.StatusBreakdown[r.Status] = r.Count
		stats.TotalAttempts += r.Count
	}
	if stats.TotalAttempts > 0 {
		completed := stats.StatusBreakdown[models.AttemptSubmitted] + stats.StatusBreakdown[models.AttemptExpired]
		stats.CompletionRate = float64(completed) / float64(stats.TotalAttempts)
	}

	var avg float64
	if err := db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("test_id = ? AND is_graded", testID).
		Select("COALESCE(AVG(total_score), 0)").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AverageScore = avg

	return stats, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

type ResponsePostgreSQL struct {
	db *gorm.DB
}

func NewResponsePostgreSQL(db *gorm.DB) repositories.ResponseRepository {
	return &ResponsePostgreSQL{db: db}
}

func (r *ResponsePostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error {
	if len(responses) == 0 {
		return nil
	}
	db := r.getDB(tx)
	return db.WithContext(ctx).CreateInBatches(responses, 200).Error
}

func (r *ResponsePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestResponse, error) {
	db := r.getDB(tx)
	var response models.TestResponse
	if err := db.WithContext(ctx).First(&response, id).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *ResponsePostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.TestResponse, error) {
	db := r.getDB(tx)
	var responses []*models.TestResponse
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("test_question_id ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, testQuestionID uint) (*models.TestResponse, error) {
	db := r.getDB(tx)
	var response models.TestResponse
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND test_question_id = ?", attemptID, testQuestionID).
		First(&response).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *ResponsePostgreSQL) Update(ctx context.Context, tx *gorm.DB, response *models.TestResponse) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Save(response).Error
}

func (r *ResponsePostgreSQL) UpdateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error {
	db := r.getDB(tx)
	for _, response := range responses {
		if err := db.WithContext(ctx).Save(response).Error; err != nil {
			return fmt.Errorf("failed to update response %d: %w", response.ID, err)
		}
	}
	return nil
}

func (r *ResponsePostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*repositories.ResponseStats, error) {
	db := r.getDB(tx)

	type row struct {
		Total     int
		Answered  int
		Flagged   int
		Pending   int
		TimeSpent int
	}
	var res row
	err := db.WithContext(ctx).
		Model(&models.TestResponse{}).
		Select(`COUNT(*) as total,
			COUNT(*) FILTER (WHERE (selected_options IS NOT NULL AND jsonb_array_length(selected_options) > 0) OR response_text != '') as answered,
			COUNT(*) FILTER (WHERE flagged_for_review) as flagged,
			COUNT(*) FILTER (WHERE outcome = ?) as pending,
			COALESCE(SUM(time_spent_seconds), 0) as time_spent`, models.OutcomePendingManual).
		Where("attempt_id = ?", attemptID).
		Scan(&res).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get response stats: %w", err)
	}

	return &repositories.ResponseStats{
		TotalResponses: res.Total,
		AnsweredCount:  res.Answered,
		FlaggedCount:   res.Flagged,
		PendingManual:  res.Pending,
		TotalTimeSpent: res.TimeSpent,
	}, nil
}

func (r *ResponsePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
