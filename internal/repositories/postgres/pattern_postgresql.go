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

type PatternPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewPatternPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.PatternRepository {
	return &PatternPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (p *PatternPostgreSQL) Create(ctx context.Context, tx *gorm.DB, pattern *models.TestPattern) error {
	db := p.getDB(tx)
	return db.WithContext(ctx).Create(pattern).Error
}

func (p *PatternPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestPattern, error) {
	db := p.getDB(tx)
	var pattern models.TestPattern
	if err := db.WithContext(ctx).First(&pattern, id).Error; err != nil {
		return nil, err
	}
	return &pattern, nil
}

func (p *PatternPostgreSQL) GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.TestPattern, error) {
	db := p.getDB(tx)
	// Patterns are read on every attempt start; cache the full shape
	cacheKey := fmt.Sprintf("id:%d", id)
	var pattern models.TestPattern

	err := p.cacheManager.Pattern.CacheOrExecute(ctx, cacheKey, &pattern, cache.PatternCacheConfig.TTL, func() (interface{}, error) {
		var dbPattern models.TestPattern
		if err := db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC")
			}).
			First(&dbPattern, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get pattern: %w", err)
		}
		return &dbPattern, nil
	})

	return &pattern, err
}

func (p *PatternPostgreSQL) Update(ctx context.Context, tx *gorm.DB, pattern *models.TestPattern) error {
	db := p.getDB(tx)
	if err := db.WithContext(ctx).Save(pattern).Error; err != nil {
		return err
	}
	cache.InvalidatePatternCache(ctx, p.cacheManager, pattern.ID, pattern.CreatedBy)
	return nil
}

func (p *PatternPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := p.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.TestPattern{}, id).Error; err != nil {
		return err
	}
	cache.InvalidatePatternCache(ctx, p.cacheManager, id, "")
	return nil
}

func (p *PatternPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.PatternFilters) ([]*models.TestPattern, int64, error) {
	db := p.getDB(tx)
	var patterns []*models.TestPattern
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.TestPattern{})
	query = p.helpers.ApplyPatternFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = p.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Sections", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Find(&patterns).Error; err != nil {
		return nil, 0, err
	}

	return patterns, total, nil
}

func (p *PatternPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.PatternFilters) ([]*models.TestPattern, int64, error) {
	filters.CreatedBy = &creatorID
	return p.List(ctx, tx, filters)
}

func (p *PatternPostgreSQL) ExistsByName(ctx context.Context, tx *gorm.DB, name string, creatorID string, excludeID *uint) (bool, error) {
	db := p.getDB(tx)
	var count int64
	query := db.WithContext(ctx).
		Model(&models.TestPattern{}).
		Where("name = ? AND created_by = ?", name, creatorID)
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PatternPostgreSQL) IsUsedByTests(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := p.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Test{}).
		Where("pattern_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (p *PatternPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

type SectionPostgreSQL struct {
	db *gorm.DB
}

func NewSectionPostgreSQL(db *gorm.DB) repositories.SectionRepository {
	return &SectionPostgreSQL{db: db}
}

func (s *SectionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, section *models.Section) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(section).Error
}

func (s *SectionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, sections []*models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(sections).Error
}

func (s *SectionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Section, error) {
	db := s.getDB(tx)
	var section models.Section
	if err := db.WithContext(ctx).First(&section, id).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *SectionPostgreSQL) GetByPattern(ctx context.Context, tx *gorm.DB, patternID uint) ([]*models.Section, error) {
	db := s.getDB(tx)
	var sections []*models.Section
	if err := db.WithContext(ctx).
		Where("pattern_id = ?", patternID).
		Order("position ASC").
		Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *SectionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, section *models.Section) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(section).Error
}

func (s *SectionPostgreSQL) UpdateBatch(ctx context.Context, tx *gorm.DB, sections []*models.Section) error {
	db := s.getDB(tx)
	for _, section := range sections {
		if err := db.WithContext(ctx).Save(section).Error; err != nil {
			return fmt.Errorf("failed to update section %d: %w", section.ID, err)
		}
	}
	return nil
}

func (s *SectionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Section{}, id).Error
}

func (s *SectionPostgreSQL) CountByPattern(ctx context.Context, tx *gorm.DB, patternID uint) (int64, error) {
	db := s.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Section{}).
		Where("pattern_id = ?", patternID).
		Count(&count).Error
	return count, err
}

func (s *SectionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
