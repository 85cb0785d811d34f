package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// PatternRepository interface for test pattern operations
type PatternRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, pattern *models.TestPattern) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestPattern, error)
	GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.TestPattern, error)
	Update(ctx context.Context, tx *gorm.DB, pattern *models.TestPattern) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters PatternFilters) ([]*models.TestPattern, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters PatternFilters) ([]*models.TestPattern, int64, error)

	// Validation and checks
	ExistsByName(ctx context.Context, tx *gorm.DB, name string, creatorID string, excludeID *uint) (bool, error)
	IsUsedByTests(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// SectionRepository interface for pattern section operations
type SectionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, section *models.Section) error
	CreateBatch(ctx context.Context, tx *gorm.DB, sections []*models.Section) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Section, error)
	GetByPattern(ctx context.Context, tx *gorm.DB, patternID uint) ([]*models.Section, error)
	Update(ctx context.Context, tx *gorm.DB, section *models.Section) error
	UpdateBatch(ctx context.Context, tx *gorm.DB, sections []*models.Section) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	CountByPattern(ctx context.Context, tx *gorm.DB, patternID uint) (int64, error)
}
