package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

type patternService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewPatternService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) PatternService {
	return &patternService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *patternService) Create(ctx context.Context, req *CreatePatternRequest, creatorID string) (*PatternResponse, error) {
	s.logger.Info("Creating pattern", "creator_id", creatorID, "name", req.Name)

	if errs := s.validator.ValidatePatternCreate(req); len(errs) > 0 {
		return nil, errs
	}

	exists, err := s.repo.Pattern().ExistsByName(ctx, nil, strings.TrimSpace(req.Name), creatorID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check pattern name: %w", err)
	}
	if exists {
		return nil, NewValidationError("name", "pattern name already exists", req.Name)
	}

	pattern := &models.TestPattern{
		Name: strings.TrimSpace(req.Name),
		ScoringRules: models.ScoringRules{
			NegativeMarkingEnabled: req.NegativeMarkingEnabled,
		},
		CreatedBy: creatorID,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Pattern().Create(ctx, nil, pattern); err != nil {
			return fmt.Errorf("failed to create pattern: %w", err)
		}

		sections := make([]*models.Section, 0, len(req.Sections))
		for i, sr := range req.Sections {
			section := buildSection(pattern.ID, i+1, &sr)
			sections = append(sections, section)
		}
		deriveRanges(sections)

		if err := txRepo.Section().CreateBatch(ctx, nil, sections); err != nil {
			return fmt.Errorf("failed to create sections: %w", err)
		}

		pattern.Sections = dereferenceSections(sections)
		pattern.Recompute()
		if err := txRepo.Pattern().Update(ctx, nil, pattern); err != nil {
			return fmt.Errorf("failed to store pattern totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Pattern created successfully",
		"pattern_id", pattern.ID,
		"sections", len(pattern.Sections),
		"total_questions", pattern.TotalQuestions)

	return s.GetByID(ctx, pattern.ID)
}

func (s *patternService) GetByID(ctx context.Context, id uint) (*PatternResponse, error) {
	pattern, err := s.repo.Pattern().GetByIDWithSections(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPatternNotFound
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	return s.buildPatternResponse(ctx, pattern)
}

func (s *patternService) Update(ctx context.Context, id uint, req *UpdatePatternRequest, userID string) (*PatternResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	pattern, err := s.getOwnedPattern(ctx, id, userID, "update")
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		exists, err := s.repo.Pattern().ExistsByName(ctx, nil, name, userID, &id)
		if err != nil {
			return nil, fmt.Errorf("failed to check pattern name: %w", err)
		}
		if exists {
			return nil, NewValidationError("name", "pattern name already exists", name)
		}
		pattern.Name = name
	}
	if req.NegativeMarkingEnabled != nil {
		pattern.ScoringRules.NegativeMarkingEnabled = *req.NegativeMarkingEnabled
	}

	if err := s.repo.Pattern().Update(ctx, nil, pattern); err != nil {
		return nil, fmt.Errorf("failed to update pattern: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *patternService) Delete(ctx context.Context, id uint, userID string) error {
	pattern, err := s.getOwnedPattern(ctx, id, userID, "delete")
	if err != nil {
		return err
	}

	used, err := s.repo.Pattern().IsUsedByTests(ctx, nil, pattern.ID)
	if err != nil {
		return fmt.Errorf("failed to check pattern usage: %w", err)
	}
	if used {
		return ErrPatternInUse
	}

	if err := s.repo.Pattern().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}

	s.logger.Info("Pattern deleted", "pattern_id", id, "user_id", userID)
	return nil
}

func (s *patternService) List(ctx context.Context, filters repositories.PatternFilters) (*PatternListResponse, error) {
	patterns, total, err := s.repo.Pattern().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	responses := make([]*PatternResponse, 0, len(patterns))
	for _, pattern := range patterns {
		resp, err := s.buildPatternResponse(ctx, pattern)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	page, size := pageFromFilters(filters.Limit, filters.Offset)
	return &PatternListResponse{
		Patterns: responses,
		Total:    total,
		Page:     page,
		Size:     size,
	}, nil
}

// ===== SECTION OPERATIONS =====

// AddSection appends a section to the end of the pattern and re-derives
// every section's question range from section order.
func (s *patternService) AddSection(ctx context.Context, patternID uint, req *SectionCreateRequest, userID string) (*PatternResponse, error) {
	pattern, err := s.getOwnedPattern(ctx, patternID, userID, "add_section")
	if err != nil {
		return nil, err
	}

	if errs := s.validator.ValidateSectionCreate(req, pattern.TotalQuestions); len(errs) > 0 {
		return nil, errs
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		sections, err := txRepo.Section().GetByPattern(ctx, nil, patternID)
		if err != nil {
			return fmt.Errorf("failed to load sections: %w", err)
		}

		section := buildSection(patternID, len(sections)+1, req)
		if err := txRepo.Section().Create(ctx, nil, section); err != nil {
			return fmt.Errorf("failed to create section: %w", err)
		}

		sections = append(sections, section)
		deriveRanges(sections)
		if err := txRepo.Section().UpdateBatch(ctx, nil, sections); err != nil {
			return fmt.Errorf("failed to store section ranges: %w", err)
		}

		return s.storeTotals(ctx, txRepo, pattern, sections)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Section added", "pattern_id", patternID, "name", req.Name)
	return s.GetByID(ctx, patternID)
}

// UpdateSection edits one section's fields in place. Only the edited
// section's range end is recomputed from its own start; later sections
// keep their stored ranges even when the question count changed.
func (s *patternService) UpdateSection(ctx context.Context, patternID, sectionID uint, req *SectionUpdateRequest, userID string) (*PatternResponse, error) {
	pattern, err := s.getOwnedPattern(ctx, patternID, userID, "update_section")
	if err != nil {
		return nil, err
	}

	if errs := s.validator.ValidateSectionUpdate(req); len(errs) > 0 {
		return nil, errs
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		section, err := txRepo.Section().GetByID(ctx, nil, sectionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSectionNotFound
			}
			return fmt.Errorf("failed to get section: %w", err)
		}
		if section.PatternID != patternID {
			return ErrSectionNotFound
		}

		applySectionUpdate(section, req)
		section.QuestionRange.End = section.QuestionRange.Start + section.QuestionCount - 1

		if err := txRepo.Section().Update(ctx, nil, section); err != nil {
			return fmt.Errorf("failed to update section: %w", err)
		}

		sections, err := txRepo.Section().GetByPattern(ctx, nil, patternID)
		if err != nil {
			return fmt.Errorf("failed to load sections: %w", err)
		}
		return s.storeTotals(ctx, txRepo, pattern, sections)
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, patternID)
}

// RemoveSection deletes a section, closes the position gap and re-derives
// every remaining range. The last remaining section cannot be removed.
func (s *patternService) RemoveSection(ctx context.Context, patternID, sectionID uint, userID string) (*PatternResponse, error) {
	pattern, err := s.getOwnedPattern(ctx, patternID, userID, "remove_section")
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		count, err := txRepo.Section().CountByPattern(ctx, nil, patternID)
		if err != nil {
			return fmt.Errorf("failed to count sections: %w", err)
		}
		if count <= 1 {
			return ErrLastSection
		}

		section, err := txRepo.Section().GetByID(ctx, nil, sectionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSectionNotFound
			}
			return fmt.Errorf("failed to get section: %w", err)
		}
		if section.PatternID != patternID {
			return ErrSectionNotFound
		}

		if err := txRepo.Section().Delete(ctx, nil, sectionID); err != nil {
			return fmt.Errorf("failed to delete section: %w", err)
		}

		sections, err := txRepo.Section().GetByPattern(ctx, nil, patternID)
		if err != nil {
			return fmt.Errorf("failed to load sections: %w", err)
		}
		for i, sec := range sections {
			sec.Position = i + 1
		}
		deriveRanges(sections)
		if err := txRepo.Section().UpdateBatch(ctx, nil, sections); err != nil {
			return fmt.Errorf("failed to store section ranges: %w", err)
		}

		return s.storeTotals(ctx, txRepo, pattern, sections)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Section removed", "pattern_id", patternID, "section_id", sectionID)
	return s.GetByID(ctx, patternID)
}
