package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
)

// buildSection constructs a section model from a create request. An empty
// allowed-types list is auto-corrected to the full set rather than rejected.
func buildSection(patternID uint, position int, req *SectionCreateRequest) *models.Section {
	section := &models.Section{
		PatternID:        patternID,
		Name:             req.Name,
		SubjectID:        req.SubjectID,
		Position:         position,
		QuestionCount:    req.QuestionCount,
		MarksPerQuestion: req.MarksPerQuestion,
		NegativeMarks:    req.NegativeMarks,
		Duration:         req.Duration,
		PartialMarking:   req.PartialMarking,
	}
	section.AllowedQuestionTypes = typesToJSON(normalizeQuestionTypes(req.AllowedQuestionTypes))
	return section
}

func applySectionUpdate(section *models.Section, req *SectionUpdateRequest) {
	if req.Name != nil {
		section.Name = *req.Name
	}
	if req.SubjectID != nil {
		section.SubjectID = req.SubjectID
	}
	if req.QuestionCount != nil {
		section.QuestionCount = *req.QuestionCount
	}
	if req.MarksPerQuestion != nil {
		section.MarksPerQuestion = *req.MarksPerQuestion
	}
	if req.NegativeMarks != nil {
		section.NegativeMarks = *req.NegativeMarks
	}
	if req.AllowedQuestionTypes != nil {
		section.AllowedQuestionTypes = typesToJSON(normalizeQuestionTypes(req.AllowedQuestionTypes))
	}
	if req.Duration != nil {
		section.Duration = req.Duration
	}
	if req.PartialMarking != nil {
		section.PartialMarking = *req.PartialMarking
	}
}

// deriveRanges reflows every section's question range from section order.
// Ranges are always contiguous from question 1 after add/remove.
func deriveRanges(sections []*models.Section) {
	start := 1
	for _, section := range sections {
		section.QuestionRange.Start = start
		section.QuestionRange.End = start + section.QuestionCount - 1
		start = section.QuestionRange.End + 1
	}
}

// normalizeQuestionTypes drops invalid entries and falls back to the full
// set when nothing valid remains.
func normalizeQuestionTypes(types []models.QuestionType) []models.QuestionType {
	valid := make([]models.QuestionType, 0, len(types))
	for _, t := range types {
		if t.Valid() {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return append([]models.QuestionType(nil), models.AllQuestionTypes...)
	}
	return valid
}

func typesToJSON(types []models.QuestionType) datatypes.JSON {
	data, err := json.Marshal(types)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

func typesFromJSON(data datatypes.JSON) []models.QuestionType {
	if len(data) == 0 {
		return nil
	}
	var types []models.QuestionType
	if err := json.Unmarshal(data, &types); err != nil {
		return nil
	}
	return types
}

func dereferenceSections(sections []*models.Section) []models.Section {
	out := make([]models.Section, 0, len(sections))
	for _, s := range sections {
		out = append(out, *s)
	}
	return out
}

// getOwnedPattern loads a pattern and enforces creator ownership.
func (s *patternService) getOwnedPattern(ctx context.Context, id uint, userID, action string) (*models.TestPattern, error) {
	pattern, err := s.repo.Pattern().GetByIDWithSections(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPatternNotFound
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	if pattern.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "pattern", action, "not owned by user")
	}
	return pattern, nil
}

// storeTotals recomputes and persists the pattern's derived totals from the
// given section set.
func (s *patternService) storeTotals(ctx context.Context, txRepo repositories.Repository, pattern *models.TestPattern, sections []*models.Section) error {
	pattern.Sections = dereferenceSections(sections)
	pattern.Recompute()
	if err := txRepo.Pattern().Update(ctx, nil, pattern); err != nil {
		return fmt.Errorf("failed to store pattern totals: %w", err)
	}
	return nil
}

func (s *patternService) buildPatternResponse(ctx context.Context, pattern *models.TestPattern) (*PatternResponse, error) {
	used, err := s.repo.Pattern().IsUsedByTests(ctx, nil, pattern.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pattern usage: %w", err)
	}

	return &PatternResponse{
		TestPattern: pattern,
		CanEdit:     true,
		CanDelete:   !used,
	}, nil
}

func pageFromFilters(limit, offset int) (page, size int) {
	size = limit
	if size <= 0 {
		size = 20
	}
	page = offset/size + 1
	return page, size
}
