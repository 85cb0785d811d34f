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

type testService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewTestService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) TestService {
	return &testService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *testService) Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*TestResponse, error) {
	s.logger.Info("Creating test", "creator_id", creatorID, "title", req.Title, "pattern_id", req.PatternID)

	if errs := s.validator.ValidateTestCreate(req); len(errs) > 0 {
		return nil, errs
	}

	pattern, err := s.repo.Pattern().GetByIDWithSections(ctx, nil, req.PatternID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPatternNotFound
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	test := &models.Test{
		Title:           strings.TrimSpace(req.Title),
		PatternID:       pattern.ID,
		Status:          models.TestDraft,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       creatorID,
	}
	if req.TimeWarningSeconds != nil {
		test.TimeWarningSeconds = *req.TimeWarningSeconds
	} else {
		test.TimeWarningSeconds = 300
	}

	if err := s.repo.Test().Create(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created successfully", "test_id", test.ID)
	return s.GetByID(ctx, test.ID)
}

func (s *testService) GetByID(ctx context.Context, id uint) (*TestResponse, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	count, err := s.repo.TestQuestion().CountByTest(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count test questions: %w", err)
	}

	return &TestResponse{
		Test:          test,
		QuestionCount: int(count),
		CanEdit:       test.Status == models.TestDraft,
	}, nil
}

func (s *testService) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Test, error) {
	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *testService) List(ctx context.Context, filters repositories.TestFilters) (*TestListResponse, error) {
	tests, total, err := s.repo.Test().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	responses := make([]*TestResponse, 0, len(tests))
	for _, test := range tests {
		count, err := s.repo.TestQuestion().CountByTest(ctx, nil, test.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count test questions: %w", err)
		}
		responses = append(responses, &TestResponse{
			Test:          test,
			QuestionCount: int(count),
			CanEdit:       test.Status == models.TestDraft,
		})
	}

	page, size := pageFromFilters(filters.Limit, filters.Offset)
	return &TestListResponse{
		Tests: responses,
		Total: total,
		Page:  page,
		Size:  size,
	}, nil
}

// ===== QUESTION SEQUENCE =====

// BuildQuestionSequence binds an ordered question list to the test. Each
// 1-based position is resolved to its pattern section; the section supplies
// the marking scheme and constrains the allowed question type. The whole
// sequence is replaced atomically.
func (s *testService) BuildQuestionSequence(ctx context.Context, testID uint, req *BuildSequenceRequest, userID string) (*TestResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err := s.getOwnedTest(ctx, testID, userID, "build_sequence")
	if err != nil {
		return nil, err
	}
	if test.Status != models.TestDraft {
		return nil, NewBusinessRuleError("test_not_draft", "question sequence can only change on draft tests",
			map[string]interface{}{"test_id": testID, "status": test.Status})
	}

	pattern, err := s.repo.Pattern().GetByIDWithSections(ctx, nil, test.PatternID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}

	if len(req.QuestionIDs) != pattern.TotalQuestions {
		return nil, NewValidationError("question_ids",
			fmt.Sprintf("pattern requires exactly %d questions", pattern.TotalQuestions),
			len(req.QuestionIDs))
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, req.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	questionByID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		questionByID[q.ID] = q
	}

	sequence := make([]*models.TestQuestion, 0, len(req.QuestionIDs))
	for i, questionID := range req.QuestionIDs {
		position := i + 1

		question := questionByID[questionID]
		if question == nil {
			return nil, NewValidationError("question_ids",
				fmt.Sprintf("question %d not found", questionID), questionID)
		}

		section := pattern.SectionFor(position)
		if section == nil {
			return nil, NewValidationError("question_ids",
				fmt.Sprintf("no section covers question number %d", position), position)
		}

		if !typeAllowed(section, question.Type) {
			return nil, NewValidationError("question_ids",
				fmt.Sprintf("question type %s not allowed in section %s", question.Type, section.Name),
				questionID)
		}

		tq := &models.TestQuestion{
			TestID:         testID,
			QuestionID:     questionID,
			SequenceOrder:  position,
			SectionID:      section.ID,
			Marks:          section.MarksPerQuestion,
			PartialMarking: section.PartialMarking,
		}
		if pattern.ScoringRules.NegativeMarkingEnabled {
			tq.NegativeMarks = section.NegativeMarks
		}
		sequence = append(sequence, tq)
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.TestQuestion().DeleteByTest(ctx, nil, testID); err != nil {
			return fmt.Errorf("failed to clear existing sequence: %w", err)
		}
		if err := txRepo.TestQuestion().CreateBatch(ctx, nil, sequence); err != nil {
			return fmt.Errorf("failed to create question sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question sequence built", "test_id", testID, "questions", len(sequence))
	return s.GetByID(ctx, testID)
}

// ===== STATUS TRANSITIONS =====

func (s *testService) Activate(ctx context.Context, testID uint, userID string) error {
	test, err := s.getOwnedTest(ctx, testID, userID, "activate")
	if err != nil {
		return err
	}

	pattern, err := s.repo.Pattern().GetByIDWithSections(ctx, nil, test.PatternID)
	if err != nil {
		return fmt.Errorf("failed to get pattern: %w", err)
	}

	count, err := s.repo.TestQuestion().CountByTest(ctx, nil, testID)
	if err != nil {
		return fmt.Errorf("failed to count test questions: %w", err)
	}
	if int(count) != pattern.TotalQuestions {
		return NewBusinessRuleError("incomplete_sequence", "test does not carry a full question sequence",
			map[string]interface{}{"have": count, "want": pattern.TotalQuestions})
	}

	if err := s.repo.Test().UpdateStatus(ctx, nil, testID, models.TestActive); err != nil {
		return fmt.Errorf("failed to activate test: %w", err)
	}

	s.logger.Info("Test activated", "test_id", testID)
	return nil
}

func (s *testService) Archive(ctx context.Context, testID uint, userID string) error {
	if _, err := s.getOwnedTest(ctx, testID, userID, "archive"); err != nil {
		return err
	}

	if err := s.repo.Test().UpdateStatus(ctx, nil, testID, models.TestArchived); err != nil {
		return fmt.Errorf("failed to archive test: %w", err)
	}

	s.logger.Info("Test archived", "test_id", testID)
	return nil
}

// ===== STATS =====

// Stats aggregates attempt outcomes for the test: totals, completion,
// score distribution and per-status counts.
func (s *testService) Stats(ctx context.Context, testID uint, userID string) (*TestStatsResponse, error) {
	if _, err := s.getOwnedTest(ctx, testID, userID, "read_stats"); err != nil {
		return nil, err
	}

	testStats, err := s.repo.Test().GetStats(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test stats: %w", err)
	}

	attemptStats, err := s.repo.Attempt().GetStats(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt stats: %w", err)
	}

	return &TestStatsResponse{
		TestID:          testID,
		TestStats:       testStats,
		StatusBreakdown: attemptStats.StatusBreakdown,
	}, nil
}

// ===== HELPERS =====

func (s *testService) getOwnedTest(ctx context.Context, id uint, userID, action string) (*models.Test, error) {
	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if test.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "test", action, "not owned by user")
	}
	return test, nil
}

func typeAllowed(section *models.Section, questionType models.QuestionType) bool {
	allowed := typesFromJSON(section.AllowedQuestionTypes)
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == questionType {
			return true
		}
	}
	return false
}
