package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/events"
	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

type attemptService struct {
	repo           repositories.Repository
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	scoringService ScoringService
	eventPublisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, eventPublisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:           repo,
		db:             db,
		logger:         logger,
		validator:      validator,
		scoringService: NewScoringService(repo, db, logger, eventPublisher),
		eventPublisher: eventPublisher,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start opens an attempt on an active test. If the candidate already has an
// in-progress attempt on the same test it is resumed instead of erroring;
// the derived clock keeps ticking either way.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, candidateID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	s.logger.Info("Starting attempt", "test_id", req.TestID, "candidate_id", candidateID)

	test, err := s.repo.Test().GetByID(ctx, nil, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.Status != models.TestActive {
		return nil, ErrTestNotActive
	}

	if existing, err := s.repo.Attempt().GetActiveByCandidateAndTest(ctx, nil, candidateID, req.TestID); err == nil {
		s.logger.Info("Resuming existing active attempt", "attempt_id", existing.ID)
		return s.Resume(ctx, existing.ID, candidateID)
	} else if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}

	questions, err := s.repo.TestQuestion().GetByTestOrdered(ctx, nil, req.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, NewBusinessRuleError("empty_test", "test has no question sequence",
			map[string]interface{}{"test_id": req.TestID})
	}

	attempt := &models.TestAttempt{
		TestID:          req.TestID,
		CandidateID:     candidateID,
		Status:          models.AttemptInProgress,
		StartedAt:       time.Now().UTC(),
		DurationMinutes: test.DurationMinutes,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Create(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}

		// One shell per question so navigation and statistics have a
		// stable row set from the first second.
		shells := make([]*models.TestResponse, 0, len(questions))
		for _, tq := range questions {
			shells = append(shells, &models.TestResponse{
				AttemptID:      attempt.ID,
				TestQuestionID: tq.ID,
			})
		}
		if err := txRepo.Response().CreateBatch(ctx, nil, shells); err != nil {
			return fmt.Errorf("failed to create response shells: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attempt started", "attempt_id", attempt.ID, "questions", len(questions))
	s.publishAttemptEvent(ctx, events.EventAttemptStarted, attempt, false)

	return s.buildAttemptResponse(ctx, attempt, questions)
}

// Resume reloads an attempt mid-flight. Terminal attempts come back with a
// results redirect instead of an error; an attempt past its deadline is
// expired on the spot.
func (s *attemptService) Resume(ctx context.Context, attemptID uint, candidateID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, candidateID, "resume")
	if err != nil {
		return nil, err
	}

	if attempt.Status.Terminal() {
		return s.terminalResponse(attempt), nil
	}

	if attempt.Expired(time.Now().UTC()) {
		if err := s.HandleTimeout(ctx, attemptID); err != nil {
			return nil, err
		}
		attempt, err = s.repo.Attempt().GetByID(ctx, nil, attemptID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload attempt: %w", err)
		}
		return s.terminalResponse(attempt), nil
	}

	questions, err := s.repo.TestQuestion().GetByTestOrdered(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test questions: %w", err)
	}

	s.publishAttemptEvent(ctx, events.EventAttemptStarted, attempt, true)
	return s.buildAttemptResponse(ctx, attempt, questions)
}

// Submit finalizes the attempt with the complete response set and grades it
// in the same flow. Submitting an already-terminal attempt is idempotent and
// returns the stored summary.
func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, candidateID string) (*SubmissionSummary, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.getOwnedAttempt(ctx, req.AttemptID, candidateID, "submit")
	if err != nil {
		return nil, err
	}

	if attempt.Status.Terminal() {
		s.logger.Info("Attempt already terminal, returning stored summary",
			"attempt_id", attempt.ID,
			"status", attempt.Status)
		return s.GetSummary(ctx, attempt.ID, candidateID)
	}

	endReason := req.EndReason
	if endReason == "" {
		endReason = models.AttemptEndReasonManual
	}

	now := time.Now().UTC()
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if len(req.Responses) > 0 {
			if err := s.applyResponses(ctx, txRepo, attempt.ID, req.Responses); err != nil {
				return err
			}
		}

		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		attempt.EndReason = &endReason
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to mark attempt submitted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, &SubmissionFailure{AttemptID: attempt.ID, Cause: err}
	}

	result, err := s.scoringService.ScoreAttempt(ctx, attempt.ID)
	if err != nil {
		// Submission already stands; grading can be retried later.
		s.logger.ErrorContext(ctx, "Failed to grade submitted attempt",
			"error", err,
			"attempt_id", attempt.ID)
	}

	s.logger.Info("Attempt submitted", "attempt_id", attempt.ID, "end_reason", endReason)
	s.publishAttemptEvent(ctx, events.EventAttemptSubmitted, attempt, false)

	stats, err := s.repo.Response().GetStats(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get response stats: %w", err)
	}

	return &SubmissionSummary{
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		SubmittedAt:     attempt.SubmittedAt,
		EndReason:       attempt.EndReason,
		TotalQuestions:  stats.TotalResponses,
		AnsweredCount:   stats.AnsweredCount,
		FlaggedCount:    stats.FlaggedCount,
		UnansweredCount: stats.TotalResponses - stats.AnsweredCount,
		Result:          result,
	}, nil
}

// ===== RESPONSE OPERATIONS =====

// SaveResponse upserts one question's response into its pre-created shell.
func (s *attemptService) SaveResponse(ctx context.Context, attemptID uint, req *SaveResponseRequest, candidateID string) error {
	return s.SaveResponses(ctx, attemptID, []SaveResponseRequest{*req}, candidateID)
}

// SaveResponses writes a batch of responses in one transaction.
func (s *attemptService) SaveResponses(ctx context.Context, attemptID uint, reqs []SaveResponseRequest, candidateID string) error {
	if len(reqs) == 0 {
		return nil
	}
	for i := range reqs {
		if err := s.validator.Validate(&reqs[i]); err != nil {
			return err
		}
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, candidateID, "save_response")
	if err != nil {
		return err
	}

	if attempt.Status.Terminal() {
		return NewInvalidStateError("attempt", attempt.ID, attempt.Status, "save_response")
	}

	if attempt.Expired(time.Now().UTC()) {
		if err := s.HandleTimeout(ctx, attemptID); err != nil {
			return err
		}
		return ErrAttemptTimeExpired
	}

	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.applyResponses(ctx, txRepo, attemptID, reqs)
	})
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, id, userID, "read")
	if err != nil {
		return nil, err
	}

	if attempt.Status.Terminal() {
		return s.terminalResponse(attempt), nil
	}

	questions, err := s.repo.TestQuestion().GetByTestOrdered(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test questions: %w", err)
	}
	return s.buildAttemptResponse(ctx, attempt, questions)
}

// GetSummary works on active and terminal attempts alike. Pre-submission it
// backs the confirmation dialog with answered/flagged/unanswered counts;
// post-submission it adds the terminal state and the graded result.
func (s *attemptService) GetSummary(ctx context.Context, attemptID uint, userID string) (*SubmissionSummary, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "read_summary")
	if err != nil {
		return nil, err
	}

	stats, err := s.repo.Response().GetStats(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get response stats: %w", err)
	}

	summary := &SubmissionSummary{
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		SubmittedAt:     attempt.SubmittedAt,
		EndReason:       attempt.EndReason,
		TotalQuestions:  stats.TotalResponses,
		AnsweredCount:   stats.AnsweredCount,
		FlaggedCount:    stats.FlaggedCount,
		UnansweredCount: stats.TotalResponses - stats.AnsweredCount,
	}

	if attempt.IsGraded {
		result, err := s.scoringService.GetResult(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		summary.Result = result
	}

	return summary, nil
}

func (s *attemptService) GetByCandidate(ctx context.Context, candidateID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.Attempt().GetByCandidate(ctx, nil, candidateID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	now := time.Now().UTC()
	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, &AttemptResponse{
			TestAttempt:          attempt,
			TimeRemainingSeconds: attempt.TimeRemaining(now),
			CanSubmit:            attempt.Status == models.AttemptInProgress,
			CanResume:            attempt.Status == models.AttemptInProgress && !attempt.Expired(now),
			RedirectToResults:    attempt.Status.Terminal(),
		})
	}

	page, size := pageFromFilters(filters.Limit, filters.Offset)
	return &AttemptListResponse{
		Attempts: responses,
		Total:    total,
		Page:     page,
		Size:     size,
	}, nil
}

// ===== TIME MANAGEMENT =====

// GetTimeRemaining derives the remaining seconds from the stored start
// instant. Never read from a stored countdown.
func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, candidateID string) (int, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, candidateID, "read_time")
	if err != nil {
		return 0, err
	}
	if attempt.Status.Terminal() {
		return 0, nil
	}
	return attempt.TimeRemaining(time.Now().UTC()), nil
}

// HandleTimeout expires an in-progress attempt whose deadline has passed and
// grades whatever responses were synced. Calling it on a terminal attempt is
// a no-op.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	if !attempt.Expired(now) {
		return nil
	}

	endReason := models.AttemptEndReasonTimeout
	attempt.Status = models.AttemptExpired
	attempt.SubmittedAt = &now
	attempt.EndReason = &endReason
	if err := s.repo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to expire attempt: %w", err)
	}

	if _, err := s.scoringService.ScoreAttempt(ctx, attemptID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to grade expired attempt",
			"error", err,
			"attempt_id", attemptID)
	}

	s.logger.Info("Attempt expired", "attempt_id", attemptID)
	s.publishAttemptEvent(ctx, events.EventAttemptExpired, attempt, false)
	return nil
}

// ExpireOverdue sweeps in-progress attempts whose deadline passed without a
// client-side auto submit, such as after a browser crash.
func (s *attemptService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	attempts, err := s.repo.Attempt().GetExpiredInProgress(ctx, nil, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to find overdue attempts: %w", err)
	}

	expired := 0
	for _, attempt := range attempts {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to expire overdue attempt",
				"error", err,
				"attempt_id", attempt.ID)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expired overdue attempts", "count", expired)
	}
	return expired, nil
}
