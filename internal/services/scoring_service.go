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
)

type scoringService struct {
	repo           repositories.Repository
	db             *gorm.DB
	logger         *slog.Logger
	eventPublisher events.EventPublisher
}

func NewScoringService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, eventPublisher events.EventPublisher) ScoringService {
	return &scoringService{
		repo:           repo,
		db:             db,
		logger:         logger,
		eventPublisher: eventPublisher,
	}
}

// ScoreAttempt grades every response in a single pass and persists the
// aggregate on the attempt and the verdicts on the responses. Grading is
// write-once: a second call returns the stored result unchanged.
func (s *scoringService) ScoreAttempt(ctx context.Context, attemptID uint) (*models.ScoreResult, error) {
	attempt, err := s.repo.Attempt().GetByIDWithResponses(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.IsGraded {
		s.logger.Info("Attempt already graded, returning stored result", "attempt_id", attemptID)
		return s.buildStoredResult(ctx, attempt)
	}

	questions, err := s.repo.TestQuestion().GetByTestOrdered(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test questions: %w", err)
	}

	responseByQuestion := make(map[uint]*models.TestResponse, len(attempt.Responses))
	for i := range attempt.Responses {
		responseByQuestion[attempt.Responses[i].TestQuestionID] = &attempt.Responses[i]
	}

	scores := make([]models.QuestionScore, 0, len(questions))
	updated := make([]*models.TestResponse, 0, len(questions))
	for _, tq := range questions {
		resp := responseByQuestion[tq.ID]
		if resp == nil {
			// Shell missing; treat as unanswered without inventing a row.
			scores = append(scores, models.QuestionScore{
				TestQuestionID: tq.ID,
				SequenceOrder:  tq.SequenceOrder,
				MaxMarks:       tq.Marks,
				Outcome:        models.OutcomeUnanswered,
			})
			continue
		}

		score := scoreQuestion(tq, resp)
		scores = append(scores, score)

		resp.AwardedMarks = score.Awarded
		resp.Outcome = score.Outcome
		updated = append(updated, resp)
	}

	result := aggregateScores(attemptID, scores)
	result.GradedAt = time.Now().UTC()

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Response().UpdateBatch(ctx, nil, updated); err != nil {
			return fmt.Errorf("failed to persist response verdicts: %w", err)
		}

		attempt.TotalScore = result.TotalScore
		attempt.MaxScore = result.MaxScore
		attempt.CorrectCount = result.CorrectCount
		attempt.IncorrectCount = result.IncorrectCount
		attempt.PartialCount = result.PartialCount
		attempt.UnansweredCount = result.UnansweredCount
		attempt.PendingManualCount = result.PendingManualCount
		attempt.IsGraded = true

		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to persist attempt score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attempt graded",
		"attempt_id", attemptID,
		"total_score", result.TotalScore,
		"max_score", result.MaxScore,
		"pending_manual", result.PendingManualCount)

	s.publishGraded(ctx, attempt, result)

	return result, nil
}

// GetResult returns the stored result of a graded attempt.
func (s *scoringService) GetResult(ctx context.Context, attemptID uint) (*models.ScoreResult, error) {
	attempt, err := s.repo.Attempt().GetByIDWithResponses(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if !attempt.IsGraded {
		return nil, NewBusinessRuleError("result_not_ready", "attempt has not been graded yet",
			map[string]interface{}{"attempt_id": attemptID})
	}

	return s.buildStoredResult(ctx, attempt)
}

// buildStoredResult reconstructs the result from the persisted attempt
// aggregate and per-response verdicts.
func (s *scoringService) buildStoredResult(ctx context.Context, attempt *models.TestAttempt) (*models.ScoreResult, error) {
	questions, err := s.repo.TestQuestion().GetByTestOrdered(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test questions: %w", err)
	}

	responseByQuestion := make(map[uint]*models.TestResponse, len(attempt.Responses))
	for i := range attempt.Responses {
		responseByQuestion[attempt.Responses[i].TestQuestionID] = &attempt.Responses[i]
	}

	scores := make([]models.QuestionScore, 0, len(questions))
	for _, tq := range questions {
		score := models.QuestionScore{
			TestQuestionID: tq.ID,
			SequenceOrder:  tq.SequenceOrder,
			MaxMarks:       tq.Marks,
			Outcome:        models.OutcomeUnanswered,
		}
		if resp := responseByQuestion[tq.ID]; resp != nil && resp.Outcome != "" {
			score.Awarded = resp.AwardedMarks
			score.Outcome = resp.Outcome
		}
		scores = append(scores, score)
	}

	return &models.ScoreResult{
		AttemptID:          attempt.ID,
		TotalScore:         attempt.TotalScore,
		MaxScore:           attempt.MaxScore,
		CorrectCount:       attempt.CorrectCount,
		IncorrectCount:     attempt.IncorrectCount,
		PartialCount:       attempt.PartialCount,
		UnansweredCount:    attempt.UnansweredCount,
		PendingManualCount: attempt.PendingManualCount,
		Questions:          scores,
		GradedAt:           attempt.UpdatedAt,
	}, nil
}

func (s *scoringService) publishGraded(ctx context.Context, attempt *models.TestAttempt, result *models.ScoreResult) {
	if s.eventPublisher == nil {
		return
	}

	event := events.NewEvent(events.EventResultGraded, events.ResultGradedEvent{
		AttemptID:   attempt.ID,
		TestID:      attempt.TestID,
		CandidateID: attempt.CandidateID,
		TotalScore:  result.TotalScore,
		MaxScore:    result.MaxScore,
		GradedAt:    result.GradedAt,
	})
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish graded event",
			"error", err,
			"attempt_id", attempt.ID)
	}
}
