package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/weberitsol/assessment-engine/internal/events"
	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
)

// getOwnedAttempt loads an attempt and enforces candidate ownership.
func (s *attemptService) getOwnedAttempt(ctx context.Context, id uint, userID, action string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.CandidateID != userID {
		return nil, NewPermissionError(userID, id, "attempt", action, "not owned by candidate")
	}
	return attempt, nil
}

// applyResponses upserts each request into its pre-created shell row.
// Time spent accumulates; answer payload and flag replace what was stored.
func (s *attemptService) applyResponses(ctx context.Context, txRepo repositories.Repository, attemptID uint, reqs []SaveResponseRequest) error {
	for i := range reqs {
		req := &reqs[i]

		response, err := txRepo.Response().GetByAttemptAndQuestion(ctx, nil, attemptID, req.TestQuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrResponseNotFound
			}
			return fmt.Errorf("failed to get response shell: %w", err)
		}

		if req.SelectedOptions != nil {
			data, err := json.Marshal(req.SelectedOptions)
			if err != nil {
				return fmt.Errorf("failed to encode selected options: %w", err)
			}
			response.SelectedOptions = datatypes.JSON(data)
		}
		if req.ResponseText != nil {
			response.ResponseText = *req.ResponseText
		}
		if req.FlaggedForReview != nil {
			response.FlaggedForReview = *req.FlaggedForReview
		}
		if req.TimeSpentSeconds != nil {
			response.TimeSpentSeconds += *req.TimeSpentSeconds
		}

		if err := txRepo.Response().Update(ctx, nil, response); err != nil {
			return fmt.Errorf("failed to save response: %w", err)
		}
	}
	return nil
}

// buildAttemptResponse assembles the delivery view of an active attempt.
// Answer keys never leave the service.
func (s *attemptService) buildAttemptResponse(ctx context.Context, attempt *models.TestAttempt, questions []*models.TestQuestion) (*AttemptResponse, error) {
	now := time.Now().UTC()

	view := make([]QuestionForAttempt, 0, len(questions))
	for i, tq := range questions {
		stripped := *tq
		stripped.Question.AnswerKey = nil
		view = append(view, QuestionForAttempt{
			TestQuestion: &stripped,
			IsFirst:      i == 0,
			IsLast:       i == len(questions)-1,
		})
	}

	return &AttemptResponse{
		TestAttempt:          attempt,
		TimeRemainingSeconds: attempt.TimeRemaining(now),
		CanSubmit:            true,
		CanResume:            true,
		Questions:            view,
	}, nil
}

// terminalResponse is what a client gets when it lands on a finished
// attempt: no questions, just the redirect to results.
func (s *attemptService) terminalResponse(attempt *models.TestAttempt) *AttemptResponse {
	return &AttemptResponse{
		TestAttempt:       attempt,
		RedirectToResults: true,
	}
}

func (s *attemptService) publishAttemptEvent(ctx context.Context, eventType string, attempt *models.TestAttempt, resumed bool) {
	if s.eventPublisher == nil {
		return
	}

	var data interface{}
	switch eventType {
	case events.EventAttemptStarted:
		data = events.AttemptStartedEvent{
			AttemptID:       attempt.ID,
			TestID:          attempt.TestID,
			CandidateID:     attempt.CandidateID,
			StartedAt:       attempt.StartedAt,
			DurationMinutes: attempt.DurationMinutes,
			Resumed:         resumed,
		}
	case events.EventAttemptSubmitted:
		endReason := models.AttemptEndReasonManual
		if attempt.EndReason != nil {
			endReason = *attempt.EndReason
		}
		submittedAt := time.Now().UTC()
		if attempt.SubmittedAt != nil {
			submittedAt = *attempt.SubmittedAt
		}
		data = events.AttemptSubmittedEvent{
			AttemptID:   attempt.ID,
			TestID:      attempt.TestID,
			CandidateID: attempt.CandidateID,
			SubmittedAt: submittedAt,
			EndReason:   endReason,
		}
	case events.EventAttemptExpired:
		expiredAt := time.Now().UTC()
		if attempt.SubmittedAt != nil {
			expiredAt = *attempt.SubmittedAt
		}
		data = events.AttemptExpiredEvent{
			AttemptID:   attempt.ID,
			TestID:      attempt.TestID,
			CandidateID: attempt.CandidateID,
			ExpiredAt:   expiredAt,
		}
	default:
		return
	}

	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish attempt event",
			"error", err,
			"event_type", eventType,
			"attempt_id", attempt.ID)
	}
}
