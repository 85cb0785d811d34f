package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/events"
	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

// fakeRepo is an in-memory Repository covering the attempt and scoring
// flows. Unimplemented sub-repositories come from the embedded interfaces
// and panic when touched.
type fakeRepo struct {
	tests          map[uint]*models.Test
	testQuestions  map[uint][]*models.TestQuestion
	attempts       map[uint]*models.TestAttempt
	responses      map[uint]*models.TestResponse
	nextAttemptID  uint
	nextResponseID uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tests:          make(map[uint]*models.Test),
		testQuestions:  make(map[uint][]*models.TestQuestion),
		attempts:       make(map[uint]*models.TestAttempt),
		responses:      make(map[uint]*models.TestResponse),
		nextAttemptID:  1,
		nextResponseID: 1,
	}
}

func (f *fakeRepo) Pattern() repositories.PatternRepository   { return nil }
func (f *fakeRepo) Section() repositories.SectionRepository   { return nil }
func (f *fakeRepo) Question() repositories.QuestionRepository { return nil }
func (f *fakeRepo) Test() repositories.TestRepository         { return &fakeTestRepo{r: f} }
func (f *fakeRepo) TestQuestion() repositories.TestQuestionRepository {
	return &fakeTestQuestionRepo{r: f}
}
func (f *fakeRepo) Attempt() repositories.AttemptRepository   { return &fakeAttemptRepo{r: f} }
func (f *fakeRepo) Response() repositories.ResponseRepository { return &fakeResponseRepo{r: f} }
func (f *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

type fakeTestRepo struct {
	repositories.TestRepository
	r *fakeRepo
}

func (f *fakeTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	test, ok := f.r.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *test
	return &copied, nil
}

type fakeTestQuestionRepo struct {
	repositories.TestQuestionRepository
	r *fakeRepo
}

func (f *fakeTestQuestionRepo) GetByTestOrdered(ctx context.Context, tx *gorm.DB, testID uint) ([]*models.TestQuestion, error) {
	return f.r.testQuestions[testID], nil
}

type fakeAttemptRepo struct {
	repositories.AttemptRepository
	r *fakeRepo
}

func (f *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	attempt.ID = f.r.nextAttemptID
	f.r.nextAttemptID++
	copied := *attempt
	f.r.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	attempt, ok := f.r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (f *fakeAttemptRepo) GetByIDWithResponses(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	attempt, err := f.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, resp := range f.r.responses {
		if resp.AttemptID == id {
			attempt.Responses = append(attempt.Responses, *resp)
		}
	}
	return attempt, nil
}

func (f *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	if _, ok := f.r.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *attempt
	copied.Responses = nil
	f.r.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeAttemptRepo) GetActiveByCandidateAndTest(ctx context.Context, tx *gorm.DB, candidateID string, testID uint) (*models.TestAttempt, error) {
	for _, attempt := range f.r.attempts {
		if attempt.CandidateID == candidateID && attempt.TestID == testID && attempt.Status == models.AttemptInProgress {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) GetExpiredInProgress(ctx context.Context, tx *gorm.DB, limit int) ([]*models.TestAttempt, error) {
	now := time.Now().UTC()
	var out []*models.TestAttempt
	for _, attempt := range f.r.attempts {
		if attempt.Status == models.AttemptInProgress && attempt.Expired(now) {
			copied := *attempt
			out = append(out, &copied)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeResponseRepo struct {
	repositories.ResponseRepository
	r *fakeRepo
}

func (f *fakeResponseRepo) CreateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error {
	for _, resp := range responses {
		resp.ID = f.r.nextResponseID
		f.r.nextResponseID++
		copied := *resp
		f.r.responses[resp.ID] = &copied
	}
	return nil
}

func (f *fakeResponseRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, testQuestionID uint) (*models.TestResponse, error) {
	for _, resp := range f.r.responses {
		if resp.AttemptID == attemptID && resp.TestQuestionID == testQuestionID {
			copied := *resp
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeResponseRepo) Update(ctx context.Context, tx *gorm.DB, response *models.TestResponse) error {
	if _, ok := f.r.responses[response.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *response
	f.r.responses[response.ID] = &copied
	return nil
}

func (f *fakeResponseRepo) UpdateBatch(ctx context.Context, tx *gorm.DB, responses []*models.TestResponse) error {
	for _, resp := range responses {
		if err := f.Update(ctx, tx, resp); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeResponseRepo) GetStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*repositories.ResponseStats, error) {
	stats := &repositories.ResponseStats{}
	for _, resp := range f.r.responses {
		if resp.AttemptID != attemptID {
			continue
		}
		stats.TotalResponses++
		stats.TotalTimeSpent += resp.TimeSpentSeconds
		if hasAnswerPayload(resp) {
			stats.AnsweredCount++
		}
		if resp.FlaggedForReview {
			stats.FlaggedCount++
		}
		if resp.Outcome == models.OutcomePendingManual {
			stats.PendingManual++
		}
	}
	return stats, nil
}

func hasAnswerPayload(resp *models.TestResponse) bool {
	if resp.ResponseText != "" {
		return true
	}
	var options []json.RawMessage
	if err := json.Unmarshal(resp.SelectedOptions, &options); err != nil {
		return false
	}
	return len(options) > 0
}

// seedActiveTest loads one active test with two single-correct questions
// worth 4 marks each, negative 1.
func seedActiveTest(repo *fakeRepo) {
	repo.tests[1] = &models.Test{
		ID:              1,
		Title:           "Midterm",
		Status:          models.TestActive,
		DurationMinutes: 60,
	}

	keyB, _ := json.Marshal(models.SingleCorrectKey{Correct: "b"})
	keyC, _ := json.Marshal(models.SingleCorrectKey{Correct: "c"})
	repo.testQuestions[1] = []*models.TestQuestion{
		{
			ID: 11, TestID: 1, QuestionID: 101, SequenceOrder: 1, Marks: 4, NegativeMarks: 1,
			Question: models.Question{ID: 101, Type: models.SingleCorrect, AnswerKey: datatypes.JSON(keyB)},
		},
		{
			ID: 12, TestID: 1, QuestionID: 102, SequenceOrder: 2, Marks: 4, NegativeMarks: 1,
			Question: models.Question{ID: 102, Type: models.SingleCorrect, AnswerKey: datatypes.JSON(keyC)},
		},
	}
}

func newAttemptServiceUnderTest(repo *fakeRepo, publisher events.EventPublisher) *attemptService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return &attemptService{
		repo:           repo,
		logger:         logger,
		validator:      validator.New(),
		scoringService: NewScoringService(repo, nil, logger, publisher),
		eventPublisher: publisher,
	}
}

func TestAttemptService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesAttemptWithResponseShells", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		resp, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if resp.Status != models.AttemptInProgress {
			t.Errorf("Expected in_progress, got %s", resp.Status)
		}
		if len(resp.Questions) != 2 {
			t.Fatalf("Expected 2 questions, got %d", len(resp.Questions))
		}
		if !resp.Questions[0].IsFirst || !resp.Questions[1].IsLast {
			t.Errorf("First/last markers wrong")
		}
		if len(repo.responses) != 2 {
			t.Errorf("Expected 2 response shells, got %d", len(repo.responses))
		}
		if resp.TimeRemainingSeconds < 3590 || resp.TimeRemainingSeconds > 3600 {
			t.Errorf("Expected ~3600s remaining, got %d", resp.TimeRemainingSeconds)
		}
	})

	t.Run("AnswerKeysNeverDelivered", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		resp, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		for _, q := range resp.Questions {
			if q.Question.AnswerKey != nil {
				t.Errorf("Answer key leaked for question %d", q.QuestionID)
			}
		}
		// Stripping must not touch the stored question.
		if repo.testQuestions[1][0].Question.AnswerKey == nil {
			t.Errorf("Stored answer key was cleared")
		}
	})

	t.Run("ResumesExistingActiveAttempt", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		first, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("First start failed: %v", err)
		}
		second, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Second start failed: %v", err)
		}

		if second.ID != first.ID {
			t.Errorf("Expected resumed attempt %d, got new attempt %d", first.ID, second.ID)
		}
		if len(repo.attempts) != 1 {
			t.Errorf("Expected 1 attempt, got %d", len(repo.attempts))
		}
	})

	t.Run("RejectsInactiveTest", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		repo.tests[1].Status = models.TestDraft
		service := newAttemptServiceUnderTest(repo, nil)

		_, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if !errors.Is(err, ErrTestNotActive) {
			t.Errorf("Expected ErrTestNotActive, got %v", err)
		}
	})

	t.Run("RejectsMissingTest", func(t *testing.T) {
		repo := newFakeRepo()
		service := newAttemptServiceUnderTest(repo, nil)

		_, err := service.Start(ctx, &StartAttemptRequest{TestID: 9}, "cand-1")
		if !errors.Is(err, ErrTestNotFound) {
			t.Errorf("Expected ErrTestNotFound, got %v", err)
		}
	})
}

func TestAttemptService_SaveResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("UpsertsIntoShell", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		spent := 30
		err = service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:   11,
			SelectedOptions:  []string{"b"},
			TimeSpentSeconds: &spent,
		}, "cand-1")
		if err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}

		// Second save accumulates time but replaces the selection.
		err = service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:   11,
			SelectedOptions:  []string{"a"},
			TimeSpentSeconds: &spent,
		}, "cand-1")
		if err != nil {
			t.Fatalf("Second SaveResponse failed: %v", err)
		}

		stored, err := repo.Response().GetByAttemptAndQuestion(ctx, nil, started.ID, 11)
		if err != nil {
			t.Fatalf("Shell lookup failed: %v", err)
		}
		if stored.TimeSpentSeconds != 60 {
			t.Errorf("Expected accumulated 60s, got %d", stored.TimeSpentSeconds)
		}
		var sel []string
		if err := json.Unmarshal(stored.SelectedOptions, &sel); err != nil || len(sel) != 1 || sel[0] != "a" {
			t.Errorf("Expected replaced selection [a], got %s", stored.SelectedOptions)
		}
	})

	t.Run("RejectsTerminalAttempt", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := service.Submit(ctx, &SubmitAttemptRequest{AttemptID: started.ID}, "cand-1"); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		err = service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:  11,
			SelectedOptions: []string{"b"},
		}, "cand-1")

		var invalidState *InvalidStateError
		if !errors.As(err, &invalidState) {
			t.Fatalf("Expected InvalidStateError, got %v", err)
		}
		if invalidState.Action != "save_response" {
			t.Errorf("Unexpected action: %s", invalidState.Action)
		}
	})

	t.Run("RejectsForeignCandidate", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		err = service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:  11,
			SelectedOptions: []string{"b"},
		}, "cand-2")

		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("Expected PermissionError, got %v", err)
		}
	})
}

func TestAttemptService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("GradesAndReturnsSummary", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		publisher := events.NewMockEventPublisher(slog.New(slog.NewTextHandler(os.Stdout, nil)))
		service := newAttemptServiceUnderTest(repo, publisher)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		summary, err := service.Submit(ctx, &SubmitAttemptRequest{
			AttemptID: started.ID,
			Responses: []SaveResponseRequest{
				{TestQuestionID: 11, SelectedOptions: []string{"b"}},
				{TestQuestionID: 12, SelectedOptions: []string{"a"}},
			},
		}, "cand-1")
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		if summary.Status != models.AttemptSubmitted {
			t.Errorf("Expected submitted, got %s", summary.Status)
		}
		if summary.EndReason == nil || *summary.EndReason != models.AttemptEndReasonManual {
			t.Errorf("Expected manual end reason, got %v", summary.EndReason)
		}
		if summary.Result == nil {
			t.Fatal("Expected result in summary")
		}
		// One correct (+4), one wrong (-1).
		if summary.Result.TotalScore != 3 {
			t.Errorf("Expected total score 3, got %v", summary.Result.TotalScore)
		}
		if summary.Result.CorrectCount != 1 || summary.Result.IncorrectCount != 1 {
			t.Errorf("Unexpected counts: %+v", summary.Result)
		}

		stored := repo.attempts[started.ID]
		if !stored.IsGraded {
			t.Error("Attempt not persisted as graded")
		}

		types := map[string]bool{}
		for _, e := range publisher.GetPublishedEvents() {
			types[e.Type] = true
		}
		if !types[events.EventAttemptSubmitted] || !types[events.EventResultGraded] {
			t.Errorf("Expected submitted and graded events, got %v", types)
		}
	})

	t.Run("RepeatedSubmitReturnsStoredSummary", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		first, err := service.Submit(ctx, &SubmitAttemptRequest{
			AttemptID: started.ID,
			Responses: []SaveResponseRequest{{TestQuestionID: 11, SelectedOptions: []string{"b"}}},
		}, "cand-1")
		if err != nil {
			t.Fatalf("First submit failed: %v", err)
		}

		// Second submit carries different answers; they must be ignored.
		second, err := service.Submit(ctx, &SubmitAttemptRequest{
			AttemptID: started.ID,
			Responses: []SaveResponseRequest{{TestQuestionID: 11, SelectedOptions: []string{"a"}}},
		}, "cand-1")
		if err != nil {
			t.Fatalf("Second submit failed: %v", err)
		}

		if second.Result == nil || first.Result == nil {
			t.Fatal("Expected results on both summaries")
		}
		if second.Result.TotalScore != first.Result.TotalScore {
			t.Errorf("Score changed on repeated submit: %v vs %v", first.Result.TotalScore, second.Result.TotalScore)
		}
		if second.SubmittedAt == nil || first.SubmittedAt == nil || !second.SubmittedAt.Equal(*first.SubmittedAt) {
			t.Errorf("Submission timestamp changed on repeated submit")
		}
	})
}

func TestAttemptService_GetSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("PreSubmissionCountsForConfirmationDialog", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		// One answered, one merely flagged for review.
		flagged := true
		if err := service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:  11,
			SelectedOptions: []string{"b"},
		}, "cand-1"); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}
		if err := service.SaveResponse(ctx, started.ID, &SaveResponseRequest{
			TestQuestionID:   12,
			FlaggedForReview: &flagged,
		}, "cand-1"); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}

		summary, err := service.GetSummary(ctx, started.ID, "cand-1")
		if err != nil {
			t.Fatalf("GetSummary failed: %v", err)
		}

		if summary.Status != models.AttemptInProgress {
			t.Errorf("Expected in_progress, got %s", summary.Status)
		}
		if summary.TotalQuestions != 2 {
			t.Errorf("Expected 2 questions, got %d", summary.TotalQuestions)
		}
		if summary.AnsweredCount != 1 {
			t.Errorf("Expected 1 answered, got %d", summary.AnsweredCount)
		}
		if summary.FlaggedCount != 1 {
			t.Errorf("Expected 1 flagged, got %d", summary.FlaggedCount)
		}
		if summary.UnansweredCount != 1 {
			t.Errorf("Expected 1 unanswered, got %d", summary.UnansweredCount)
		}
		if summary.Result != nil {
			t.Errorf("Expected no result before grading, got %+v", summary.Result)
		}
	})

	t.Run("PostSubmissionCarriesCountsAndResult", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		submitted, err := service.Submit(ctx, &SubmitAttemptRequest{
			AttemptID: started.ID,
			Responses: []SaveResponseRequest{{TestQuestionID: 11, SelectedOptions: []string{"b"}}},
		}, "cand-1")
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if submitted.AnsweredCount != 1 || submitted.UnansweredCount != 1 {
			t.Errorf("Submit summary counts wrong: %+v", submitted)
		}

		summary, err := service.GetSummary(ctx, started.ID, "cand-1")
		if err != nil {
			t.Fatalf("GetSummary failed: %v", err)
		}
		if summary.Result == nil {
			t.Fatal("Expected graded result on terminal summary")
		}
		if summary.AnsweredCount != 1 || summary.TotalQuestions != 2 {
			t.Errorf("Terminal summary counts wrong: %+v", summary)
		}
	})
}

func TestAttemptService_TimeManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("TimeRemainingDerivedFromStart", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		repo.attempts[5] = &models.TestAttempt{
			ID: 5, TestID: 1, CandidateID: "cand-1",
			Status:          models.AttemptInProgress,
			StartedAt:       time.Now().UTC().Add(-30 * time.Minute),
			DurationMinutes: 60,
		}

		remaining, err := service.GetTimeRemaining(ctx, 5, "cand-1")
		if err != nil {
			t.Fatalf("GetTimeRemaining failed: %v", err)
		}
		if remaining < 1795 || remaining > 1800 {
			t.Errorf("Expected ~1800s, got %d", remaining)
		}
	})

	t.Run("HandleTimeoutExpiresAndGrades", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		// Push the attempt past its deadline.
		stored := repo.attempts[started.ID]
		stored.StartedAt = time.Now().UTC().Add(-2 * time.Hour)

		if err := service.HandleTimeout(ctx, started.ID); err != nil {
			t.Fatalf("HandleTimeout failed: %v", err)
		}

		expired := repo.attempts[started.ID]
		if expired.Status != models.AttemptExpired {
			t.Errorf("Expected expired, got %s", expired.Status)
		}
		if expired.EndReason == nil || *expired.EndReason != models.AttemptEndReasonTimeout {
			t.Errorf("Expected time_out end reason, got %v", expired.EndReason)
		}
		if !expired.IsGraded {
			t.Error("Expired attempt not graded")
		}
	})

	t.Run("HandleTimeoutIgnoresTerminal", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := service.Submit(ctx, &SubmitAttemptRequest{AttemptID: started.ID}, "cand-1"); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		before := *repo.attempts[started.ID]

		if err := service.HandleTimeout(ctx, started.ID); err != nil {
			t.Fatalf("HandleTimeout failed: %v", err)
		}

		after := repo.attempts[started.ID]
		if after.Status != before.Status || after.EndReason == nil || *after.EndReason != *before.EndReason {
			t.Errorf("Terminal attempt mutated by timeout")
		}
	})

	t.Run("HandleTimeoutIgnoresAttemptWithTimeLeft", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		started, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		if err := service.HandleTimeout(ctx, started.ID); err != nil {
			t.Fatalf("HandleTimeout failed: %v", err)
		}

		if repo.attempts[started.ID].Status != models.AttemptInProgress {
			t.Errorf("Attempt with time left was expired")
		}
	})

	t.Run("ExpireOverdueSweepsOnlyExpired", func(t *testing.T) {
		repo := newFakeRepo()
		seedActiveTest(repo)
		service := newAttemptServiceUnderTest(repo, nil)

		fresh, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		overdue, err := service.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-2")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		repo.attempts[overdue.ID].StartedAt = time.Now().UTC().Add(-2 * time.Hour)

		count, err := service.ExpireOverdue(ctx, 10)
		if err != nil {
			t.Fatalf("ExpireOverdue failed: %v", err)
		}

		if count != 1 {
			t.Errorf("Expected 1 expired, got %d", count)
		}
		if repo.attempts[fresh.ID].Status != models.AttemptInProgress {
			t.Errorf("Fresh attempt was expired by sweep")
		}
		if repo.attempts[overdue.ID].Status != models.AttemptExpired {
			t.Errorf("Overdue attempt not expired by sweep")
		}
	})
}

func TestScoringService_WriteOnce(t *testing.T) {
	ctx := context.Background()

	repo := newFakeRepo()
	seedActiveTest(repo)
	attemptSvc := newAttemptServiceUnderTest(repo, nil)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	scoring := NewScoringService(repo, nil, logger, nil)

	started, err := attemptSvc.Start(ctx, &StartAttemptRequest{TestID: 1}, "cand-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := attemptSvc.SaveResponse(ctx, started.ID, &SaveResponseRequest{
		TestQuestionID:  11,
		SelectedOptions: []string{"b"},
	}, "cand-1"); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	t.Run("ResultNotReadyBeforeGrading", func(t *testing.T) {
		_, err := scoring.GetResult(ctx, started.ID)
		var ruleErr *BusinessRuleError
		if !errors.As(err, &ruleErr) || ruleErr.Rule != "result_not_ready" {
			t.Errorf("Expected result_not_ready, got %v", err)
		}
	})

	t.Run("FirstGradingPersists", func(t *testing.T) {
		result, err := scoring.ScoreAttempt(ctx, started.ID)
		if err != nil {
			t.Fatalf("ScoreAttempt failed: %v", err)
		}
		if result.TotalScore != 4 {
			t.Errorf("Expected total 4, got %v", result.TotalScore)
		}
		if result.UnansweredCount != 1 {
			t.Errorf("Expected 1 unanswered, got %d", result.UnansweredCount)
		}
	})

	t.Run("SecondGradingReturnsStoredResult", func(t *testing.T) {
		// Changing the response after grading must not change the result.
		if err := repo.Response().Update(ctx, nil, func() *models.TestResponse {
			stored, _ := repo.Response().GetByAttemptAndQuestion(ctx, nil, started.ID, 11)
			data, _ := json.Marshal([]string{"a"})
			stored.SelectedOptions = datatypes.JSON(data)
			return stored
		}()); err != nil {
			t.Fatalf("Tamper update failed: %v", err)
		}

		result, err := scoring.ScoreAttempt(ctx, started.ID)
		if err != nil {
			t.Fatalf("Second ScoreAttempt failed: %v", err)
		}
		if result.TotalScore != 4 {
			t.Errorf("Write-once violated: total changed to %v", result.TotalScore)
		}
	})
}
