package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"gorm.io/gorm"

	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

// fakeTestServiceRepo is an in-memory Repository covering the test and
// sequence-building flows.
type fakeTestServiceRepo struct {
	patterns     map[uint]*models.TestPattern
	questions    map[uint]*models.Question
	tests        map[uint]*models.Test
	sequences    map[uint][]*models.TestQuestion
	testStats    *repositories.TestStats
	attemptStats *repositories.AttemptStats
	nextTestID   uint
	nextTQID     uint
}

func newFakeTestServiceRepo() *fakeTestServiceRepo {
	return &fakeTestServiceRepo{
		patterns:   make(map[uint]*models.TestPattern),
		questions:  make(map[uint]*models.Question),
		tests:      make(map[uint]*models.Test),
		sequences:  make(map[uint][]*models.TestQuestion),
		nextTestID: 1,
		nextTQID:   1,
	}
}

func (f *fakeTestServiceRepo) Pattern() repositories.PatternRepository {
	return &fakeTSPatternRepo{r: f}
}
func (f *fakeTestServiceRepo) Section() repositories.SectionRepository { return nil }
func (f *fakeTestServiceRepo) Question() repositories.QuestionRepository {
	return &fakeTSQuestionRepo{r: f}
}
func (f *fakeTestServiceRepo) Test() repositories.TestRepository { return &fakeTSTestRepo{r: f} }
func (f *fakeTestServiceRepo) TestQuestion() repositories.TestQuestionRepository {
	return &fakeTSTestQuestionRepo{r: f}
}
func (f *fakeTestServiceRepo) Attempt() repositories.AttemptRepository {
	return &fakeTSAttemptRepo{r: f}
}
func (f *fakeTestServiceRepo) Response() repositories.ResponseRepository { return nil }
func (f *fakeTestServiceRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}
func (f *fakeTestServiceRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeTestServiceRepo) Close() error                   { return nil }

type fakeTSPatternRepo struct {
	repositories.PatternRepository
	r *fakeTestServiceRepo
}

func (f *fakeTSPatternRepo) GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.TestPattern, error) {
	pattern, ok := f.r.patterns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *pattern
	return &copied, nil
}

type fakeTSQuestionRepo struct {
	repositories.QuestionRepository
	r *fakeTestServiceRepo
}

func (f *fakeTSQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	var out []*models.Question
	seen := make(map[uint]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if q, ok := f.r.questions[id]; ok {
			copied := *q
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeTSTestRepo struct {
	repositories.TestRepository
	r *fakeTestServiceRepo
}

func (f *fakeTSTestRepo) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	test.ID = f.r.nextTestID
	f.r.nextTestID++
	copied := *test
	f.r.tests[test.ID] = &copied
	return nil
}

func (f *fakeTSTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	test, ok := f.r.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *test
	return &copied, nil
}

func (f *fakeTSTestRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TestStatus) error {
	test, ok := f.r.tests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	test.Status = status
	return nil
}

type fakeTSTestQuestionRepo struct {
	repositories.TestQuestionRepository
	r *fakeTestServiceRepo
}

func (f *fakeTSTestQuestionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.TestQuestion) error {
	for _, tq := range questions {
		tq.ID = f.r.nextTQID
		f.r.nextTQID++
		copied := *tq
		f.r.sequences[tq.TestID] = append(f.r.sequences[tq.TestID], &copied)
	}
	return nil
}

func (f *fakeTSTestQuestionRepo) DeleteByTest(ctx context.Context, tx *gorm.DB, testID uint) error {
	delete(f.r.sequences, testID)
	return nil
}

func (f *fakeTSTestQuestionRepo) CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error) {
	return int64(len(f.r.sequences[testID])), nil
}

func (f *fakeTSTestRepo) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.TestStats, error) {
	if f.r.testStats == nil {
		return &repositories.TestStats{}, nil
	}
	return f.r.testStats, nil
}

type fakeTSAttemptRepo struct {
	repositories.AttemptRepository
	r *fakeTestServiceRepo
}

func (f *fakeTSAttemptRepo) GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.AttemptStats, error) {
	if f.r.attemptStats == nil {
		return &repositories.AttemptStats{StatusBreakdown: map[models.AttemptStatus]int{}}, nil
	}
	return f.r.attemptStats, nil
}

// seedPattern installs a two-section pattern: 2 questions of 4 marks with
// negative 1, then 1 question of 2 marks, single-correct only.
func seedPattern(repo *fakeTestServiceRepo, negativeMarking bool) {
	repo.patterns[1] = &models.TestPattern{
		ID:             1,
		Name:           "Short Pattern",
		TotalQuestions: 3,
		TotalMarks:     10,
		ScoringRules:   models.ScoringRules{NegativeMarkingEnabled: negativeMarking},
		CreatedBy:      "teacher-1",
		Sections: []models.Section{
			{
				ID: 1, PatternID: 1, Name: "Part A", Position: 1,
				QuestionRange: models.QuestionRange{Start: 1, End: 2},
				QuestionCount: 2, MarksPerQuestion: 4, NegativeMarks: 1, PartialMarking: true,
				AllowedQuestionTypes: typesToJSON([]models.QuestionType{models.SingleCorrect, models.MultipleCorrect}),
			},
			{
				ID: 2, PatternID: 1, Name: "Part B", Position: 2,
				QuestionRange: models.QuestionRange{Start: 3, End: 3},
				QuestionCount: 1, MarksPerQuestion: 2, NegativeMarks: 0.5,
				AllowedQuestionTypes: typesToJSON([]models.QuestionType{models.SingleCorrect}),
			},
		},
	}

	repo.questions[101] = &models.Question{ID: 101, Type: models.SingleCorrect}
	repo.questions[102] = &models.Question{ID: 102, Type: models.MultipleCorrect}
	repo.questions[103] = &models.Question{ID: 103, Type: models.SingleCorrect}
	repo.questions[104] = &models.Question{ID: 104, Type: models.FreeText}
}

func newTestServiceUnderTest(repo *fakeTestServiceRepo) *testService {
	return &testService{
		repo:      repo,
		logger:    slog.New(slog.NewTextHandler(os.Stdout, nil)),
		validator: validator.New(),
	}
}

func createDraftTest(t *testing.T, service *testService) *TestResponse {
	t.Helper()

	created, err := service.Create(context.Background(), &CreateTestRequest{
		Title:           "Weekly Quiz",
		PatternID:       1,
		DurationMinutes: 60,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return created
}

func TestTestService_Create(t *testing.T) {
	repo := newFakeTestServiceRepo()
	seedPattern(repo, true)
	service := newTestServiceUnderTest(repo)

	created := createDraftTest(t, service)

	if created.Status != models.TestDraft {
		t.Errorf("Expected draft, got %s", created.Status)
	}
	if created.TimeWarningSeconds != 300 {
		t.Errorf("Expected default warning 300s, got %d", created.TimeWarningSeconds)
	}
	if !created.CanEdit {
		t.Error("Draft test should be editable")
	}
}

func TestTestService_BuildQuestionSequence(t *testing.T) {
	ctx := context.Background()

	t.Run("ResolvesMarksFromSection", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		resp, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 103},
		}, "teacher-1")
		if err != nil {
			t.Fatalf("BuildQuestionSequence failed: %v", err)
		}
		if resp.QuestionCount != 3 {
			t.Errorf("Expected 3 questions, got %d", resp.QuestionCount)
		}

		sequence := repo.sequences[created.ID]
		if sequence[0].Marks != 4 || sequence[0].NegativeMarks != 1 || !sequence[0].PartialMarking {
			t.Errorf("Position 1 marking wrong: %+v", sequence[0])
		}
		if sequence[2].Marks != 2 || sequence[2].NegativeMarks != 0.5 {
			t.Errorf("Position 3 marking wrong: %+v", sequence[2])
		}
		if sequence[2].SectionID != 2 {
			t.Errorf("Position 3 bound to section %d", sequence[2].SectionID)
		}
	})

	t.Run("NegativeMarksZeroedWhenPatternDisablesThem", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, false)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		_, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 103},
		}, "teacher-1")
		if err != nil {
			t.Fatalf("BuildQuestionSequence failed: %v", err)
		}

		for _, tq := range repo.sequences[created.ID] {
			if tq.NegativeMarks != 0 {
				t.Errorf("Question %d carries negative marks %v despite disabled negative marking",
					tq.QuestionID, tq.NegativeMarks)
			}
		}
	})

	t.Run("RejectsWrongCount", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		_, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102},
		}, "teacher-1")

		var validationErrs ValidationErrors
		if !errors.As(err, &validationErrs) {
			t.Errorf("Expected ValidationErrors, got %v", err)
		}
	})

	t.Run("RejectsDisallowedType", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		// Free text at position 3, where only single-correct is allowed.
		_, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 104},
		}, "teacher-1")

		var validationErrs ValidationErrors
		if !errors.As(err, &validationErrs) {
			t.Errorf("Expected ValidationErrors, got %v", err)
		}
	})

	t.Run("ReplacesExistingSequence", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		if _, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 103},
		}, "teacher-1"); err != nil {
			t.Fatalf("First build failed: %v", err)
		}
		if _, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{103, 101, 103},
		}, "teacher-1"); err != nil {
			t.Fatalf("Second build failed: %v", err)
		}

		sequence := repo.sequences[created.ID]
		if len(sequence) != 3 {
			t.Fatalf("Expected replaced sequence of 3, got %d", len(sequence))
		}
		if sequence[0].QuestionID != 103 {
			t.Errorf("Sequence not replaced: %+v", sequence[0])
		}
	})
}

func TestTestService_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsIncompleteSequence", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		err := service.Activate(ctx, created.ID, "teacher-1")

		var ruleErr *BusinessRuleError
		if !errors.As(err, &ruleErr) || ruleErr.Rule != "incomplete_sequence" {
			t.Errorf("Expected incomplete_sequence, got %v", err)
		}
	})

	t.Run("ActivatesFullSequence", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		if _, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 103},
		}, "teacher-1"); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if err := service.Activate(ctx, created.ID, "teacher-1"); err != nil {
			t.Fatalf("Activate failed: %v", err)
		}

		if repo.tests[created.ID].Status != models.TestActive {
			t.Errorf("Expected active, got %s", repo.tests[created.ID].Status)
		}
	})

	t.Run("SequenceLockedAfterActivation", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		if _, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{101, 102, 103},
		}, "teacher-1"); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if err := service.Activate(ctx, created.ID, "teacher-1"); err != nil {
			t.Fatalf("Activate failed: %v", err)
		}

		_, err := service.BuildQuestionSequence(ctx, created.ID, &BuildSequenceRequest{
			QuestionIDs: []uint{103, 102, 101},
		}, "teacher-1")

		var ruleErr *BusinessRuleError
		if !errors.As(err, &ruleErr) || ruleErr.Rule != "test_not_draft" {
			t.Errorf("Expected test_not_draft, got %v", err)
		}
	})
}

func TestTestService_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("AggregatesAttemptOutcomes", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		repo.testStats = &repositories.TestStats{
			TotalAttempts:     12,
			CompletedAttempts: 9,
			ExpiredAttempts:   2,
			AverageScore:      6.5,
			HighestScore:      10,
		}
		repo.attemptStats = &repositories.AttemptStats{
			TotalAttempts: 12,
			StatusBreakdown: map[models.AttemptStatus]int{
				models.AttemptSubmitted:  9,
				models.AttemptExpired:    2,
				models.AttemptInProgress: 1,
			},
		}

		stats, err := service.Stats(ctx, created.ID, "teacher-1")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.TestID != created.ID {
			t.Errorf("Expected test %d, got %d", created.ID, stats.TestID)
		}
		if stats.TotalAttempts != 12 || stats.CompletedAttempts != 9 {
			t.Errorf("Unexpected totals: %+v", stats.TestStats)
		}
		if stats.StatusBreakdown[models.AttemptSubmitted] != 9 {
			t.Errorf("Unexpected breakdown: %v", stats.StatusBreakdown)
		}
	})

	t.Run("RejectsForeignOwner", func(t *testing.T) {
		repo := newFakeTestServiceRepo()
		seedPattern(repo, true)
		service := newTestServiceUnderTest(repo)
		created := createDraftTest(t, service)

		_, err := service.Stats(ctx, created.ID, "someone-else")

		var permErr *PermissionError
		if !errors.As(err, &permErr) {
			t.Errorf("Expected PermissionError, got %v", err)
		}
	})
}
