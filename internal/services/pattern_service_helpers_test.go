package services

import (
	"testing"

	"github.com/weberitsol/assessment-engine/internal/models"
)

func TestDeriveRanges(t *testing.T) {
	t.Run("ContiguousFromOne", func(t *testing.T) {
		sections := []*models.Section{
			{Position: 1, QuestionCount: 25},
			{Position: 2, QuestionCount: 30},
			{Position: 3, QuestionCount: 20},
		}

		deriveRanges(sections)

		expected := []models.QuestionRange{
			{Start: 1, End: 25},
			{Start: 26, End: 55},
			{Start: 56, End: 75},
		}
		for i, want := range expected {
			if sections[i].QuestionRange != want {
				t.Errorf("Section %d: expected range %+v, got %+v", i, want, sections[i].QuestionRange)
			}
		}
	})

	t.Run("SingleSection", func(t *testing.T) {
		sections := []*models.Section{{Position: 1, QuestionCount: 10}}

		deriveRanges(sections)

		if sections[0].QuestionRange != (models.QuestionRange{Start: 1, End: 10}) {
			t.Errorf("Expected range 1-10, got %+v", sections[0].QuestionRange)
		}
	})

	t.Run("ReflowAfterRemoval", func(t *testing.T) {
		// Middle section removed; remaining sections close the gap.
		sections := []*models.Section{
			{Position: 1, QuestionCount: 25, QuestionRange: models.QuestionRange{Start: 1, End: 25}},
			{Position: 2, QuestionCount: 20, QuestionRange: models.QuestionRange{Start: 56, End: 75}},
		}

		deriveRanges(sections)

		if sections[1].QuestionRange != (models.QuestionRange{Start: 26, End: 45}) {
			t.Errorf("Expected range 26-45, got %+v", sections[1].QuestionRange)
		}
	})
}

func TestNormalizeQuestionTypes(t *testing.T) {
	t.Run("EmptyFallsBackToFullSet", func(t *testing.T) {
		types := normalizeQuestionTypes(nil)

		if len(types) != len(models.AllQuestionTypes) {
			t.Errorf("Expected %d types, got %d", len(models.AllQuestionTypes), len(types))
		}
	})

	t.Run("InvalidEntriesDropped", func(t *testing.T) {
		types := normalizeQuestionTypes([]models.QuestionType{
			models.SingleCorrect,
			"essay_3000_words",
			models.Integer,
		})

		if len(types) != 2 {
			t.Fatalf("Expected 2 types, got %d", len(types))
		}
		if types[0] != models.SingleCorrect || types[1] != models.Integer {
			t.Errorf("Unexpected types: %v", types)
		}
	})

	t.Run("OnlyInvalidFallsBackToFullSet", func(t *testing.T) {
		types := normalizeQuestionTypes([]models.QuestionType{"haiku"})

		if len(types) != len(models.AllQuestionTypes) {
			t.Errorf("Expected %d types, got %d", len(models.AllQuestionTypes), len(types))
		}
	})

	t.Run("ValidSetKeptAsIs", func(t *testing.T) {
		in := []models.QuestionType{models.MultipleCorrect, models.MatrixMatch}
		types := normalizeQuestionTypes(in)

		if len(types) != 2 || types[0] != models.MultipleCorrect || types[1] != models.MatrixMatch {
			t.Errorf("Unexpected types: %v", types)
		}
	})
}

func TestPatternRecompute(t *testing.T) {
	pattern := &models.TestPattern{
		Sections: []models.Section{
			{QuestionCount: 25, MarksPerQuestion: 4},
			{QuestionCount: 30, MarksPerQuestion: 2},
		},
	}

	pattern.Recompute()

	if pattern.TotalQuestions != 55 {
		t.Errorf("Expected 55 total questions, got %d", pattern.TotalQuestions)
	}
	if pattern.TotalMarks != 160 {
		t.Errorf("Expected 160 total marks, got %v", pattern.TotalMarks)
	}
}

func TestSectionFor(t *testing.T) {
	pattern := &models.TestPattern{
		Sections: []models.Section{
			{ID: 1, QuestionRange: models.QuestionRange{Start: 1, End: 25}},
			{ID: 2, QuestionRange: models.QuestionRange{Start: 26, End: 55}},
		},
	}

	t.Run("BoundaryStart", func(t *testing.T) {
		if s := pattern.SectionFor(26); s == nil || s.ID != 2 {
			t.Errorf("Expected section 2 for question 26")
		}
	})

	t.Run("BoundaryEnd", func(t *testing.T) {
		if s := pattern.SectionFor(25); s == nil || s.ID != 1 {
			t.Errorf("Expected section 1 for question 25")
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		if s := pattern.SectionFor(56); s != nil {
			t.Errorf("Expected nil for question 56, got section %d", s.ID)
		}
	})
}

func TestApplySectionUpdate(t *testing.T) {
	name := "Physics II"
	count := 40
	marks := 3.0

	section := &models.Section{
		Name:             "Physics",
		QuestionCount:    25,
		MarksPerQuestion: 4,
		NegativeMarks:    1,
	}

	applySectionUpdate(section, &SectionUpdateRequest{
		Name:             &name,
		QuestionCount:    &count,
		MarksPerQuestion: &marks,
	})

	if section.Name != "Physics II" || section.QuestionCount != 40 || section.MarksPerQuestion != 3 {
		t.Errorf("Update not applied: %+v", section)
	}
	if section.NegativeMarks != 1 {
		t.Errorf("Untouched field changed: %v", section.NegativeMarks)
	}
}

func TestPageFromFilters(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		page, size := pageFromFilters(0, 0)
		if page != 1 || size != 20 {
			t.Errorf("Expected page 1 size 20, got page %d size %d", page, size)
		}
	})

	t.Run("SecondPage", func(t *testing.T) {
		page, size := pageFromFilters(10, 10)
		if page != 2 || size != 10 {
			t.Errorf("Expected page 2 size 10, got page %d size %d", page, size)
		}
	})
}
