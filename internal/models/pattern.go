package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestPattern partitions a test's questions into scored sections. Totals
// are recomputed on every mutation and never stored stale.
type TestPattern struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`

	// Derived from sections; recomputed after any section mutation.
	TotalQuestions int     `json:"total_questions" gorm:"not null"`
	TotalMarks     float64 `json:"total_marks" gorm:"not null"`

	ScoringRules ScoringRules `json:"scoring_rules" gorm:"embedded;embeddedPrefix:scoring_"`

	CreatedBy string         `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Sections []Section `json:"sections" gorm:"foreignKey:PatternID"`
}

type ScoringRules struct {
	NegativeMarkingEnabled bool `json:"negative_marking_enabled" gorm:"default:false"`
}

// QuestionRange is a 1-based inclusive span of question numbers.
type QuestionRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Section struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	PatternID uint   `json:"pattern_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null;size:200" validate:"required"`
	SubjectID *uint  `json:"subject_id" gorm:"index"`

	// Position of the section within the pattern; ranges are derived from
	// this order.
	Position int `json:"position" gorm:"not null"`

	QuestionRange    QuestionRange `json:"question_range" gorm:"embedded;embeddedPrefix:range_"`
	QuestionCount    int           `json:"question_count" gorm:"not null" validate:"min=1"`
	MarksPerQuestion float64       `json:"marks_per_question" gorm:"not null" validate:"min=0"`
	NegativeMarks    float64       `json:"negative_marks" gorm:"default:0" validate:"min=0"`

	// []QuestionType; never empty (auto-corrected to a default set).
	AllowedQuestionTypes datatypes.JSON `json:"allowed_question_types" gorm:"type:jsonb"`

	// Informational sub-budget in minutes; not enforced by the timer.
	Duration       *int `json:"duration"`
	PartialMarking bool `json:"partial_marking" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TestPattern) TableName() string {
	return "test_patterns"
}

func (Section) TableName() string {
	return "pattern_sections"
}

// Recompute re-derives TotalQuestions and TotalMarks from the current
// sections. Question ranges are NOT touched here; range derivation is the
// pattern service's job because add/remove re-flows ranges while a field
// edit deliberately does not cascade.
func (p *TestPattern) Recompute() {
	total := 0
	marks := 0.0
	for _, s := range p.Sections {
		total += s.QuestionCount
		marks += float64(s.QuestionCount) * s.MarksPerQuestion
	}
	p.TotalQuestions = total
	p.TotalMarks = marks
}

// SectionFor returns the section whose range covers the 1-based question
// number, or nil when no section covers it.
func (p *TestPattern) SectionFor(questionNumber int) *Section {
	for i := range p.Sections {
		r := p.Sections[i].QuestionRange
		if questionNumber >= r.Start && questionNumber <= r.End {
			return &p.Sections[i]
		}
	}
	return nil
}
