package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/weberitsol/assessment-engine/internal/models"
)

// scoreQuestion grades a single response against its question's answer key.
// Pure function over the loaded test question and response; no I/O.
func scoreQuestion(tq *models.TestQuestion, resp *models.TestResponse) models.QuestionScore {
	score := models.QuestionScore{
		TestQuestionID: tq.ID,
		SequenceOrder:  tq.SequenceOrder,
		MaxMarks:       tq.Marks,
	}

	if isUnanswered(resp) {
		score.Outcome = models.OutcomeUnanswered
		return score
	}

	qType := tq.Question.Type
	if !qType.AutoScorable() {
		score.Outcome = models.OutcomePendingManual
		return score
	}

	switch qType {
	case models.SingleCorrect, models.TrueFalse:
		score.Awarded, score.Outcome = scoreSingleCorrect(tq, resp)
	case models.MultipleCorrect:
		score.Awarded, score.Outcome = scoreMultipleCorrect(tq, resp)
	case models.MatrixMatch:
		score.Awarded, score.Outcome = scoreMatrixMatch(tq, resp)
	case models.Integer:
		score.Awarded, score.Outcome = scoreInteger(tq, resp)
	default:
		score.Outcome = models.OutcomePendingManual
	}

	score.Awarded = clampAward(score.Awarded, tq.NegativeMarks)
	return score
}

// isUnanswered inspects the raw selection JSON rather than a decoded form:
// matrix-match stores pair objects, choice types store option ID strings,
// and both count as answered when the array is non-empty.
func isUnanswered(resp *models.TestResponse) bool {
	if strings.TrimSpace(resp.ResponseText) != "" {
		return false
	}
	if len(resp.SelectedOptions) == 0 {
		return true
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(resp.SelectedOptions, &elements); err != nil {
		return true
	}
	return len(elements) == 0
}

func selectedOptions(resp *models.TestResponse) []string {
	if len(resp.SelectedOptions) == 0 {
		return nil
	}
	var options []string
	if err := json.Unmarshal(resp.SelectedOptions, &options); err != nil {
		return nil
	}
	return options
}

func scoreSingleCorrect(tq *models.TestQuestion, resp *models.TestResponse) (float64, models.ScoreOutcome) {
	var key models.SingleCorrectKey
	if err := json.Unmarshal(tq.Question.AnswerKey, &key); err != nil {
		return 0, models.OutcomePendingManual
	}

	selected := selectedOptions(resp)
	if len(selected) == 1 && selected[0] == key.Correct {
		return tq.Marks, models.OutcomeCorrect
	}
	return -tq.NegativeMarks, models.OutcomeIncorrect
}

// scoreMultipleCorrect applies the forfeit rule: a single wrong selection
// forfeits the whole question regardless of how many correct options were
// also picked. A clean subset earns proportional marks when the section
// allows partial marking, zero otherwise.
func scoreMultipleCorrect(tq *models.TestQuestion, resp *models.TestResponse) (float64, models.ScoreOutcome) {
	var key models.MultipleCorrectKey
	if err := json.Unmarshal(tq.Question.AnswerKey, &key); err != nil {
		return 0, models.OutcomePendingManual
	}

	correct := make(map[string]bool, len(key.Correct))
	for _, id := range key.Correct {
		correct[id] = true
	}

	// Selections come straight from the client; duplicates must not inflate
	// the matched count.
	seen := make(map[string]bool)
	matched := 0
	for _, id := range selectedOptions(resp) {
		if !correct[id] {
			return -tq.NegativeMarks, models.OutcomeIncorrect
		}
		if !seen[id] {
			seen[id] = true
			matched++
		}
	}

	if matched == len(correct) {
		return tq.Marks, models.OutcomeCorrect
	}
	if tq.PartialMarking {
		return tq.Marks * float64(matched) / float64(len(correct)), models.OutcomePartial
	}
	return 0, models.OutcomeIncorrect
}

func scoreMatrixMatch(tq *models.TestQuestion, resp *models.TestResponse) (float64, models.ScoreOutcome) {
	var key models.MatrixMatchKey
	if err := json.Unmarshal(tq.Question.AnswerKey, &key); err != nil {
		return 0, models.OutcomePendingManual
	}
	if len(key.Pairs) == 0 {
		return 0, models.OutcomePendingManual
	}

	var given []models.MatrixPair
	if err := json.Unmarshal(resp.SelectedOptions, &given); err != nil {
		return -tq.NegativeMarks, models.OutcomeIncorrect
	}

	expected := make(map[string]string, len(key.Pairs))
	for _, pair := range key.Pairs {
		expected[pair.LeftID] = pair.RightID
	}

	// Only the first pairing per left item counts; repeated pairs must not
	// inflate the matched count.
	matched := 0
	seen := make(map[string]bool)
	for _, pair := range given {
		if seen[pair.LeftID] {
			continue
		}
		seen[pair.LeftID] = true
		if expected[pair.LeftID] == pair.RightID {
			matched++
		}
	}

	switch {
	case matched == len(key.Pairs):
		return tq.Marks, models.OutcomeCorrect
	case matched == 0:
		return -tq.NegativeMarks, models.OutcomeIncorrect
	case tq.PartialMarking:
		return tq.Marks * float64(matched) / float64(len(key.Pairs)), models.OutcomePartial
	default:
		return 0, models.OutcomeIncorrect
	}
}

func scoreInteger(tq *models.TestQuestion, resp *models.TestResponse) (float64, models.ScoreOutcome) {
	var key models.IntegerKey
	if err := json.Unmarshal(tq.Question.AnswerKey, &key); err != nil {
		return 0, models.OutcomePendingManual
	}

	expected, err := strconv.ParseFloat(strings.TrimSpace(key.Value), 64)
	if err != nil {
		return 0, models.OutcomePendingManual
	}

	given, err := strconv.ParseFloat(strings.TrimSpace(resp.ResponseText), 64)
	if err != nil {
		return -tq.NegativeMarks, models.OutcomeIncorrect
	}

	tolerance := 0.0
	if key.Tolerance != nil {
		tolerance = *key.Tolerance
	}

	if math.Abs(given-expected) <= tolerance {
		return tq.Marks, models.OutcomeCorrect
	}
	return -tq.NegativeMarks, models.OutcomeIncorrect
}

// clampAward keeps a single question's award within [-negativeMarks, +inf).
// The attempt aggregate is deliberately not clamped and may be negative.
func clampAward(awarded, negativeMarks float64) float64 {
	if awarded < -negativeMarks {
		return -negativeMarks
	}
	return awarded
}

// aggregateScores folds per-question verdicts into the attempt result.
func aggregateScores(attemptID uint, scores []models.QuestionScore) *models.ScoreResult {
	result := &models.ScoreResult{
		AttemptID: attemptID,
		Questions: scores,
	}

	for _, s := range scores {
		result.TotalScore += s.Awarded
		result.MaxScore += s.MaxMarks

		switch s.Outcome {
		case models.OutcomeCorrect:
			result.CorrectCount++
		case models.OutcomeIncorrect:
			result.IncorrectCount++
		case models.OutcomePartial:
			result.PartialCount++
		case models.OutcomeUnanswered:
			result.UnansweredCount++
		case models.OutcomePendingManual:
			result.PendingManualCount++
		}
	}

	return result
}
