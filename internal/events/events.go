package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics carrying attempt lifecycle and grading events.
const (
	TopicAttempts = "assessment.attempts"
	TopicResults  = "assessment.results"
)

// Event types
const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
	EventResultGraded     = "result.graded"
)

// Event is the envelope every published message uses.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with generated ID and current timestamp.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "assessment-engine",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// TopicFor maps an event type to its Kafka topic.
func TopicFor(eventType string) string {
	switch eventType {
	case EventResultGraded:
		return TopicResults
	default:
		return TopicAttempts
	}
}

// ===== EVENT PAYLOADS =====

type AttemptStartedEvent struct {
	AttemptID       uint      `json:"attempt_id"`
	TestID          uint      `json:"test_id"`
	CandidateID     string    `json:"candidate_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Resumed         bool      `json:"resumed"`
}

type AttemptSubmittedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	TestID      uint      `json:"test_id"`
	CandidateID string    `json:"candidate_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	EndReason   string    `json:"end_reason"`
}

type AttemptExpiredEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	TestID      uint      `json:"test_id"`
	CandidateID string    `json:"candidate_id"`
	ExpiredAt   time.Time `json:"expired_at"`
}

type ResultGradedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	TestID      uint      `json:"test_id"`
	CandidateID string    `json:"candidate_id"`
	TotalScore  float64   `json:"total_score"`
	MaxScore    float64   `json:"max_score"`
	GradedAt    time.Time `json:"graded_at"`
}
