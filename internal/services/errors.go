package services

import (
	"errors"
	"fmt"

	"github.com/weberitsol/assessment-engine/internal/models"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

// Sentinel errors for not-found and state conflicts
var (
	ErrPatternNotFound  = errors.New("pattern not found")
	ErrSectionNotFound  = errors.New("section not found")
	ErrTestNotFound     = errors.New("test not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrResponseNotFound = errors.New("response not found")

	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time has expired")
	ErrAttemptAccessDenied     = errors.New("access denied to attempt")

	ErrLastSection   = errors.New("pattern must keep at least one section")
	ErrTestNotActive = errors.New("test is not active")
	ErrPatternInUse  = errors.New("pattern is referenced by existing tests")
)

// ValidationError and ValidationErrors are shared with the validator package
// so handlers can match either origin with a single errors.As.
type (
	ValidationError  = validator.ValidationError
	ValidationErrors = validator.ValidationErrors
)

// NewValidationError builds a single-field validation failure.
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value}}
}

// BusinessRuleError reports a domain rule violation that field validation
// cannot express.
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Context: context}
}

// InvalidStateError reports a mutation rejected because the target is in a
// state that forbids it, such as saving a response into a submitted attempt.
type InvalidStateError struct {
	Resource string               `json:"resource"`
	ID       uint                 `json:"id"`
	Status   models.AttemptStatus `json:"status"`
	Action   string               `json:"action"`
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d is %s, cannot %s", e.Resource, e.ID, e.Status, e.Action)
}

func NewInvalidStateError(resource string, id uint, status models.AttemptStatus, action string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, ID: id, Status: status, Action: action}
}

// PermissionError reports an authorization failure on a resource action.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// SyncFailure is a non-fatal response sync error. Autosave swallows these
// after logging; the candidate keeps working and a later sync retries.
type SyncFailure struct {
	AttemptID uint
	Cause     error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("response sync failed for attempt %d: %v", e.AttemptID, e.Cause)
}

func (e *SyncFailure) Unwrap() error { return e.Cause }

// SubmissionFailure is a fatal submit error that must surface to the caller.
type SubmissionFailure struct {
	AttemptID uint
	Cause     error
}

func (e *SubmissionFailure) Error() string {
	return fmt.Sprintf("submission failed for attempt %d: %v", e.AttemptID, e.Cause)
}

func (e *SubmissionFailure) Unwrap() error { return e.Cause }
