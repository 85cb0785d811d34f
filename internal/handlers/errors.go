package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weberitsol/assessment-engine/internal/services"
)

// handleServiceError maps service layer errors onto HTTP status codes.
// Typed errors first, then the sentinel switch.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var invalidState *services.InvalidStateError
	if errors.As(err, &invalidState) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: invalidState.Error(),
			Details: map[string]interface{}{
				"resource": invalidState.Resource,
				"status":   invalidState.Status,
				"action":   invalidState.Action,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrPatternNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Pattern not found"})
	case errors.Is(err, services.ErrSectionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Section not found"})
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Test not found"})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found"})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Attempt not found"})
	case errors.Is(err, services.ErrResponseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Response not found"})
	case errors.Is(err, services.ErrAttemptAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Access denied to attempt"})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not active"})
	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt already submitted"})
	case errors.Is(err, services.ErrAttemptTimeExpired):
		c.JSON(http.StatusGone, ErrorResponse{Message: "Attempt time has expired"})
	case errors.Is(err, services.ErrLastSection):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Pattern must keep at least one section"})
	case errors.Is(err, services.ErrTestNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Test is not active"})
	case errors.Is(err, services.ErrPatternInUse):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Pattern is referenced by existing tests"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
