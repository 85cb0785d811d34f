package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weberitsol/assessment-engine/internal/repositories"
	"github.com/weberitsol/assessment-engine/internal/services"
	"github.com/weberitsol/assessment-engine/internal/utils"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

type PatternHandler struct {
	BaseHandler
	patternService services.PatternService
	validator      *validator.Validator
}

func NewPatternHandler(
	patternService services.PatternService,
	validator *validator.Validator,
	logger utils.Logger,
) *PatternHandler {
	return &PatternHandler{
		BaseHandler:    NewBaseHandler(logger),
		patternService: patternService,
		validator:      validator,
	}
}

// CreatePattern creates a test pattern
// @Summary Create test pattern
// @Description Creates a test pattern with its initial sections
// @Tags patterns
// @Accept json
// @Produce json
// @Param pattern body services.CreatePatternRequest true "Pattern data"
// @Success 201 {object} services.PatternResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /patterns [post]
func (h *PatternHandler) CreatePattern(c *gin.Context) {
	h.LogRequest(c, "Creating test pattern")

	var req services.CreatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	pattern, err := h.patternService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pattern)
}

// GetPattern retrieves a pattern with its sections
// @Summary Get pattern
// @Description Retrieves a pattern by ID with sections and derived ranges
// @Tags patterns
// @Produce json
// @Param id path uint true "Pattern ID"
// @Success 200 {object} services.PatternResponse
// @Failure 404 {object} ErrorResponse
// @Router /patterns/{id} [get]
func (h *PatternHandler) GetPattern(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting pattern", "pattern_id", id)

	pattern, err := h.patternService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pattern)
}

// UpdatePattern updates pattern-level fields
// @Summary Update pattern
// @Tags patterns
// @Accept json
// @Produce json
// @Param id path uint true "Pattern ID"
// @Param pattern body services.UpdatePatternRequest true "Pattern updates"
// @Success 200 {object} services.PatternResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /patterns/{id} [put]
func (h *PatternHandler) UpdatePattern(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating pattern", "pattern_id", id)

	var req services.UpdatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	pattern, err := h.patternService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pattern)
}

// DeletePattern deletes a pattern that no test references
// @Summary Delete pattern
// @Tags patterns
// @Produce json
// @Param id path uint true "Pattern ID"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /patterns/{id} [delete]
func (h *PatternHandler) DeletePattern(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting pattern", "pattern_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.patternService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Pattern deleted successfully",
	})
}

// ListPatterns lists patterns with filters
// @Summary List patterns
// @Tags patterns
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param name query string false "Name filter"
// @Success 200 {object} services.PatternListResponse
// @Router /patterns [get]
func (h *PatternHandler) ListPatterns(c *gin.Context) {
	h.LogRequest(c, "Listing patterns")

	filters := h.parsePatternFilters(c)

	patterns, err := h.patternService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, patterns)
}

// AddSection appends a section to a pattern
// @Summary Add section
// @Description Appends a section; all section ranges are rederived
// @Tags patterns
// @Accept json
// @Produce json
// @Param id path uint true "Pattern ID"
// @Param section body services.SectionCreateRequest true "Section data"
// @Success 200 {object} services.PatternResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /patterns/{id}/sections [post]
func (h *PatternHandler) AddSection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Adding section", "pattern_id", id)

	var req services.SectionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	pattern, err := h.patternService.AddSection(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pattern)
}

// UpdateSection edits a section in place
// @Summary Update section
// @Description Edits a section; only its own range end is recomputed
// @Tags patterns
// @Accept json
// @Produce json
// @Param id path uint true "Pattern ID"
// @Param section_id path uint true "Section ID"
// @Param section body services.SectionUpdateRequest true "Section updates"
// @Success 200 {object} services.PatternResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /patterns/{id}/sections/{section_id} [put]
func (h *PatternHandler) UpdateSection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	sectionID := h.parseIDParam(c, "section_id")
	if sectionID == 0 {
		return
	}

	h.LogRequest(c, "Updating section", "pattern_id", id, "section_id", sectionID)

	var req services.SectionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	pattern, err := h.patternService.UpdateSection(c.Request.Context(), id, sectionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pattern)
}

// RemoveSection removes a section from a pattern
// @Summary Remove section
// @Description Removes a section; remaining ranges are rederived. The last
// section of a pattern cannot be removed.
// @Tags patterns
// @Produce json
// @Param id path uint true "Pattern ID"
// @Param section_id path uint true "Section ID"
// @Success 200 {object} services.PatternResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /patterns/{id}/sections/{section_id} [delete]
func (h *PatternHandler) RemoveSection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	sectionID := h.parseIDParam(c, "section_id")
	if sectionID == 0 {
		return
	}

	h.LogRequest(c, "Removing section", "pattern_id", id, "section_id", sectionID)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	pattern, err := h.patternService.RemoveSection(c.Request.Context(), id, sectionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, pattern)
}

func (h *PatternHandler) parsePatternFilters(c *gin.Context) repositories.PatternFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.PatternFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if name := strings.TrimSpace(c.Query("name")); name != "" {
		filters.Name = &name
	}
	if creator := strings.TrimSpace(c.Query("created_by")); creator != "" {
		filters.CreatedBy = &creator
	}

	return filters
}
