package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/weberitsol/assessment-engine/internal/services"
	"github.com/weberitsol/assessment-engine/internal/utils"
	"github.com/weberitsol/assessment-engine/internal/validator"
)

type HandlerManager struct {
	patternHandler *PatternHandler
	testHandler    *TestHandler
	attemptHandler *AttemptHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		patternHandler: NewPatternHandler(serviceManager.Pattern(), validator, logger),
		testHandler:    NewTestHandler(serviceManager.Test(), validator, logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), serviceManager.Scoring(), validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with gateway-forwarded identity
	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		// Pattern routes
		patterns := v1.Group("/patterns")
		{
			patterns.POST("", hm.patternHandler.CreatePattern)
			patterns.GET("", hm.patternHandler.ListPatterns)
			patterns.GET("/:id", hm.patternHandler.GetPattern)
			patterns.PUT("/:id", hm.patternHandler.UpdatePattern)
			patterns.DELETE("/:id", hm.patternHandler.DeletePattern)

			// Section management
			patterns.POST("/:id/sections", hm.patternHandler.AddSection)
			patterns.PUT("/:id/sections/:section_id", hm.patternHandler.UpdateSection)
			patterns.DELETE("/:id/sections/:section_id", hm.patternHandler.RemoveSection)
		}

		// Test routes
		tests := v1.Group("/tests")
		{
			tests.POST("", hm.testHandler.CreateTest)
			tests.GET("", hm.testHandler.ListTests)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.GET("/:id/questions", hm.testHandler.GetTestWithQuestions)
			tests.PUT("/:id/questions", hm.testHandler.BuildQuestionSequence)
			tests.POST("/:id/activate", hm.testHandler.ActivateTest)
			tests.POST("/:id/archive", hm.testHandler.ArchiveTest)
			tests.GET("/:id/stats", hm.testHandler.GetTestStats)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("", hm.attemptHandler.ListMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.POST("/:id/responses", hm.attemptHandler.SaveResponse)
			attempts.POST("/:id/responses/batch", hm.attemptHandler.SaveResponses)
			attempts.GET("/:id/summary", hm.attemptHandler.GetSummary)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.POST("/:id/timeout", hm.attemptHandler.HandleTimeout)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "assessment-engine",
		})
	})
}
