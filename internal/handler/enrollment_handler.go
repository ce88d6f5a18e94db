package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/response"
)

type enrollmentEngine interface {
	LoadEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
	CheckConflict(ctx context.Context, studentID, courseID string) models.ConflictResult
	EnrollFor(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error)
	WithdrawFor(ctx context.Context, studentID, courseID string) error
	IsEnrolled(courseID string) bool
	Records() []models.EnrollmentRecord
	Summary() models.EnrollmentSummary
}

// EnrollmentHandler exposes the enrollment cache and its mutations.
type EnrollmentHandler struct {
	engine enrollmentEngine
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(engine enrollmentEngine) *EnrollmentHandler {
	return &EnrollmentHandler{engine: engine}
}

// List godoc
// @Summary Cached enrollments
// @Description Return the cached enrollments; reload=true fetches them from the enrollment API first
// @Tags Enrollments
// @Produce json
// @Param reload query bool false "Reload from the server"
// @Param studentId query string false "Student (defaults to the signed-in student)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	reload, _ := strconv.ParseBool(c.DefaultQuery("reload", "false"))
	if !reload {
		response.JSON(c, http.StatusOK, h.engine.Records(), nil, map[string]interface{}{"cached": true})
		return
	}

	records, err := h.engine.LoadEnrollments(c.Request.Context(), c.Query("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil, map[string]interface{}{"cached": false})
}

// Summary godoc
// @Summary Enrollment summary
// @Description Count cached enrollments per status
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/summary [get]
func (h *EnrollmentHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.engine.Summary(), nil)
}

// Conflicts godoc
// @Summary Pre-flight conflict check
// @Description Advisory check; failures are reported as no conflict
// @Tags Enrollments
// @Produce json
// @Param courseId query string true "Course ID"
// @Param studentId query string false "Student (defaults to the signed-in student)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollments/conflicts [get]
func (h *EnrollmentHandler) Conflicts(c *gin.Context) {
	courseID := c.Query("courseId")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseId is required"))
		return
	}
	result := h.engine.CheckConflict(c.Request.Context(), c.Query("studentId"), courseID)
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Enrollment status for a course
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/courses/{courseId} [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	courseID := c.Param("courseId")
	response.JSON(c, http.StatusOK, gin.H{"courseId": courseID, "enrolled": h.engine.IsEnrolled(courseID)}, nil)
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Create the enrollment upstream and cache the confirmed record
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId query string false "Student (defaults to the signed-in student)"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/courses/{courseId} [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	record, err := h.engine.EnrollFor(c.Request.Context(), c.Query("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Withdraw godoc
// @Summary Withdraw from a course
// @Description Delete the enrollment upstream; a background reload follows either way
// @Tags Enrollments
// @Param courseId path string true "Course ID"
// @Param studentId query string false "Student (defaults to the signed-in student)"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /enrollments/courses/{courseId} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	if err := h.engine.WithdrawFor(c.Request.Context(), c.Query("studentId"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
