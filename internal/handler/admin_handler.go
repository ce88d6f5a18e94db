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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type enrollmentLister interface {
	ListAll(ctx context.Context, page, limit int) ([]models.EnrollmentRecord, *models.Pagination, error)
}

// AdminHandler serves the unscoped admin listings.
type AdminHandler struct {
	enrollments enrollmentLister
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(enrollments enrollmentLister) *AdminHandler {
	return &AdminHandler{enrollments: enrollments}
}

// ListEnrollments godoc
// @Summary All enrollments
// @Description Page through every enrollment. Admin only; not cached.
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/enrollments [get]
func (h *AdminHandler) ListEnrollments(c *gin.Context) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, err := positiveQuery(c, "limit", defaultPageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	records, pagination, err := h.enrollments.ListAll(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a positive integer")
	}
	return v, nil
}
