package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ScepterCode/class-admission-api/internal/service"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
	"github.com/ScepterCode/class-admission-api/pkg/response"
)

// EnrollmentHandler exposes admission endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Request godoc
// @Summary Request enrollment in a class
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.RequestEnrollmentRequest true "Enrollment request"
// @Success 201 {object} response.Envelope
// @Router /enrollments/request [post]
func (h *EnrollmentHandler) Request(c *gin.Context) {
	var req service.RequestEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.RequestEnrollment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Bulk godoc
// @Summary Enroll a batch of students into one class
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkEnrollRequest true "Bulk enrollment payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/bulk [post]
func (h *EnrollmentHandler) Bulk(c *gin.Context) {
	var req service.BulkEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	summary, err := h.enrollments.BulkEnroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Withdraw godoc
// @Summary Withdraw an enrollment or cancel a pending request
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment record ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	result, err := h.enrollments.Withdraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
