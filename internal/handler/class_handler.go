package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ScepterCode/class-admission-api/internal/service"
	"github.com/ScepterCode/class-admission-api/pkg/response"
)

// ClassHandler exposes class capacity endpoints.
type ClassHandler struct {
	enrollments *service.EnrollmentService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(enrollments *service.EnrollmentService) *ClassHandler {
	return &ClassHandler{enrollments: enrollments}
}

// Seats godoc
// @Summary Get the seat summary for a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/seats [get]
func (h *ClassHandler) Seats(c *gin.Context) {
	summary, err := h.enrollments.SeatSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
