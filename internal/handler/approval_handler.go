package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ScepterCode/class-admission-api/internal/service"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
	"github.com/ScepterCode/class-admission-api/pkg/response"
)

// ApprovalHandler exposes the manual review queue.
type ApprovalHandler struct {
	approvals *service.ApprovalService
}

// NewApprovalHandler constructs ApprovalHandler.
func NewApprovalHandler(approvals *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

type reviewPayload struct {
	Notes string `json:"notes"`
}

// ListPending godoc
// @Summary List enrollment requests awaiting review
// @Tags Approvals
// @Produce json
// @Param classId query string false "Filter by class"
// @Success 200 {object} response.Envelope
// @Router /enrollments/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	records, err := h.approvals.ListPending(c.Request.Context(), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Approve godoc
// @Summary Approve a pending enrollment request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Enrollment record ID"
// @Param payload body reviewPayload false "Review notes"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload reviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.approvals.Approve(c.Request.Context(), c.Param("id"), service.ReviewRequest{
		ReviewerID: claims.UserID,
		Notes:      payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject a pending enrollment request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Enrollment record ID"
// @Param payload body reviewPayload false "Review notes"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload reviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.approvals.Reject(c.Request.Context(), c.Param("id"), service.ReviewRequest{
		ReviewerID: claims.UserID,
		Notes:      payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
