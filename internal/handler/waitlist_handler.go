package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ScepterCode/class-admission-api/internal/service"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
	"github.com/ScepterCode/class-admission-api/pkg/response"
)

// WaitlistHandler exposes waitlist queue endpoints.
type WaitlistHandler struct {
	waitlists   *service.WaitlistService
	enrollments *service.EnrollmentService
	sweeper     *service.ExpiryService
}

// NewWaitlistHandler constructs WaitlistHandler.
func NewWaitlistHandler(waitlists *service.WaitlistService, enrollments *service.EnrollmentService, sweeper *service.ExpiryService) *WaitlistHandler {
	return &WaitlistHandler{waitlists: waitlists, enrollments: enrollments, sweeper: sweeper}
}

// Add godoc
// @Summary Add a student to a class waitlist
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.AddToWaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/waitlist [post]
func (h *WaitlistHandler) Add(c *gin.Context) {
	var req service.AddToWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlists.Add(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Remove godoc
// @Summary Remove a student from a class waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /classes/{id}/waitlist/{studentId} [delete]
func (h *WaitlistHandler) Remove(c *gin.Context) {
	if err := h.waitlists.Remove(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Position godoc
// @Summary Get a student's waitlist position
// @Tags Waitlist
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/waitlist/{studentId}/position [get]
func (h *WaitlistHandler) Position(c *gin.Context) {
	status, err := h.waitlists.Status(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Probability godoc
// @Summary Estimate a student's chance of admission from the waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/waitlist/{studentId}/probability [get]
func (h *WaitlistHandler) Probability(c *gin.Context) {
	status, err := h.waitlists.Status(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"class_id":    status.ClassID,
		"student_id":  status.StudentID,
		"position":    status.Position,
		"probability": status.Probability,
	}, nil)
}

// Roster godoc
// @Summary List a class waitlist in queue order
// @Tags Waitlist
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/waitlist [get]
func (h *WaitlistHandler) Roster(c *gin.Context) {
	entries, err := h.waitlists.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Respond godoc
// @Summary Accept or decline a seat offer
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.WaitlistResponseRequest true "Response payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/waitlist/response [post]
func (h *WaitlistHandler) Respond(c *gin.Context) {
	var req service.WaitlistResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.HandleWaitlistResponse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Process godoc
// @Summary Offer free seats to the next waitlisted candidates
// @Tags Waitlist
// @Produce json
// @Param id path string true "Class ID"
// @Success 202 {object} response.Envelope
// @Router /classes/{id}/waitlist/process [post]
func (h *WaitlistHandler) Process(c *gin.Context) {
	if err := h.enrollments.ProcessWaitlist(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "processed"}, nil)
}

// ProcessExpired godoc
// @Summary Sweep lapsed seat offers immediately
// @Tags Waitlist
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /waitlist/process-expired [post]
func (h *WaitlistHandler) ProcessExpired(c *gin.Context) {
	expired, err := h.sweeper.ProcessExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"expired": expired}, nil)
}
