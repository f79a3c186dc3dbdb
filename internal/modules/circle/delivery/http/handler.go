package handler

import (
	"fmt"
	"net/http"
	"strconv"

	circleDto "github.com/circlesplus/backend/internal/modules/circle/dto"
	circle "github.com/circlesplus/backend/internal/modules/circle/service"
	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/circlesplus/backend/pkg/response"
	"github.com/circlesplus/backend/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CircleHandler struct {
	service circle.CircleService
}

func NewCircleHandler(service circle.CircleService) *CircleHandler {
	return &CircleHandler{service: service}
}

func (h *CircleHandler) CreateCircle(c *gin.Context) {
	var req circleDto.CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	created, err := h.service.CreateCircle(c.Request.Context(), userID, req)
	if err != nil {
		if rateLimitErr, ok := err.(*ratelimiter.RateLimitError); ok {
			c.Header("Retry-After", fmt.Sprintf("%.0f", rateLimitErr.RetryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": rateLimitErr.Message})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *CircleHandler) GetCircle(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	result, err := h.service.GetCircle(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CircleHandler) UpdateCircle(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	var req circleDto.UpdateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.service.UpdateCircle(c.Request.Context(), userID, circleID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *CircleHandler) DeleteCircle(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.DeleteCircle(c.Request.Context(), userID, circleID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "circle deleted successfully"})
}

func (h *CircleHandler) GetMyCircles(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	circles, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, circles)
}

func (h *CircleHandler) JoinCircle(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	state, err := h.service.Join(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"membership": state})
}

func (h *CircleHandler) LeaveCircle(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), userID, circleID, userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left circle"})
}

func (h *CircleHandler) InviteMember(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	var req circleDto.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.Invite(c.Request.Context(), userID, circleID, req.Username); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "invitation sent"})
}

func (h *CircleHandler) GetMembers(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	members, err := h.service.ListMembers(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

func (h *CircleHandler) GetPendingRequests(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	members, err := h.service.PendingRequests(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

func (h *CircleHandler) ApproveRequest(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}
	requesterID, ok := parseIDParam(c, "profile_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.ApproveRequest(c.Request.Context(), userID, circleID, requesterID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "request approved"})
}

func (h *CircleHandler) RejectRequest(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}
	requesterID, ok := parseIDParam(c, "profile_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.RejectRequest(c.Request.Context(), userID, circleID, requesterID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "request rejected"})
}

func (h *CircleHandler) RemoveMember(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}
	profileID, ok := parseIDParam(c, "profile_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), userID, circleID, profileID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

func (h *CircleHandler) SetAdmin(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}
	profileID, ok := parseIDParam(c, "profile_id")
	if !ok {
		return
	}

	var req circleDto.SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.SetAdmin(c.Request.Context(), userID, circleID, profileID, req.IsAdmin); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "admin status updated"})
}

func (h *CircleHandler) GetSuggested(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var selected *uuid.UUID
	if raw := c.Query("selected"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selected circle id"})
			return
		}
		selected = &parsed
	}

	circles, err := h.service.Suggested(c.Request.Context(), userID, selected)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, circles)
}

func (h *CircleHandler) SearchCircles(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	circles, err := h.service.SearchPublic(c.Request.Context(), userID, query, limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, circles)
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
