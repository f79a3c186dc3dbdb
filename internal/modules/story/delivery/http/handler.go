package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	storyDto "github.com/circlesplus/backend/internal/modules/story/dto"
	story "github.com/circlesplus/backend/internal/modules/story/service"
	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/circlesplus/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StoryHandler struct {
	service story.StoryService
}

func NewStoryHandler(service story.StoryService) *StoryHandler {
	return &StoryHandler{service: service}
}

func (h *StoryHandler) CreateStory(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a media file is required"})
		return
	}
	defer file.Close()

	input := storyDto.CreateStoryInput{
		CircleID: circleID,
		Media:    &storyDto.MediaFile{Reader: file, FileName: header.Filename},
		IsVideo:  isVideoUpload(header),
	}

	created, err := h.service.CreateStory(c.Request.Context(), userID, input)
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

func (h *StoryHandler) ListStories(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	stories, err := h.service.ListStories(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, stories)
}

func (h *StoryHandler) GetStory(c *gin.Context) {
	storyID, ok := parseIDParam(c, "story_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	result, err := h.service.GetStory(c.Request.Context(), userID, storyID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *StoryHandler) EditStory(c *gin.Context) {
	storyID, ok := parseIDParam(c, "story_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	input := storyDto.EditStoryInput{}
	if file, header, err := c.Request.FormFile("media"); err == nil {
		defer file.Close()
		input.Media = &storyDto.MediaFile{Reader: file, FileName: header.Filename}
		input.IsVideo = isVideoUpload(header)
	}

	updated, err := h.service.EditStory(c.Request.Context(), userID, storyID, input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *StoryHandler) DeleteStory(c *gin.Context) {
	storyID, ok := parseIDParam(c, "story_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.DeleteStory(c.Request.Context(), userID, storyID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "story deleted"})
}

func isVideoUpload(header *multipart.FileHeader) bool {
	if ct := header.Header.Get("Content-Type"); strings.HasPrefix(ct, "video/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return true
	}
	return false
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
