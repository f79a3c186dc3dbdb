package handler

import (
	"log"
	"net/http"
	"strconv"

	messageDto "github.com/circlesplus/backend/internal/modules/message/dto"
	message "github.com/circlesplus/backend/internal/modules/message/service"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/circlesplus/backend/pkg/realtime"
	"github.com/circlesplus/backend/pkg/response"
	"github.com/circlesplus/backend/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type MessageHandler struct {
	service     message.MessageService
	redisClient *redis.Client
}

func NewMessageHandler(service message.MessageService, redisClient *redis.Client) *MessageHandler {
	return &MessageHandler{service: service, redisClient: redisClient}
}

func (h *MessageHandler) StartConversation(c *gin.Context) {
	var req messageDto.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conv, err := h.service.StartConversation(c.Request.Context(), userID, req.Username)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	convs, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, convs)
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	var req messageDto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), userID, conversationID, req.Content)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.service.ListMessages(c.Request.Context(), userID, conversationID, limit, offset)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) SendCircleMessage(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	var req messageDto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	msg, err := h.service.SendCircleMessage(c.Request.Context(), userID, circleID, req.Content)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) ListCircleMessages(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.service.ListCircleMessages(c.Request.Context(), userID, circleID, limit, offset)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// HandleConversationSocket streams a conversation's new messages to a
// participant over a websocket.
func (h *MessageHandler) HandleConversationSocket(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	allowed, err := h.service.CanAccessConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if !allowed {
		response.ResponseError(c, apperror.ErrForbidden)
		return
	}

	conn, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	realtime.Bridge(c.Request.Context(), h.redisClient, conn, message.ConversationChannel(conversationID))
}

// HandleCircleChatSocket streams a circle's chat to a member over a
// websocket.
func (h *MessageHandler) HandleCircleChatSocket(c *gin.Context) {
	circleID, ok := parseIDParam(c, "circle_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	allowed, err := h.service.CanAccessCircleChat(c.Request.Context(), userID, circleID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if !allowed {
		response.ResponseError(c, apperror.ErrForbidden)
		return
	}

	conn, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	realtime.Bridge(c.Request.Context(), h.redisClient, conn, message.CircleChannel(circleID))
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
