package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/model"
	chatService "github.com/jwalitptl/chat-api/internal/service/chat"
	"github.com/jwalitptl/chat-api/pkg/errors"
	"github.com/jwalitptl/chat-api/pkg/httputil"
)

type Service interface {
	CreateConversation(ctx context.Context, requester model.Participant, members []model.Participant) (*model.Conversation, error)
	SendMessage(ctx context.Context, in chatService.SendMessageInput) (*chatService.SendResult, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID, requester model.Participant, page model.Pagination) (*model.MessageList, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.POST("/:id/messages", h.SendMessage)
		conversations.GET("/:id/messages", h.GetMessages)
	}
}

type memberRequest struct {
	ID   string `json:"id" binding:"required,uuid"`
	Type string `json:"type" binding:"required,member_type"`
}

type createConversationRequest struct {
	Members []memberRequest `json:"members" binding:"required,min=2,dive"`
}

type sendMessageRequest struct {
	Content     string             `json:"content" binding:"required,max=4000"`
	Type        string             `json:"type" binding:"omitempty,oneof=TEXT IMAGE FILE SYSTEM"`
	ReplyToID   *string            `json:"reply_to_id" binding:"omitempty,uuid"`
	Attachments []model.Attachment `json:"attachments" binding:"max=10,dive"`
}

type messagesQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	requester, ok := middleware.ParticipantFrom(c)
	if !ok {
		c.Error(errors.Unauthorized(nil))
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	members := make([]model.Participant, 0, len(req.Members))
	for _, m := range req.Members {
		// both fields were validated by binding
		members = append(members, model.Participant{ID: uuid.MustParse(m.ID), Type: model.MemberType(m.Type)})
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), requester, members)
	if err != nil {
		c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, conv)
}

func (h *Handler) SendMessage(c *gin.Context) {
	author, ok := middleware.ParticipantFrom(c)
	if !ok {
		c.Error(errors.Unauthorized(nil))
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.BadRequest("invalid conversation ID", err))
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	in := chatService.SendMessageInput{
		ConversationID: conversationID,
		Author:         author,
		Content:        req.Content,
		Type:           model.MessageType(req.Type),
		Attachments:    req.Attachments,
	}
	if req.ReplyToID != nil {
		replyTo := uuid.MustParse(*req.ReplyToID)
		in.ReplyToID = &replyTo
	}

	result, err := h.service.SendMessage(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, result)
}

func (h *Handler) GetMessages(c *gin.Context) {
	requester, ok := middleware.ParticipantFrom(c)
	if !ok {
		c.Error(errors.Unauthorized(nil))
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.Error(errors.BadRequest("invalid conversation ID", err))
		return
	}

	var q messagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(errors.BadRequest("invalid pagination", err))
		return
	}

	list, err := h.service.GetMessages(c.Request.Context(), conversationID, requester, model.Pagination{Page: q.Page, PageSize: q.PageSize})
	if err != nil {
		c.Error(err)
		return
	}
	httputil.RespondWithPagination(c, list.Messages, list.Page, list.PageSize, list.Total, list.HasMore)
}
