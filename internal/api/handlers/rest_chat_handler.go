package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brainskev/houseListing2-sub000/internal/api/middleware"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// RestChatHandler handles REST requests for enquiry conversations and the inbox.
type RestChatHandler struct {
	chatService  services.IChatService
	inboxService services.IInboxService
	pollInterval time.Duration
}

// NewRestChatHandler creates a new RestChatHandler. pollInterval is advertised to
// clients as the reconciliation interval.
func NewRestChatHandler(chatService services.IChatService, inboxService services.IInboxService, pollInterval time.Duration) *RestChatHandler {
	return &RestChatHandler{
		chatService:  chatService,
		inboxService: inboxService,
		pollInterval: pollInterval,
	}
}

// CreateEnquiryRequest is the body of POST /v1/enquiries.
type CreateEnquiryRequest struct {
	PropertyID *string             `json:"property_id"`
	Text       string              `json:"text"`
	Contact    *models.ContactInfo `json:"contact"`
}

// SendMessageRequest is the body of POST /v1/conversations/:id/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ConversationListResponse wraps the conversation list with the poll hint.
type ConversationListResponse struct {
	Conversations       []models.ConversationSummary `json:"conversations"`
	PollIntervalSeconds int                          `json:"poll_interval_seconds"`
}

// InboxResponse wraps the merged inbox.
type InboxResponse struct {
	Items []models.ConversationItem `json:"items"`
}

func mustSession(c *gin.Context) (models.Session, bool) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return session, ok
}

func conversationIDParam(c *gin.Context) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// CreateEnquiry handles POST /v1/enquiries. 201 when a conversation was created, 200 when
// the message was appended to the caller's existing one.
func (h *RestChatHandler) CreateEnquiry(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	var req CreateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var propertyID *utils.SixID
	if req.PropertyID != nil && *req.PropertyID != "" {
		id, err := utils.ParseSixID(*req.PropertyID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid property ID format"})
			return
		}
		propertyID = &id
	}

	result, err := h.chatService.CreateOrAppend(c.Request.Context(), propertyID, session, req.Text, req.Contact)
	if err != nil {
		respondError(c, err, "Failed to send enquiry")
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// ListConversations handles GET /v1/conversations
func (h *RestChatHandler) ListConversations(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	summaries, err := h.chatService.ListForUser(c.Request.Context(), session)
	if err != nil {
		respondError(c, err, "Failed to list conversations")
		return
	}
	c.JSON(http.StatusOK, ConversationListResponse{
		Conversations:       summaries,
		PollIntervalSeconds: int(h.pollInterval / time.Second),
	})
}

// GetMessages handles GET /v1/conversations/:id/messages
func (h *RestChatHandler) GetMessages(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	result, err := h.chatService.GetMessages(c.Request.Context(), conversationID, session)
	if err != nil {
		respondError(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, result)
}

// AppendMessage handles POST /v1/conversations/:id/messages
func (h *RestChatHandler) AppendMessage(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	result, err := h.chatService.AppendMessage(c.Request.Context(), conversationID, session, req.Text)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// MarkRead handles POST /v1/conversations/:id/read
func (h *RestChatHandler) MarkRead(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}
	conv, err := h.chatService.MarkRead(c.Request.Context(), conversationID, session)
	if err != nil {
		respondError(c, err, "Failed to mark conversation read")
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Inbox handles GET /v1/inbox
func (h *RestChatHandler) Inbox(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	items, err := h.inboxService.Inbox(c.Request.Context(), session)
	if err != nil {
		respondError(c, err, "Failed to load inbox")
		return
	}
	c.JSON(http.StatusOK, InboxResponse{Items: items})
}
