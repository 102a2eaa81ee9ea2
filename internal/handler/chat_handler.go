package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
)

// ChatHandler handles conversation endpoints
type ChatHandler struct {
	chatService *service.ChatService
	users       service.UserDirectory
}

func NewChatHandler(chatService *service.ChatService, users service.UserDirectory) *ChatHandler {
	return &ChatHandler{chatService: chatService, users: users}
}

// GetConversations godoc
// @Summary List the caller's conversations
// @Description Most recently active first
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Conversation
// @Router /conversations [get]
func (h *ChatHandler) GetConversations(c *gin.Context) {
	convs, err := h.chatService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, convs)
}

// CreateGroup godoc
// @Summary Create a group conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.CreateGroupRequest true "Group name and members"
// @Success 201 {object} model.Conversation
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations [post]
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req model.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	me, err := currentUser(c, h.users)
	if err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.chatService.CreateGroup(c.Request.Context(), me, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// GetOrCreateDirect godoc
// @Summary Get or create direct conversation
// @Description Returns the one-to-one conversation with the user, creating it on first contact. Concurrent calls converge on the same conversation.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.DirectConversationRequest true "Partner ID"
// @Success 200 {object} model.DirectConversationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations/direct [post]
func (h *ChatHandler) GetOrCreateDirect(c *gin.Context) {
	var req model.DirectConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	me, err := currentUser(c, h.users)
	if err != nil {
		respondError(c, err)
		return
	}

	conv, created, err := h.chatService.GetOrCreateDirect(c.Request.Context(), me, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.DirectConversationResponse{Conversation: conv, IsNew: created})
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.chatService.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// DeleteGroup godoc
// @Summary Delete a group conversation
// @Description Group admins only
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [delete]
func (h *ChatHandler) DeleteGroup(c *gin.Context) {
	if err := h.chatService.DeleteGroup(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Conversation deleted"})
}

// SetMuted godoc
// @Summary Mute or unmute a conversation
// @Description Muted conversations send no push notifications to the caller
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.FlagRequest true "Mute flag"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/mute [put]
func (h *ChatHandler) SetMuted(c *gin.Context) {
	h.setFlag(c, h.chatService.SetMuted)
}

// SetPinned godoc
// @Summary Pin or unpin a conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.FlagRequest true "Pin flag"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/pin [put]
func (h *ChatHandler) SetPinned(c *gin.Context) {
	h.setFlag(c, h.chatService.SetPinned)
}

func (h *ChatHandler) setFlag(c *gin.Context, set func(ctx context.Context, convID, userID string, on bool) error) {
	var req model.FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	if err := set(c.Request.Context(), c.Param("id"), currentUserID(c), *req.Enabled); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Conversation updated"})
}
