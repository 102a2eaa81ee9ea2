package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
)

// MessageHandler handles message endpoints nested under a conversation
type MessageHandler struct {
	chatService    *service.ChatService
	messageService *service.MessageService
	liveService    *service.LiveLocationService
	users          service.UserDirectory
}

func NewMessageHandler(
	chatService *service.ChatService,
	messageService *service.MessageService,
	liveService *service.LiveLocationService,
	users service.UserDirectory,
) *MessageHandler {
	return &MessageHandler{
		chatService:    chatService,
		messageService: messageService,
		liveService:    liveService,
		users:          users,
	}
}

// conversation loads the path conversation, checking membership
func (h *MessageHandler) conversation(c *gin.Context) (*model.Conversation, bool) {
	conv, err := h.chatService.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return conv, true
}

func (h *MessageHandler) sender(c *gin.Context) (model.Sender, bool) {
	me, err := currentUser(c, h.users)
	if err != nil {
		respondError(c, err)
		return model.Sender{}, false
	}
	return me.Sender(), true
}

// GetMessages godoc
// @Summary Get the newest messages of a conversation
// @Description Oldest first, without the messages the caller deleted for themself
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param limit query int false "Window size" default(50)
// @Success 200 {array} model.Message
// @Router /conversations/{id}/messages [get]
func (h *MessageHandler) GetMessages(c *gin.Context) {
	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	msgs, err := h.messageService.Recent(c.Request.Context(), conv, currentUserID(c), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// SendMessage godoc
// @Summary Send a text message
// @Description Repeating the same text in the same conversation within a few seconds is ignored and answered with 204
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SendMessageRequest true "Message text and optional reply target"
// @Success 201 {object} model.Message
// @Success 204
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	sender, ok := h.sender(c)
	if !ok {
		return
	}

	var reply *model.ReplyRef
	if req.ReplyToID != "" {
		target, err := h.messageService.Find(c.Request.Context(), conv, req.ReplyToID, sender.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		reply = target.Reply()
	}

	msg, err := h.messageService.SendText(c.Request.Context(), conv, sender, req.Text, reply)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// EditMessage godoc
// @Summary Edit a text message
// @Description Sender only; deleted and non-text messages cannot be edited
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param messageId path string true "Message ID"
// @Param body body model.EditMessageRequest true "New text"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages/{messageId} [patch]
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req model.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	msg, err := h.messageService.Edit(c.Request.Context(), conv, c.Param("messageId"), currentUserID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// GetDeleteOptions godoc
// @Summary Which delete actions the caller may take on a message
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} model.DeleteOptions
// @Router /conversations/{id}/messages/{messageId}/delete-options [get]
func (h *MessageHandler) GetDeleteOptions(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	uid := currentUserID(c)

	msg, err := h.messageService.Find(c.Request.Context(), conv, c.Param("messageId"), uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.messageService.DeleteOptions(msg, uid))
}

// DeleteMessages godoc
// @Summary Delete one or more messages
// @Description Mode "me" hides the messages from the caller only. Mode "everyone" replaces them with a tombstone and is only allowed for the sender within the delete window. A batch either applies fully or not at all.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.DeleteMessagesRequest true "Message IDs and mode"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages/delete [post]
func (h *MessageHandler) DeleteMessages(c *gin.Context) {
	var req model.DeleteMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), conv, req.MessageIDs, currentUserID(c), req.Mode); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Messages deleted"})
}

// MarkDelivered godoc
// @Summary Acknowledge delivery of a message to this device
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param messageId path string true "Message ID"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/messages/{messageId}/delivered [post]
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	if err := h.messageService.MarkDelivered(c.Request.Context(), conv, c.Param("messageId"), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Delivered"})
}

// MarkAsRead godoc
// @Summary Mark the newest messages as read
// @Description Resets the caller's unread counter and writes read receipts for the newest window
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/read [post]
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	uid := currentUserID(c)

	window, err := h.messageService.Recent(c.Request.Context(), conv, uid, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	n, err := h.messageService.MarkAsRead(c.Request.Context(), conv, uid, window)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Marked as read", Data: gin.H{"count": n}})
}

// ClearChat godoc
// @Summary Clear the conversation for the caller
// @Description Hides every message from the caller only
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.SuccessResponse
// @Router /conversations/{id}/clear [post]
func (h *MessageHandler) ClearChat(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	n, err := h.messageService.ClearChat(c.Request.Context(), conv, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Chat cleared", Data: gin.H{"count": n}})
}

// SendLocation godoc
// @Summary Send a location message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.LocationMessageRequest true "Coordinates"
// @Success 201 {object} model.Message
// @Router /conversations/{id}/location [post]
func (h *MessageHandler) SendLocation(c *gin.Context) {
	var req model.LocationMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	sender, ok := h.sender(c)
	if !ok {
		return
	}

	msg, err := h.messageService.SendLocation(c.Request.Context(), conv, sender, model.GeoPoint{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// SendTripShare godoc
// @Summary Share a trip card in the conversation
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.TripShareRequest true "Trip"
// @Success 201 {object} model.Message
// @Router /conversations/{id}/trip-share [post]
func (h *MessageHandler) SendTripShare(c *gin.Context) {
	var req model.TripShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	sender, ok := h.sender(c)
	if !ok {
		return
	}

	msg, err := h.messageService.SendTripShare(c.Request.Context(), conv, sender, model.TripRef{
		TripID:      req.TripID,
		Title:       req.Title,
		Destination: req.Destination,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetLiveShares godoc
// @Summary Users currently sharing their live location
// @Description Expired shares are left out even when still flagged active
// @Tags Live location
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {array} model.LiveShare
// @Router /conversations/{id}/live-shares [get]
func (h *MessageHandler) GetLiveShares(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	shares, err := h.liveService.ActiveShares(c.Request.Context(), conv, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, shares)
}
