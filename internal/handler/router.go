package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes. Upload may be
// nil when blob storage is unavailable.
type Handlers struct {
	Auth    *AuthHandler
	Chat    *ChatHandler
	Message *MessageHandler
	Upload  *UploadHandler
	WS      *WSHandler
}

// RegisterRoutes mounts the health check, the /api/v1 routes and the
// WebSocket endpoint. protect is applied in order to every authenticated
// route.
func RegisterRoutes(router *gin.Engine, h Handlers, protect ...gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "tripzi-chat",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")
	{
		// Auth routes (public)
		api.POST("/auth/session", h.Auth.CreateSession)

		// Protected routes
		protected := api.Group("")
		protected.Use(protect...)
		{
			// Auth
			protected.POST("/auth/logout", h.Auth.Logout)
			protected.GET("/auth/profile", h.Auth.GetProfile)

			// Users
			protected.POST("/users/devices", h.Auth.RegisterDevice)
			protected.GET("/users/search", h.Auth.SearchUsers)

			// Conversations
			protected.GET("/conversations", h.Chat.GetConversations)
			protected.POST("/conversations", h.Chat.CreateGroup)
			protected.POST("/conversations/direct", h.Chat.GetOrCreateDirect)
			protected.GET("/conversations/:id", h.Chat.GetConversation)
			protected.DELETE("/conversations/:id", h.Chat.DeleteGroup)
			protected.PUT("/conversations/:id/mute", h.Chat.SetMuted)
			protected.PUT("/conversations/:id/pin", h.Chat.SetPinned)

			// Messages
			protected.GET("/conversations/:id/messages", h.Message.GetMessages)
			protected.POST("/conversations/:id/messages", h.Message.SendMessage)
			protected.POST("/conversations/:id/messages/delete", h.Message.DeleteMessages)
			protected.PATCH("/conversations/:id/messages/:messageId", h.Message.EditMessage)
			protected.GET("/conversations/:id/messages/:messageId/delete-options", h.Message.GetDeleteOptions)
			protected.POST("/conversations/:id/messages/:messageId/delivered", h.Message.MarkDelivered)
			protected.POST("/conversations/:id/read", h.Message.MarkAsRead)
			protected.POST("/conversations/:id/clear", h.Message.ClearChat)
			protected.POST("/conversations/:id/location", h.Message.SendLocation)
			protected.POST("/conversations/:id/trip-share", h.Message.SendTripShare)
			protected.GET("/conversations/:id/live-shares", h.Message.GetLiveShares)

			// Attachments
			if h.Upload != nil {
				protected.POST("/conversations/:id/attachments", h.Upload.UploadAttachment)
			}
		}
	}

	// WebSocket endpoint (auth via query parameter)
	if h.WS != nil {
		router.GET("/ws", h.WS.HandleWebSocket)
	}
}
