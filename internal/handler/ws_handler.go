package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/middleware"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/service"
	"github.com/quocanhngo/tripzi/internal/session"
	"github.com/quocanhngo/tripzi/internal/syncer"
	"github.com/quocanhngo/tripzi/internal/ws"
	"github.com/quocanhngo/tripzi/pkg/auth"
	apperrors "github.com/quocanhngo/tripzi/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin
	},
}

// WSHandler upgrades connections and drives the chat screens behind them
type WSHandler struct {
	hub        *ws.Hub
	jwtManager *auth.JWTManager
	rdb        *redis.Client
	users      service.UserDirectory
	deps       session.Deps
	cfg        session.Config
}

func NewWSHandler(
	hub *ws.Hub,
	jwtManager *auth.JWTManager,
	rdb *redis.Client,
	users service.UserDirectory,
	deps session.Deps,
	cfg session.Config,
) *WSHandler {
	return &WSHandler{
		hub:        hub,
		jwtManager: jwtManager,
		rdb:        rdb,
		users:      users,
		deps:       deps,
		cfg:        cfg,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// WebSocket clients cannot set the Authorization header
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token required", Code: apperrors.CodeUnauthorized})
		return
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid token", Code: apperrors.CodeUnauthorized})
		return
	}
	if revoked, err := middleware.IsRevoked(c.Request.Context(), h.rdb, tokenString); err != nil || revoked {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Token has been revoked", Code: apperrors.CodeUnauthorized})
		return
	}

	c.Set(middleware.KeyUserID, claims.UserID)
	c.Set(middleware.KeyName, claims.Name)
	c.Set(middleware.KeyEmail, claims.Email)
	user, err := currentUser(c, h.users)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("⚠️ WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, user.ID, user.DisplayName)
	wc := h.attach(client, user)
	h.hub.Register(client)

	log.WithFields(log.Fields{"user_id": user.ID, "name": user.DisplayName}).Info("✅ WS connected")

	go client.WritePump()
	go client.ReadPump(func(_ *ws.Client, event model.WSEvent) {
		wc.dispatch(event)
	})
}

// connection holds the per-connection chat state: the live chat list and
// the currently open chat screen
type connection struct {
	h      *WSHandler
	client *ws.Client
	user   *model.User

	ctx    context.Context
	cancel context.CancelFunc

	chats *syncer.ChatList
	chat  *session.ChatSession
}

// attach binds chat state to client. It is torn down by the client's close
// hook before the hub unregisters the connection.
func (h *WSHandler) attach(client *ws.Client, user *model.User) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	wc := &connection{h: h, client: client, user: user, ctx: ctx, cancel: cancel}
	client.OnClose(wc.close)
	return wc
}

func (wc *connection) close() {
	wc.closeChat()
	if wc.chats != nil {
		wc.chats.Close()
		wc.chats = nil
	}
	wc.cancel()
	log.WithField("user_id", wc.user.ID).Debug("👋 WS chat state released")
}

func (wc *connection) fail(op string, err error) {
	appErr := apperrors.As(err)
	wc.client.Emit(&model.WSEvent{
		Type:    model.WSEventError,
		Payload: model.ErrorPayload{Op: op, Code: appErr.Code, Message: appErr.Message},
	})
}

// decode converts the loosely typed payload into v
func decode(event model.WSEvent, v interface{}) error {
	if event.Payload == nil {
		return nil
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return apperrors.BadRequest("Invalid payload", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.BadRequest("Invalid payload", err)
	}
	return nil
}

// dispatch handles one client event. Events of a connection are handled
// one at a time, in arrival order.
func (wc *connection) dispatch(event model.WSEvent) {
	log.WithFields(log.Fields{"user_id": wc.user.ID, "type": event.Type}).Debug("📩 WS event")

	var err error
	switch event.Type {
	case model.WSEventSubscribeChats:
		wc.subscribeChats()
	case model.WSEventOpenChat:
		err = wc.openChat(event)
	case model.WSEventOpenDirect:
		err = wc.openDirect(event)
	case model.WSEventCloseChat:
		wc.closeChat()
	case model.WSEventMessageDelivered:
		err = wc.messageDelivered(event)
	default:
		err = wc.chatEvent(event)
	}
	if err != nil {
		wc.fail(event.Type, err)
	}
}

func (wc *connection) subscribeChats() {
	if wc.chats == nil {
		wc.chats = syncer.NewChatList(wc.h.deps.Conversations, wc.h.deps.Chats, func(v syncer.ChatListView) {
			wc.client.Emit(&model.WSEvent{Type: model.WSEventChats, Payload: v.Payload()})
		})
	}
	wc.chats.Subscribe(wc.user)
}

func (wc *connection) openChat(event model.WSEvent) error {
	var p model.OpenChatPayload
	if err := decode(event, &p); err != nil {
		return err
	}
	if p.ConversationID == "" {
		return apperrors.BadRequest("conversationId is required", nil)
	}
	return wc.open(p.ConversationID, p.LocationPermission)
}

// openDirect opens the one-to-one chat with another user, creating it on
// first contact
func (wc *connection) openDirect(event model.WSEvent) error {
	var p model.OpenDirectPayload
	if err := decode(event, &p); err != nil {
		return err
	}

	var (
		conv    *model.Conversation
		created bool
		err     error
	)
	if wc.chats != nil {
		conv, created, err = wc.chats.GetOrCreateDirect(wc.ctx, p.UserID)
	} else {
		conv, created, err = wc.h.deps.Chats.GetOrCreateDirect(wc.ctx, wc.user, p.UserID)
	}
	if err != nil {
		return err
	}

	wc.client.Emit(&model.WSEvent{
		Type:    model.WSEventChatOpened,
		Payload: model.ChatOpenedPayload{Conversation: conv, IsNew: created},
	})
	return wc.open(conv.ID, p.LocationPermission)
}

// open replaces the current chat screen
func (wc *connection) open(conversationID string, locationPermission bool) error {
	if wc.chat != nil && wc.chat.ConversationID() == conversationID {
		return nil
	}
	wc.closeChat()

	chat, err := session.Open(wc.ctx, wc.h.deps, wc.h.cfg, wc.user, conversationID, locationPermission, wc.client)
	if err != nil {
		return err
	}
	wc.chat = chat
	return nil
}

func (wc *connection) closeChat() {
	if wc.chat != nil {
		wc.chat.Close()
		wc.chat = nil
	}
}

// messageDelivered records a delivery receipt for a new_message the device
// received, open chat or not
func (wc *connection) messageDelivered(event model.WSEvent) error {
	var p model.DeliveredPayload
	if err := decode(event, &p); err != nil {
		return err
	}
	if p.ConversationID == "" || p.MessageID == "" {
		return apperrors.BadRequest("conversationId and messageId are required", nil)
	}

	conv, err := wc.h.deps.Chats.Get(wc.ctx, p.ConversationID, wc.user.ID)
	if err != nil {
		return err
	}
	return wc.h.deps.MessageSvc.MarkDelivered(wc.ctx, conv, p.MessageID, wc.user.ID)
}

// chatEvent routes events that act on the open chat screen. The session
// reports its own failures; only routing errors are returned.
func (wc *connection) chatEvent(event model.WSEvent) error {
	chat := wc.chat
	if chat == nil {
		if !isChatEvent(event.Type) {
			log.WithField("type", event.Type).Warn("⚠️ Unknown WebSocket event type")
			return apperrors.BadRequest("Unknown event type", nil)
		}
		return apperrors.BadRequest("No chat is open", nil)
	}
	ctx := wc.ctx

	switch event.Type {
	case model.WSEventInputChanged:
		var p model.InputPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.InputChanged(ctx, p.Text)

	case model.WSEventSendMessage:
		var p model.InputPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.SendMessage(ctx, p.Text)

	case model.WSEventSetReply:
		var p model.MessageRefPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.SetReply(ctx, p.MessageID)

	case model.WSEventCancelReply:
		chat.CancelReply()

	case model.WSEventEditMessage:
		var p model.EditPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.EditMessage(ctx, p.MessageID, p.Text)

	case model.WSEventDeleteMessages:
		var p model.DeletePayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.DeleteMessages(ctx, p.MessageIDs, p.Mode)

	case model.WSEventSelectionMode:
		var p model.SelectionModePayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.SetSelectionMode(p.Enabled)

	case model.WSEventSelectMessage:
		var p model.MessageRefPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.ToggleSelect(p.MessageID)

	case model.WSEventBulkDelete:
		var p model.BulkDeletePayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.BulkDelete(ctx, p.Mode)

	case model.WSEventMarkRead:
		chat.MarkRead(ctx)

	case model.WSEventStartLiveShare:
		var p model.StartLiveSharePayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.StartLiveLocation(ctx, time.Duration(p.DurationMinutes)*time.Minute, p.PermissionGranted, p.Position)

	case model.WSEventLocationUpdate:
		var p model.Position
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.LocationUpdate(ctx, p)

	case model.WSEventStopLiveShare:
		var p model.StopLiveSharePayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.StopLiveLocation(ctx, p.NotifyRemote)

	case model.WSEventPermission:
		var p model.PermissionPayload
		if err := decode(event, &p); err != nil {
			return err
		}
		chat.PermissionChanged(ctx, p.Location)

	case model.WSEventRecordingStart:
		chat.RecordingStart()
	case model.WSEventRecordingStop:
		chat.RecordingStop()
	case model.WSEventRecordingCancel:
		chat.RecordingCancel()

	default:
		log.WithField("type", event.Type).Warn("⚠️ Unknown WebSocket event type")
		return apperrors.BadRequest("Unknown event type", nil)
	}
	return nil
}

func isChatEvent(eventType string) bool {
	switch eventType {
	case model.WSEventInputChanged, model.WSEventSendMessage, model.WSEventSetReply,
		model.WSEventCancelReply, model.WSEventEditMessage, model.WSEventDeleteMessages,
		model.WSEventSelectionMode, model.WSEventSelectMessage, model.WSEventBulkDelete,
		model.WSEventMarkRead, model.WSEventStartLiveShare, model.WSEventLocationUpdate,
		model.WSEventStopLiveShare, model.WSEventPermission, model.WSEventRecordingStart,
		model.WSEventRecordingStop, model.WSEventRecordingCancel:
		return true
	}
	return false
}
