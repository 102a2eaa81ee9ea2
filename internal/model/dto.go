package model

import "time"

// ========== Auth DTOs ==========

type SessionRequest struct {
	IDToken string `json:"idToken" binding:"required"` // Firebase Auth ID token from the app
}

type SessionResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type RegisterDeviceRequest struct {
	Token    string       `json:"token" binding:"required"`
	Provider PushProvider `json:"provider" binding:"required,oneof=fcm expo"`
	Platform string       `json:"platform"`
}

// ========== Conversation DTOs ==========

type DirectConversationRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type DirectConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	IsNew        bool          `json:"isNew"`
}

type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required,max=100"`
	Icon      string   `json:"icon" binding:"max=500"`
	MemberIDs []string `json:"memberIds" binding:"required,min=1"`
}

type FlagRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ========== Message DTOs ==========

// DeleteMode selects between per-user soft delete and the tombstone
type DeleteMode string

const (
	DeleteForMe       DeleteMode = "me"
	DeleteForEveryone DeleteMode = "everyone"
)

type SendMessageRequest struct {
	Text      string `json:"text" binding:"required"`
	ReplyToID string `json:"replyToId"`
}

type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type DeleteMessagesRequest struct {
	MessageIDs []string   `json:"messageIds" binding:"required,min=1"`
	Mode       DeleteMode `json:"mode" binding:"required,oneof=me everyone"`
}

type LocationMessageRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Address   string  `json:"address"`
}

type TripShareRequest struct {
	TripID      string `json:"tripId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Destination string `json:"destination"`
	CoverURL    string `json:"coverUrl"`
}

type MessageListRequest struct {
	Limit int `form:"limit,default=50"`
}

// DeleteOptions tells the client which delete actions to offer
type DeleteOptions struct {
	ForMe       bool       `json:"forMe"`
	ForEveryone bool       `json:"forEveryone"`
	ExpiresAt   *time.Time `json:"forEveryoneUntil,omitempty"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client -> server events
const (
	WSEventSubscribeChats   = "subscribe_chats"
	WSEventOpenChat         = "open_chat"
	WSEventOpenDirect       = "open_direct"
	WSEventCloseChat        = "close_chat"
	WSEventInputChanged     = "input_changed"
	WSEventSendMessage      = "send_message"
	WSEventSetReply         = "set_reply"
	WSEventCancelReply      = "cancel_reply"
	WSEventEditMessage      = "edit_message"
	WSEventDeleteMessages   = "delete_messages"
	WSEventSelectionMode    = "selection_mode"
	WSEventSelectMessage    = "select_message"
	WSEventBulkDelete       = "bulk_delete"
	WSEventMarkRead         = "mark_read"
	WSEventStartLiveShare   = "start_live_location"
	WSEventLocationUpdate   = "location_update"
	WSEventStopLiveShare    = "stop_live_location"
	WSEventPermission       = "permission_changed"
	WSEventRecordingStart   = "recording_start"
	WSEventRecordingStop    = "recording_stop"
	WSEventRecordingCancel  = "recording_cancel"
	WSEventMessageDelivered = "message_delivered"
)

// Server -> client events
const (
	WSEventChats         = "chats"
	WSEventChatOpened    = "chat_opened"
	WSEventMessages      = "messages"
	WSEventTyping        = "typing"
	WSEventLiveShares    = "live_shares"
	WSEventReplyDraft    = "reply_draft"
	WSEventSelection     = "selection"
	WSEventRecordingTick = "recording_tick"
	WSEventRecorded      = "recording_stopped"
	WSEventSendFailed    = "send_failed"
	WSEventError         = "error"
	WSEventNewMessage    = "new_message"
	WSEventOnline        = "online"
	WSEventOffline       = "offline"
)

type OpenChatPayload struct {
	ConversationID     string `json:"conversationId"`
	LocationPermission bool   `json:"locationPermission"`
}

type OpenDirectPayload struct {
	UserID             string `json:"userId"`
	LocationPermission bool   `json:"locationPermission"`
}

type ChatOpenedPayload struct {
	Conversation *Conversation `json:"conversation"`
	IsNew        bool          `json:"isNew"`
}

type InputPayload struct {
	Text string `json:"text"`
}

type MessageRefPayload struct {
	MessageID string `json:"messageId"`
}

type EditPayload struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type DeletePayload struct {
	MessageIDs []string   `json:"messageIds"`
	Mode       DeleteMode `json:"mode"`
}

type SelectionModePayload struct {
	Enabled bool `json:"enabled"`
}

type BulkDeletePayload struct {
	Mode DeleteMode `json:"mode"`
}

type StartLiveSharePayload struct {
	DurationMinutes   int       `json:"durationMinutes"`
	PermissionGranted bool      `json:"permissionGranted"`
	Position          *Position `json:"position,omitempty"`
}

type StopLiveSharePayload struct {
	NotifyRemote bool `json:"notifyRemote"`
}

type PermissionPayload struct {
	Location bool `json:"location"`
}

type DeliveredPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessagesPayload struct {
	ConversationID string     `json:"conversationId"`
	Messages       []*Message `json:"messages"`
	Loading        bool       `json:"loading"`
	Error          string     `json:"error,omitempty"`
}

type ChatsPayload struct {
	Conversations []*Conversation `json:"conversations"`
	Loading       bool            `json:"loading"`
	Error         string          `json:"error,omitempty"`
}

type TypingPayload struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

type LiveSharesPayload struct {
	ConversationID string       `json:"conversationId"`
	Shares         []*LiveShare `json:"shares"`
	Sharing        bool         `json:"sharing"`
}

type ReplyDraftPayload struct {
	Reply *ReplyRef `json:"reply"`
}

type SelectionPayload struct {
	Enabled    bool     `json:"enabled"`
	MessageIDs []string `json:"messageIds"`
}

type RecordingPayload struct {
	Seconds int `json:"seconds"`
}

type SendFailedPayload struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	Error          string `json:"error"`
}

type ErrorPayload struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NewMessagePayload struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
}

type OnlineEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
