package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the tag of a message payload
type MessageType string

const (
	MessageTypeText      MessageType = "text"
	MessageTypeImage     MessageType = "image"
	MessageTypeVideo     MessageType = "video"
	MessageTypeLocation  MessageType = "location"
	MessageTypeVoice     MessageType = "voice"
	MessageTypeSystem    MessageType = "system"
	MessageTypeTripShare MessageType = "trip_share"
)

// MessageStatus is the client-displayed delivery status
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// DeletedPlaceholder replaces the content of a message deleted for everyone
const DeletedPlaceholder = "This message was deleted"

// Content is the payload of a message. The set of implementations is closed:
// every variant must know how to flatten itself into the stored shape.
type Content interface {
	Type() MessageType
	Preview() string
	apply(f *MessageFields)
}

type TextContent struct {
	Text string
}

type ImageContent struct {
	URL       string
	Thumbnail string
	Caption   string
}

type VideoContent struct {
	URL       string
	Thumbnail string
	Caption   string
}

type LocationContent struct {
	Location GeoPoint
}

type VoiceContent struct {
	URL      string
	Duration int // seconds
}

type SystemContent struct {
	Text string
}

type TripShareContent struct {
	Trip TripRef
}

func (TextContent) Type() MessageType      { return MessageTypeText }
func (ImageContent) Type() MessageType     { return MessageTypeImage }
func (VideoContent) Type() MessageType     { return MessageTypeVideo }
func (LocationContent) Type() MessageType  { return MessageTypeLocation }
func (VoiceContent) Type() MessageType     { return MessageTypeVoice }
func (SystemContent) Type() MessageType    { return MessageTypeSystem }
func (TripShareContent) Type() MessageType { return MessageTypeTripShare }

func (c TextContent) Preview() string { return c.Text }

func (c ImageContent) Preview() string {
	if c.Caption != "" {
		return "📷 " + c.Caption
	}
	return "📷 Photo"
}

func (c VideoContent) Preview() string {
	if c.Caption != "" {
		return "🎥 " + c.Caption
	}
	return "🎥 Video"
}

func (c LocationContent) Preview() string {
	if c.Location.Address != "" {
		return "📍 " + c.Location.Address
	}
	return "📍 Location"
}

func (c VoiceContent) Preview() string { return "🎤 Voice message" }

func (c SystemContent) Preview() string { return c.Text }

func (c TripShareContent) Preview() string {
	if c.Trip.Title != "" {
		return "🧳 " + c.Trip.Title
	}
	return "🧳 Trip"
}

func (c TextContent) apply(f *MessageFields)   { f.Text = c.Text }
func (c SystemContent) apply(f *MessageFields) { f.Text = c.Text }

func (c ImageContent) apply(f *MessageFields) {
	f.MediaURL, f.MediaThumbnail, f.Text = c.URL, c.Thumbnail, c.Caption
}

func (c VideoContent) apply(f *MessageFields) {
	f.MediaURL, f.MediaThumbnail, f.Text = c.URL, c.Thumbnail, c.Caption
}

func (c LocationContent) apply(f *MessageFields) {
	loc := c.Location
	f.Location = &loc
}

func (c VoiceContent) apply(f *MessageFields) {
	f.MediaURL, f.VoiceDuration = c.URL, c.Duration
}

func (c TripShareContent) apply(f *MessageFields) {
	trip := c.Trip
	f.Trip = &trip
}

// GeoPoint is a shared location
type GeoPoint struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
	Address   string  `json:"address,omitempty" firestore:"address,omitempty"`
}

// TripRef is a shared trip card
type TripRef struct {
	TripID      string `json:"tripId" firestore:"tripId"`
	Title       string `json:"title" firestore:"title"`
	Destination string `json:"destination,omitempty" firestore:"destination,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty" firestore:"coverUrl,omitempty"`
}

// ReplyRef points to the message being replied to
type ReplyRef struct {
	MessageID string `json:"messageId" firestore:"messageId"`
	Text      string `json:"text" firestore:"text"`
	SenderID  string `json:"senderId" firestore:"senderId"`
}

// Sender identifies the author of new messages
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Message is one chat event within a conversation.
// Stored at chats/{conversationId}/messages/{id}.
type Message struct {
	ID                   string
	ConversationID       string
	SenderID             string
	SenderName           string
	Content              Content
	ReplyTo              *ReplyRef
	Status               MessageStatus
	ReadBy               map[string]time.Time
	DeliveredTo          []string
	EditedAt             *time.Time
	DeletedFor           []string
	DeletedForEveryoneAt *time.Time
	CreatedAt            time.Time // zero until the store resolves the server timestamp
}

// NewMessage builds an outgoing message with empty receipt and deletion sets
func NewMessage(conversationID string, sender Sender, content Content, replyTo *ReplyRef) *Message {
	return &Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Content:        content,
		ReplyTo:        replyTo,
		Status:         MessageStatusSent,
		ReadBy:         map[string]time.Time{},
		DeliveredTo:    []string{},
		DeletedFor:     []string{},
	}
}

// Type returns the payload tag
func (m *Message) Type() MessageType {
	if m.Content == nil {
		return ""
	}
	return m.Content.Type()
}

// VisibleTo reports whether userID has not deleted the message for themself
func (m *Message) VisibleTo(userID string) bool {
	return !contains(m.DeletedFor, userID)
}

// IsTombstoned reports whether the message was deleted for everyone
func (m *Message) IsTombstoned() bool {
	return m.DeletedForEveryoneAt != nil
}

// IsReadBy reports whether userID has a read receipt on the message
func (m *Message) IsReadBy(userID string) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

// IsDeliveredTo reports whether userID acknowledged delivery
func (m *Message) IsDeliveredTo(userID string) bool {
	return contains(m.DeliveredTo, userID)
}

// Preview returns the short text used for reply banners and chat summaries
func (m *Message) Preview() string {
	if m.IsTombstoned() {
		return DeletedPlaceholder
	}
	if m.Content == nil {
		return ""
	}
	return m.Content.Preview()
}

// Reply builds the reference stored on a message answering m
func (m *Message) Reply() *ReplyRef {
	return &ReplyRef{
		MessageID: m.ID,
		Text:      m.Preview(),
		SenderID:  m.SenderID,
	}
}

// Clone returns a deep copy safe to hand to another goroutine
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.DeliveredTo = append([]string{}, m.DeliveredTo...)
	out.DeletedFor = append([]string{}, m.DeletedFor...)
	out.ReadBy = make(map[string]time.Time, len(m.ReadBy))
	for k, v := range m.ReadBy {
		out.ReadBy[k] = v
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.DeletedForEveryoneAt != nil {
		t := *m.DeletedForEveryoneAt
		out.DeletedForEveryoneAt = &t
	}
	return &out
}

// MessageFields is the flat document shape persisted in the store and sent
// to clients. Payload fields are populated according to Type.
type MessageFields struct {
	ID                   string               `json:"id" firestore:"-"`
	ConversationID       string               `json:"conversationId" firestore:"-"`
	SenderID             string               `json:"senderId" firestore:"senderId"`
	SenderName           string               `json:"senderName" firestore:"senderName"`
	Type                 MessageType          `json:"type" firestore:"type"`
	Text                 string               `json:"text" firestore:"text"`
	MediaURL             string               `json:"mediaUrl,omitempty" firestore:"mediaUrl"`
	MediaThumbnail       string               `json:"mediaThumbnail,omitempty" firestore:"mediaThumbnail"`
	Location             *GeoPoint            `json:"location,omitempty" firestore:"location,omitempty"`
	VoiceDuration        int                  `json:"voiceDuration,omitempty" firestore:"voiceDuration,omitempty"`
	Trip                 *TripRef             `json:"trip,omitempty" firestore:"trip,omitempty"`
	ReplyTo              *ReplyRef            `json:"replyTo,omitempty" firestore:"replyTo,omitempty"`
	Status               MessageStatus        `json:"status" firestore:"status"`
	ReadBy               map[string]time.Time `json:"readBy" firestore:"readBy"`
	DeliveredTo          []string             `json:"deliveredTo" firestore:"deliveredTo"`
	EditedAt             *time.Time           `json:"editedAt,omitempty" firestore:"editedAt,omitempty"`
	DeletedFor           []string             `json:"deletedFor" firestore:"deletedFor"`
	DeletedForEveryoneAt *time.Time           `json:"deletedForEveryoneAt,omitempty" firestore:"deletedForEveryoneAt,omitempty"`
	CreatedAt            time.Time            `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// Fields flattens the message into its stored shape
func (m *Message) Fields() MessageFields {
	f := MessageFields{
		ID:                   m.ID,
		ConversationID:       m.ConversationID,
		SenderID:             m.SenderID,
		SenderName:           m.SenderName,
		Type:                 m.Type(),
		ReplyTo:              m.ReplyTo,
		Status:               m.Status,
		ReadBy:               m.ReadBy,
		DeliveredTo:          m.DeliveredTo,
		EditedAt:             m.EditedAt,
		DeletedFor:           m.DeletedFor,
		DeletedForEveryoneAt: m.DeletedForEveryoneAt,
		CreatedAt:            m.CreatedAt,
	}
	if m.Content != nil {
		m.Content.apply(&f)
	}
	if f.ReadBy == nil {
		f.ReadBy = map[string]time.Time{}
	}
	if f.DeliveredTo == nil {
		f.DeliveredTo = []string{}
	}
	if f.DeletedFor == nil {
		f.DeletedFor = []string{}
	}
	return f
}

// MessageFromFields rebuilds the tagged message from its stored shape
func MessageFromFields(f MessageFields) (*Message, error) {
	var content Content
	switch f.Type {
	case MessageTypeText:
		content = TextContent{Text: f.Text}
	case MessageTypeImage:
		content = ImageContent{URL: f.MediaURL, Thumbnail: f.MediaThumbnail, Caption: f.Text}
	case MessageTypeVideo:
		content = VideoContent{URL: f.MediaURL, Thumbnail: f.MediaThumbnail, Caption: f.Text}
	case MessageTypeLocation:
		var loc GeoPoint
		if f.Location != nil {
			loc = *f.Location
		}
		content = LocationContent{Location: loc}
	case MessageTypeVoice:
		content = VoiceContent{URL: f.MediaURL, Duration: f.VoiceDuration}
	case MessageTypeSystem:
		content = SystemContent{Text: f.Text}
	case MessageTypeTripShare:
		var trip TripRef
		if f.Trip != nil {
			trip = *f.Trip
		}
		content = TripShareContent{Trip: trip}
	default:
		return nil, fmt.Errorf("unknown message type %q", f.Type)
	}

	return &Message{
		ID:                   f.ID,
		ConversationID:       f.ConversationID,
		SenderID:             f.SenderID,
		SenderName:           f.SenderName,
		Content:              content,
		ReplyTo:              f.ReplyTo,
		Status:               f.Status,
		ReadBy:               f.ReadBy,
		DeliveredTo:          f.DeliveredTo,
		EditedAt:             f.EditedAt,
		DeletedFor:           f.DeletedFor,
		DeletedForEveryoneAt: f.DeletedForEveryoneAt,
		CreatedAt:            f.CreatedAt,
	}, nil
}

// MarshalJSON sends the flat document shape to clients
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

// Tombstone returns the content a variant keeps once deleted for everyone:
// the tag survives, text and media are cleared.
func Tombstone(c Content) Content {
	switch c := c.(type) {
	case ImageContent:
		return ImageContent{}
	case VideoContent:
		return VideoContent{}
	case VoiceContent:
		return VoiceContent{Duration: c.Duration}
	case LocationContent:
		return LocationContent{}
	case TripShareContent:
		return TripShareContent{}
	case SystemContent:
		return SystemContent{}
	default:
		return TextContent{}
	}
}
