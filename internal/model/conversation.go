package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// ConversationType defines whether the conversation is direct or group
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// Participant roles stored in participantDetails
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ParticipantDetail is the denormalized profile of a participant
type ParticipantDetail struct {
	DisplayName string `json:"displayName" firestore:"displayName"`
	PhotoURL    string `json:"photoURL" firestore:"photoURL"`
	Role        string `json:"role,omitempty" firestore:"role,omitempty"`
}

// LastMessage is the conversation summary shown in chat lists
type LastMessage struct {
	Text       string      `json:"text" firestore:"text"`
	SenderID   string      `json:"senderId" firestore:"senderId"`
	SenderName string      `json:"senderName" firestore:"senderName"`
	Timestamp  time.Time   `json:"timestamp" firestore:"timestamp"`
	Type       MessageType `json:"type" firestore:"type"`
}

// Conversation represents a chat conversation (direct or group).
// Stored at chats/{id}.
type Conversation struct {
	ID                 string                       `json:"id" firestore:"-"`
	Type               ConversationType             `json:"type" firestore:"type"`
	Participants       []string                     `json:"participants" firestore:"participants"`
	ParticipantDetails map[string]ParticipantDetail `json:"participantDetails" firestore:"participantDetails"`
	GroupName          string                       `json:"groupName,omitempty" firestore:"groupName,omitempty"`
	GroupIcon          string                       `json:"groupIcon,omitempty" firestore:"groupIcon,omitempty"`
	LastMessage        *LastMessage                 `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount        map[string]int               `json:"unreadCount" firestore:"unreadCount"`
	MutedBy            []string                     `json:"mutedBy" firestore:"mutedBy"`
	PinnedBy           []string                     `json:"pinnedBy" firestore:"pinnedBy"`
	Typing             map[string]time.Time         `json:"typing,omitempty" firestore:"typing,omitempty"`
	CreatedAt          time.Time                    `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt          time.Time                    `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// NewConversation builds a conversation with every counter and set initialized
func NewConversation(convType ConversationType, details map[string]ParticipantDetail) *Conversation {
	participants := make([]string, 0, len(details))
	unread := make(map[string]int, len(details))
	for uid := range details {
		participants = append(participants, uid)
		unread[uid] = 0
	}
	sort.Strings(participants)

	return &Conversation{
		Type:               convType,
		Participants:       participants,
		ParticipantDetails: details,
		UnreadCount:        unread,
		MutedBy:            []string{},
		PinnedBy:           []string{},
	}
}

// HasParticipant reports whether userID takes part in the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

// IsDirectBetween reports whether c is the direct conversation of a and b
func (c *Conversation) IsDirectBetween(a, b string) bool {
	return a != b && c.Type == ConversationTypeDirect && c.HasParticipant(a) && c.HasParticipant(b)
}

// OtherParticipants returns every participant except userID
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// IsAdmin reports whether userID holds the admin role
func (c *Conversation) IsAdmin(userID string) bool {
	return c.ParticipantDetails[userID].Role == RoleAdmin
}

func (c *Conversation) IsMutedBy(userID string) bool {
	return contains(c.MutedBy, userID)
}

func (c *Conversation) IsPinnedBy(userID string) bool {
	return contains(c.PinnedBy, userID)
}

// Clone returns a deep copy safe to hand to another goroutine
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.MutedBy = append([]string{}, c.MutedBy...)
	out.PinnedBy = append([]string{}, c.PinnedBy...)
	out.ParticipantDetails = make(map[string]ParticipantDetail, len(c.ParticipantDetails))
	for k, v := range c.ParticipantDetails {
		out.ParticipantDetails[k] = v
	}
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.Typing != nil {
		out.Typing = make(map[string]time.Time, len(c.Typing))
		for k, v := range c.Typing {
			out.Typing[k] = v
		}
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

// DirectConversationID derives the id of the direct conversation between two
// users. The pair is sorted, so both sides compute the same id.
func DirectConversationID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(pair[0] + "\x00" + pair[1]))
	return "dm_" + hex.EncodeToString(sum[:16])
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
