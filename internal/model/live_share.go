package model

import "time"

// LiveShare is a user's live location broadcast inside a conversation.
// Stored at chats/{conversationId}/live_shares/{userId}.
type LiveShare struct {
	UserID      string    `json:"userId" firestore:"-"`
	IsActive    bool      `json:"isActive" firestore:"isActive"`
	ValidUntil  time.Time `json:"validUntil" firestore:"validUntil"`
	Latitude    float64   `json:"latitude" firestore:"latitude"`
	Longitude   float64   `json:"longitude" firestore:"longitude"`
	Heading     float64   `json:"heading" firestore:"heading"`
	DisplayName string    `json:"displayName" firestore:"displayName"`
	PhotoURL    string    `json:"photoURL" firestore:"photoURL"`
	Timestamp   time.Time `json:"timestamp" firestore:"timestamp,serverTimestamp"`
}

// Position is a single fix reported by a device location watcher
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   float64   `json:"heading"`
	At        time.Time `json:"-"`
}

// IsActiveAt reports whether the share counts as live at now.
// Expiry is time based, so callers re-check on every snapshot.
func (s *LiveShare) IsActiveAt(now time.Time) bool {
	return s.IsActive && s.ValidUntil.After(now)
}

// ActiveShares filters shares down to those live at now
func ActiveShares(shares []*LiveShare, now time.Time) []*LiveShare {
	active := make([]*LiveShare, 0, len(shares))
	for _, s := range shares {
		if s.IsActiveAt(now) {
			active = append(active, s)
		}
	}
	return active
}
