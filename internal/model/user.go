package model

import (
	"time"
)

// User is the profile of an authenticated Tripzi user.
// The ID is the Firebase Auth uid.
type User struct {
	ID          string     `json:"id" gorm:"primaryKey;size:128"`
	DisplayName string     `json:"displayName" gorm:"size:100;not null"`
	Email       string     `json:"email" gorm:"size:255;index"`
	PhotoURL    string     `json:"photoURL" gorm:"size:500;default:''"`
	Role        string     `json:"role,omitempty" gorm:"size:20;default:'traveler'"`
	IsOnline    bool       `json:"isOnline" gorm:"default:false"`
	LastSeen    *time.Time `json:"lastSeen"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Sender returns the identity used when the user authors messages
func (u *User) Sender() Sender {
	return Sender{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}

// Detail returns the participant entry denormalized into conversations
func (u *User) Detail(role string) ParticipantDetail {
	return ParticipantDetail{
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Role:        role,
	}
}
