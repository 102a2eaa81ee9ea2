package model

import (
	"time"
)

// PushProvider identifies the push service a device token belongs to
type PushProvider string

const (
	PushProviderFCM  PushProvider = "fcm"
	PushProviderExpo PushProvider = "expo"
)

// UserDevice represents a user's device for push notifications
type UserDevice struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	UserID       string       `json:"userId" gorm:"size:128;not null;uniqueIndex:idx_user_token"`
	Token        string       `json:"token" gorm:"not null;uniqueIndex:idx_user_token"`
	Provider     PushProvider `json:"provider" gorm:"size:10;default:'expo'"`
	Platform     string       `json:"platform" gorm:"size:20;default:'unknown'"` // android, ios
	LastActiveAt time.Time    `json:"lastActiveAt"`
	CreatedAt    time.Time    `json:"createdAt"`
}
