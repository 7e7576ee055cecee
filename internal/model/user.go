package model

import (
	"time"
)

// User represents a user in the system
type User struct {
	ID               int        `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	FullName         *string    `json:"full_name,omitempty" db:"full_name"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	IsSuperuser      bool       `json:"is_superuser" db:"is_superuser"`
	KiteAPIKey       *string    `json:"-" db:"kite_api_key"`
	KiteAccessToken  *string    `json:"-" db:"kite_access_token"`
	BrokerConfigured bool       `json:"broker_configured" db:"-"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// UserCreate represents data needed to create a new user
type UserCreate struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName *string `json:"full_name"`
}

// UserUpdate represents data for updating the current user
type UserUpdate struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// BrokerCredentials represents the Kite Connect credentials of a user
type BrokerCredentials struct {
	APIKey      string `json:"api_key" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
}
