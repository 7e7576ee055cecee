package service

import (
	"context"
	"fmt"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
)

// UserLookup loads a user by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// SessionResolver picks the broker session used on behalf of a user.
type SessionResolver interface {
	Resolve(ctx context.Context, userID int) (client.Session, error)
}

// BrokerSessions prefers the credentials a user stored and falls back to the
// configured service account.
type BrokerSessions struct {
	users    UserLookup
	fallback client.Session
}

// NewBrokerSessions creates a new session resolver
func NewBrokerSessions(users UserLookup, fallback client.Session) *BrokerSessions {
	return &BrokerSessions{users: users, fallback: fallback}
}

// Resolve returns the session for userID or client.ErrNoSession.
func (b *BrokerSessions) Resolve(ctx context.Context, userID int) (client.Session, error) {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return client.Session{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user != nil && user.KiteAPIKey != nil && user.KiteAccessToken != nil {
		s := client.Session{APIKey: *user.KiteAPIKey, AccessToken: *user.KiteAccessToken}
		if s.Valid() {
			return s, nil
		}
	}
	if b.fallback.Valid() {
		return b.fallback, nil
	}
	return client.Session{}, client.ErrNoSession
}
