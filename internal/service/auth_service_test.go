package service

import (
	"context"
	"testing"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/client"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(users UserStore) *AuthService {
	return NewAuthService(users, config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}, zap.NewNop())
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(newFakeUsers())

	reg, err := auth.Register(ctx, &model.UserCreate{Email: " Trader@Example.com ", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", reg.User.Email)
	assert.Equal(t, "bearer", reg.TokenType)

	claims, err := auth.ValidateAccessToken(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, "1", claims.Subject)

	login, err := auth.Login(ctx, &model.UserLogin{Email: "trader@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = auth.Register(ctx, &model.UserCreate{Email: "trader@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	auth := newTestAuth(users)

	_, err := auth.Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, &model.UserLogin{Email: "a@b.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, &model.UserLogin{Email: "nobody@b.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users.users[1].IsActive = false
	_, err = auth.Login(ctx, &model.UserLogin{Email: "a@b.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestAuthService_TokenTypes(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(newFakeUsers())

	tokens, err := auth.Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = auth.ValidateAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Refresh(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refreshed, err := auth.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	_, err = auth.ValidateAccessToken(refreshed.AccessToken)
	assert.NoError(t, err)

	_, err = auth.ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(newFakeUsers())
	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tokens, err := auth.Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = auth.ValidateAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_WrongSecret(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	tokens, err := newTestAuth(users).Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	other := NewAuthService(users, config.AuthConfig{JWTSecret: "other", AccessTokenTTL: time.Minute}, zap.NewNop())
	_, err = other.ValidateAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_UpdateUser(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(newFakeUsers())

	a, err := auth.Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)
	_, err = auth.Register(ctx, &model.UserCreate{Email: "c@d.com", Password: "password1"})
	require.NoError(t, err)

	taken := "c@d.com"
	_, err = auth.UpdateUser(ctx, a.User.ID, &model.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	name, pass := "Asha", "new-password"
	u, err := auth.UpdateUser(ctx, a.User.ID, &model.UserUpdate{FullName: &name, Password: &pass})
	require.NoError(t, err)
	require.NotNil(t, u.FullName)
	assert.Equal(t, "Asha", *u.FullName)

	_, err = auth.Login(ctx, &model.UserLogin{Email: "a@b.com", Password: "new-password"})
	assert.NoError(t, err)

	_, err = auth.GetUser(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBrokerSessions(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	auth := newTestAuth(users)
	tokens, err := auth.Register(ctx, &model.UserCreate{Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)
	id := tokens.User.ID

	_, err = NewBrokerSessions(users, client.Session{}).Resolve(ctx, id)
	assert.ErrorIs(t, err, client.ErrNoSession)

	fallback := client.Session{APIKey: "svc", AccessToken: "svc-token"}
	s, err := NewBrokerSessions(users, fallback).Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fallback, s)

	require.NoError(t, auth.SetBrokerCredentials(ctx, id, &model.BrokerCredentials{APIKey: " key ", AccessToken: "tok"}))
	s, err = NewBrokerSessions(users, fallback).Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, client.Session{APIKey: "key", AccessToken: "tok"}, s)
}
