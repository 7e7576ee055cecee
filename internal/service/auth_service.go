package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInactiveUser       = errors.New("user is inactive")
)

// UserStore persists users.
type UserStore interface {
	UserLookup
	Create(ctx context.Context, email, passwordHash string, fullName *string) (int, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id int, email, fullName, passwordHash *string) error
	UpdateBrokerCredentials(ctx context.Context, id int, apiKey, accessToken string) error
}

// Claims are the JWT claims issued by AuthService.
type Claims struct {
	UserID    int    `json:"uid"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// AuthService handles registration, login and token issuing
type AuthService struct {
	users      UserStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		bcryptCost: cost,
		now:        time.Now,
		logger:     logger,
	}
}

// Register creates a user and logs them in
func (s *AuthService) Register(ctx context.Context, req *model.UserCreate) (*model.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := s.users.Create(ctx, email, string(hash), req.FullName)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d vanished after create", id)
	}

	s.logger.Info("User registered", zap.Int("user_id", id))
	return s.issue(user)
}

// Login checks credentials and issues a token pair
func (s *AuthService) Login(ctx context.Context, req *model.UserLogin) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return s.issue(user)
}

// Refresh exchanges a refresh token for a new token pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidToken
	}
	return s.issue(user)
}

// ValidateAccessToken returns the claims of a valid access token
func (s *AuthService) ValidateAccessToken(token string) (*Claims, error) {
	return s.parse(token, TokenTypeAccess)
}

// GetUser returns a user by ID
func (s *AuthService) GetUser(ctx context.Context, id int) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	return user, nil
}

// UpdateUser changes the profile of a user
func (s *AuthService) UpdateUser(ctx context.Context, id int, req *model.UserUpdate) (*model.User, error) {
	var email, hash *string
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		other, err := s.users.GetByEmail(ctx, e)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, ErrEmailTaken
		}
		email = &e
	}
	if req.Password != nil {
		b, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(b)
		hash = &h
	}

	if err := s.users.Update(ctx, id, email, req.FullName, hash); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// SetBrokerCredentials stores the Kite Connect credentials of a user
func (s *AuthService) SetBrokerCredentials(ctx context.Context, id int, creds *model.BrokerCredentials) error {
	if err := s.users.UpdateBrokerCredentials(ctx, id, strings.TrimSpace(creds.APIKey), strings.TrimSpace(creds.AccessToken)); err != nil {
		return err
	}
	s.logger.Info("Broker credentials updated", zap.Int("user_id", id))
	return nil
}

func (s *AuthService) issue(user *model.User) (*model.TokenResponse, error) {
	now := s.now()
	access, accessExp, err := s.sign(user.ID, TokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(user.ID, TokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &model.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    accessExp,
		User:         *user,
	}, nil
}

func (s *AuthService) sign(userID int, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *AuthService) parse(token, wantType string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
