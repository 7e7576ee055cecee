package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const userColumns = `id, email, password_hash, full_name, is_active, is_superuser,
	kite_api_key, kite_access_token, created_at, updated_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create adds a new user and returns its ID
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string, fullName *string) (int, error) {
	query := `
		INSERT INTO users (email, password_hash, full_name)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int
	if err := r.db.GetContext(ctx, &id, query, email, passwordHash, fullName); err != nil {
		r.logger.Error("failed to create user", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get user", zap.Error(err))
		return nil, err
	}
	user.BrokerConfigured = user.KiteAPIKey != nil && user.KiteAccessToken != nil
	return &user, nil
}

// Update changes the profile fields that are set
func (r *UserRepository) Update(ctx context.Context, id int, email, fullName, passwordHash *string) error {
	query := `
		UPDATE users SET
			email = COALESCE($2, email),
			full_name = COALESCE($3, full_name),
			password_hash = COALESCE($4, password_hash),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, email, fullName, passwordHash); err != nil {
		r.logger.Error("failed to update user", zap.Error(err), zap.Int("id", id))
		return err
	}
	return nil
}

// UpdateBrokerCredentials stores the Kite Connect credentials of a user
func (r *UserRepository) UpdateBrokerCredentials(ctx context.Context, id int, apiKey, accessToken string) error {
	query := `
		UPDATE users SET kite_api_key = $2, kite_access_token = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, apiKey, accessToken); err != nil {
		r.logger.Error("failed to update broker credentials", zap.Error(err), zap.Int("id", id))
		return err
	}
	return nil
}
