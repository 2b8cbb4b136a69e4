package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/diogotoporcov/Finder2/internal/database"
)

// ErrUserNotFound is returned when no user matches the presented API key.
var ErrUserNotFound = errors.New("user not found")

// UserStore reads owning accounts. Account and key issuance happen outside
// this service; only lookup is needed here.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a user store.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByAPIKey resolves the owner for an API key.
func (s *UserStore) GetByAPIKey(ctx context.Context, apiKey string) (*database.User, error) {
	var u database.User
	err := s.pool.QueryRowContext(ctx,
		"SELECT id, email, created_at FROM users WHERE api_key = $1", apiKey,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by API key: %w", err)
	}
	return &u, nil
}
