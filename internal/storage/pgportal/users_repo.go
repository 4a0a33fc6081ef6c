package pgportal

import (
	"context"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateUser(ctx context.Context, email, name string, isAdmin bool, apiToken string) (*models.User, error) {
	now := time.Now().UTC()

	var u models.User
	err := s.db.QueryRow(ctx, `
INSERT INTO users (email, name, is_admin, api_token, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, email, name, is_admin, created_at
`, email, name, isAdmin, apiToken, now).Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, "insert user")
	}
	return &u, nil
}

func (s *Storage) GetUserByToken(ctx context.Context, apiToken string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, email, name, is_admin, created_at
FROM users
WHERE api_token = $1
`, apiToken).Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "user by token")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user by token")
	}
	return &u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, email, name, is_admin, created_at
FROM users
WHERE id = $1
`, id).Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "user by id")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user by id")
	}
	return &u, nil
}
