package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/carelink/engage/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrNoDestination means no eligible delivery target exists for the
// user on the requested channel. Routers count it as a skip, not a failure.
var ErrNoDestination = errors.New("no eligible destination")

// DeviceTokensRepository resolves push destinations.
type DeviceTokensRepository interface {
	// Latest returns the most-recently-seen non-revoked token for the
	// user, or ErrNoDestination.
	Latest(ctx context.Context, userID string) (model.DeviceToken, error)
	Upsert(ctx context.Context, userID, token string) error
	Revoke(ctx context.Context, userID, token string) error
}

type DeviceTokensRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeviceTokensRepository(db *sqlx.DB) *DeviceTokensRepositoryImpl {
	return &DeviceTokensRepositoryImpl{db: db}
}

func (r *DeviceTokensRepositoryImpl) Latest(ctx context.Context, userID string) (model.DeviceToken, error) {
	var t model.DeviceToken
	const q = `
		SELECT id, user_id, token, revoked, last_seen_at
		FROM device_tokens
		WHERE user_id = ? AND revoked = 0
		ORDER BY last_seen_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &t, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeviceToken{}, ErrNoDestination
	}
	if err != nil {
		return model.DeviceToken{}, err
	}
	return t, nil
}

func (r *DeviceTokensRepositoryImpl) Upsert(ctx context.Context, userID, token string) error {
	const q = `
		INSERT INTO device_tokens (user_id, token, revoked, last_seen_at)
		VALUES (?, ?, 0, NOW())
		ON DUPLICATE KEY UPDATE revoked = 0, last_seen_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, q, userID, token)
	return err
}

func (r *DeviceTokensRepositoryImpl) Revoke(ctx context.Context, userID, token string) error {
	const q = `UPDATE device_tokens SET revoked = 1 WHERE user_id = ? AND token = ?`
	_, err := r.db.ExecContext(ctx, q, userID, token)
	return err
}
