package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/carelink/engage/internal/model"
	"github.com/jmoiron/sqlx"
)

// DestinationsRepository resolves SMS/voice-verified contact points.
type DestinationsRepository interface {
	// Active returns the active verified destination for (user, channel),
	// or ErrNoDestination.
	Active(ctx context.Context, userID string, ch model.Channel) (model.VerifiedDestination, error)
}

type DestinationsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDestinationsRepository(db *sqlx.DB) *DestinationsRepositoryImpl {
	return &DestinationsRepositoryImpl{db: db}
}

func (r *DestinationsRepositoryImpl) Active(ctx context.Context, userID string, ch model.Channel) (model.VerifiedDestination, error) {
	var d model.VerifiedDestination
	const q = `
		SELECT id, user_id, address, channel, is_active
		FROM verified_destinations
		WHERE user_id = ? AND channel = ? AND is_active = 1
		ORDER BY id DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &d, q, userID, ch.String())
	if errors.Is(err, sql.ErrNoRows) {
		return model.VerifiedDestination{}, ErrNoDestination
	}
	if err != nil {
		return model.VerifiedDestination{}, err
	}
	return d, nil
}
