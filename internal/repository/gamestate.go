package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/carelink/engage/internal/model"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateEvent means this event id was already folded into the
// user's state; the redelivered message must be committed and skipped.
var ErrDuplicateEvent = errors.New("event already processed")

// GameStateRepository persists per-user gamification state together
// with the processed-event ledger that makes transitions idempotent
// under at-least-once delivery.
type GameStateRepository interface {
	// Load returns the state for userID, or a fresh zero state when the
	// user has never produced an event (lazy creation).
	Load(ctx context.Context, userID string) (model.GameState, error)
	// Apply writes the mutated state, any newly-awarded badges and the
	// processed-event ledger row in one transaction. Returns
	// ErrDuplicateEvent when eventID was applied before.
	Apply(ctx context.Context, st model.GameState, eventID string, newBadges []string) error
}

type GameStateRepositoryImpl struct {
	db *sqlx.DB
}

func NewGameStateRepository(db *sqlx.DB) *GameStateRepositoryImpl {
	return &GameStateRepositoryImpl{db: db}
}

func (r *GameStateRepositoryImpl) Load(ctx context.Context, userID string) (model.GameState, error) {
	var st model.GameState
	const q = `SELECT user_id, points, streak, updated_at FROM game_state WHERE user_id = ?`
	err := r.db.GetContext(ctx, &st, q, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GameState{UserID: userID}, nil
	}
	if err != nil {
		return model.GameState{}, err
	}

	const qb = `SELECT badge FROM game_badges WHERE user_id = ? ORDER BY badge`
	if err := r.db.SelectContext(ctx, &st.Badges, qb, userID); err != nil {
		return model.GameState{}, err
	}
	return st, nil
}

func (r *GameStateRepositoryImpl) Apply(ctx context.Context, st model.GameState, eventID string, newBadges []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Ledger first: the primary-key collision is the replay detector.
	const ql = `INSERT INTO processed_events (user_id, event_id, processed_at) VALUES (?, ?, NOW())`
	if _, err := tx.ExecContext(ctx, ql, st.UserID, eventID); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicateEvent
		}
		return err
	}

	const qs = `
		INSERT INTO game_state (user_id, points, streak, updated_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE points = VALUES(points), streak = VALUES(streak), updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, qs, st.UserID, st.Points, st.Streak); err != nil {
		return err
	}

	// Unique (user_id, badge) keeps the badge set a set.
	const qb = `INSERT IGNORE INTO game_badges (user_id, badge, awarded_at) VALUES (?, ?, NOW())`
	for _, b := range newBadges {
		if _, err := tx.ExecContext(ctx, qb, st.UserID, b); err != nil {
			return err
		}
	}

	return tx.Commit()
}
