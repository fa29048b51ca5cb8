package repository

import (
	"context"

	"github.com/carelink/engage/internal/model"
	"github.com/jmoiron/sqlx"
)

// FeedRepository persists dashboard feed rows written by the feed adapter.
type FeedRepository interface {
	Insert(ctx context.Context, item model.FeedItem) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.FeedItem, error)
}

type FeedRepositoryImpl struct {
	db *sqlx.DB
}

func NewFeedRepository(db *sqlx.DB) *FeedRepositoryImpl {
	return &FeedRepositoryImpl{db: db}
}

func (r *FeedRepositoryImpl) Insert(ctx context.Context, item model.FeedItem) error {
	const q = `
		INSERT INTO feed_items (id, user_id, title, body, event_type, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`
	_, err := r.db.ExecContext(ctx, q, item.ID, item.UserID, item.Title, item.Body, item.EventType)
	return err
}

func (r *FeedRepositoryImpl) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.FeedItem, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []model.FeedItem
	const q = `
		SELECT id, user_id, title, body, event_type, created_at
		FROM feed_items
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	if err := r.db.SelectContext(ctx, &rows, q, userID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
