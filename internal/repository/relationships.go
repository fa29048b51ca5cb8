package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RelationshipsRepository walks the senior <-> family/caregiver graph.
type RelationshipsRepository interface {
	// CaregiversOf lists the user ids linked to the senior. The senior
	// is not included.
	CaregiversOf(ctx context.Context, seniorID string) ([]string, error)
}

type RelationshipsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRelationshipsRepository(db *sqlx.DB) *RelationshipsRepositoryImpl {
	return &RelationshipsRepositoryImpl{db: db}
}

func (r *RelationshipsRepositoryImpl) CaregiversOf(ctx context.Context, seniorID string) ([]string, error) {
	var ids []string
	const q = `SELECT caregiver_id FROM relationships WHERE senior_id = ? ORDER BY caregiver_id`
	if err := r.db.SelectContext(ctx, &ids, q, seniorID); err != nil {
		return nil, err
	}
	return ids, nil
}
