package model

import "time"

// GameState is the per-user gamification record. One row per user,
// mutated only by the engagement consumer via read-modify-write.
type GameState struct {
	UserID    string    `db:"user_id"`
	Points    int64     `db:"points"`
	Streak    int64     `db:"streak"`
	Badges    []string  `db:"-"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasBadge reports whether the badge is already held. A badge name
// appears at most once; crossing a milestone twice never re-awards.
func (s *GameState) HasBadge(name string) bool {
	for _, b := range s.Badges {
		if b == name {
			return true
		}
	}
	return false
}

// AddBadge appends the badge if absent and reports whether it was added.
func (s *GameState) AddBadge(name string) bool {
	if s.HasBadge(name) {
		return false
	}
	s.Badges = append(s.Badges, name)
	return true
}
