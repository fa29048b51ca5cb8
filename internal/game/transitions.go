// Package game folds the engagement event log into per-user
// gamification state and emits derived badge_awarded events.
package game

import (
	"sort"
	"sync"

	"github.com/carelink/engage/internal/model"
)

// Transition mutates state for one delivered event. Transitions must be
// deterministic: idempotency under redelivery comes from the processed
// ledger, determinism is on the transition itself.
type Transition func(st *model.GameState, ev model.Event)

var (
	transitionMu sync.RWMutex
	transitions  = map[model.Action]Transition{}
)

// RegisterTransition binds an action to its state change. New action
// types hook in here without touching the consumer loop.
func RegisterTransition(a model.Action, t Transition) {
	transitionMu.Lock()
	defer transitionMu.Unlock()
	transitions[a] = t
}

func transitionFor(a model.Action) (Transition, bool) {
	transitionMu.RLock()
	defer transitionMu.RUnlock()
	t, ok := transitions[a]
	return t, ok
}

// BadgeRule awards Name when Satisfied newly holds after a transition.
// Already-held badges are never re-awarded.
type BadgeRule struct {
	Name      string
	Satisfied func(st *model.GameState) bool
}

var (
	badgeMu    sync.RWMutex
	badgeRules []BadgeRule
)

// RegisterBadgeRule adds a threshold predicate. Rules are kept sorted by
// badge name so award emission order is deterministic.
func RegisterBadgeRule(r BadgeRule) {
	badgeMu.Lock()
	defer badgeMu.Unlock()
	badgeRules = append(badgeRules, r)
	sort.Slice(badgeRules, func(i, j int) bool { return badgeRules[i].Name < badgeRules[j].Name })
}

// evaluateBadges adds every newly-satisfied badge to st and returns the
// names added.
func evaluateBadges(st *model.GameState) []string {
	badgeMu.RLock()
	defer badgeMu.RUnlock()

	var added []string
	for _, r := range badgeRules {
		if st.HasBadge(r.Name) {
			continue
		}
		if r.Satisfied(st) {
			st.AddBadge(r.Name)
			added = append(added, r.Name)
		}
	}
	return added
}

const (
	BadgeWeekStreak  = "7-day streak"
	BadgeMonthStreak = "30-day streak"
	BadgeCentury     = "century"
)

func init() {
	RegisterTransition(model.ActionDailyCheckin, func(st *model.GameState, _ model.Event) {
		st.Points += 10
		st.Streak++
	})
	RegisterTransition(model.ActionMedicationTaken, func(st *model.GameState, _ model.Event) {
		st.Points += 5
	})
	RegisterTransition(model.ActionExerciseCompleted, func(st *model.GameState, _ model.Event) {
		st.Points += 15
	})
	RegisterTransition(model.ActionSocialCall, func(st *model.GameState, _ model.Event) {
		st.Points += 5
	})
	RegisterTransition(model.ActionMissedCheckin, func(st *model.GameState, _ model.Event) {
		st.Streak = 0
	})

	RegisterBadgeRule(BadgeRule{Name: BadgeWeekStreak, Satisfied: func(st *model.GameState) bool { return st.Streak >= 7 }})
	RegisterBadgeRule(BadgeRule{Name: BadgeMonthStreak, Satisfied: func(st *model.GameState) bool { return st.Streak >= 30 }})
	RegisterBadgeRule(BadgeRule{Name: BadgeCentury, Satisfied: func(st *model.GameState) bool { return st.Points >= 100 }})
}
