package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrBadEvent marks a message body that cannot be turned into an Event.
// Consumers log and skip these (at-least-once commit, no crash).
var ErrBadEvent = fmt.Errorf("bad event")

type Action string

const (
	ActionDailyCheckin      Action = "daily_checkin"
	ActionMedicationTaken   Action = "medication_taken"
	ActionExerciseCompleted Action = "exercise_completed"
	ActionSocialCall        Action = "social_call"
	ActionMissedCheckin     Action = "missed_checkin"
)

func (a Action) String() string { return string(a) }

type EventType string

const (
	TypeEngagement   EventType = "engagement"
	TypeBadgeAwarded EventType = "badge_awarded"
	TypeNotification EventType = "notification"
)

func (t EventType) String() string { return string(t) }

// Audience names a downstream delivery surface. An event without any
// audience fans out to all of them.
type Audience string

const (
	AudienceDashboard Audience = "dashboard"
	AudienceMobile    Audience = "mobile"
)

func ParseAudience(s string) (Audience, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dashboard":
		return AudienceDashboard, true
	case "mobile":
		return AudienceMobile, true
	default:
		return "", false
	}
}

// Event is the wire unit flowing through engagement.events, the broker
// and gamification.events. Immutable once published.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"userId"`
	Action    Action          `json:"action,omitempty"`
	Badge     string          `json:"badge,omitempty"`
	Target    []Audience      `json:"target,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParseEvent decodes and validates a wire body. Errors wrap ErrBadEvent.
func ParseEvent(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrBadEvent)
	}
	if ev.UserID == "" {
		return Event{}, fmt.Errorf("%w: missing userId", ErrBadEvent)
	}
	for _, a := range ev.Target {
		if _, ok := ParseAudience(string(a)); !ok {
			return Event{}, fmt.Errorf("%w: unknown audience %q", ErrBadEvent, a)
		}
	}
	return ev, nil
}

// DedupKey is the processed-ledger key for this event. Producers may
// omit id on the wire; those events fall back to a digest of the
// fields identifying the occurrence, so a redelivery collides with the
// first copy instead of a shared empty key swallowing distinct events.
func (e Event) DedupKey() string {
	if e.ID != "" {
		return e.ID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(e.Type),
		e.UserID,
		string(e.Action),
		e.Badge,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// TargetsAudience reports whether the event should reach the given
// audience. Empty target means every audience.
func (e Event) TargetsAudience(a Audience) bool {
	if len(e.Target) == 0 {
		return true
	}
	for _, t := range e.Target {
		if t == a {
			return true
		}
	}
	return false
}

func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }
