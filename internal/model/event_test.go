package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseEvent_Valid(t *testing.T) {
	body := []byte(`{"id":"01ABC","type":"engagement","userId":"u1","action":"daily_checkin","timestamp":"2024-01-01T08:00:00Z"}`)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.UserID != "u1" {
		t.Errorf("UserID: got %q, want %q", ev.UserID, "u1")
	}
	if ev.Action != ActionDailyCheckin {
		t.Errorf("Action: got %q, want %q", ev.Action, ActionDailyCheckin)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should be parsed")
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing type", `{"userId":"u1"}`},
		{"missing userId", `{"type":"engagement"}`},
		{"unknown audience", `{"type":"engagement","userId":"u1","target":["fax"]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tc.body))
			if !errors.Is(err, ErrBadEvent) {
				t.Fatalf("got %v, want ErrBadEvent", err)
			}
		})
	}
}

func TestDedupKey(t *testing.T) {
	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	withID := Event{ID: "evt-1", Type: TypeEngagement, UserID: "u1", Timestamp: ts}
	if got := withID.DedupKey(); got != "evt-1" {
		t.Fatalf("id set: got %q, want the id itself", got)
	}

	a := Event{Type: TypeEngagement, UserID: "u1", Action: ActionDailyCheckin, Timestamp: ts}
	b := a
	if a.DedupKey() != b.DedupKey() {
		t.Fatal("redelivered copy must produce the same key")
	}
	if len(a.DedupKey()) != 64 {
		t.Fatalf("key length %d, want 64 (ledger column width)", len(a.DedupKey()))
	}

	nextDay := a
	nextDay.Timestamp = ts.Add(24 * time.Hour)
	if a.DedupKey() == nextDay.DedupKey() {
		t.Fatal("distinct occurrences must not collide")
	}

	otherUser := a
	otherUser.UserID = "u2"
	if a.DedupKey() == otherUser.DedupKey() {
		t.Fatal("different users must not collide")
	}
}

func TestTargetsAudience(t *testing.T) {
	all := Event{Type: TypeEngagement, UserID: "u1"}
	if !all.TargetsAudience(AudienceDashboard) || !all.TargetsAudience(AudienceMobile) {
		t.Error("empty target should reach every audience")
	}

	dash := Event{Type: TypeEngagement, UserID: "u1", Target: []Audience{AudienceDashboard}}
	if !dash.TargetsAudience(AudienceDashboard) {
		t.Error("targeted audience should match")
	}
	if dash.TargetsAudience(AudienceMobile) {
		t.Error("untargeted audience must not match")
	}
}

func TestGameState_BadgeSet(t *testing.T) {
	st := GameState{UserID: "u1"}
	if !st.AddBadge("7-day streak") {
		t.Fatal("first add should report true")
	}
	if st.AddBadge("7-day streak") {
		t.Fatal("second add of the same badge must be a no-op")
	}
	if len(st.Badges) != 1 {
		t.Fatalf("badge set size: got %d, want 1", len(st.Badges))
	}
}
