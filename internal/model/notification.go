package model

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelPush Channel = "push"
	ChannelSMS  Channel = "sms"
	ChannelFeed Channel = "feed"
	ChannelMock Channel = "mock"
)

func (c Channel) String() string { return string(c) }

func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelSMS || c == ChannelFeed || c == ChannelMock
}

// ParseChannel normalizes input; empty or unknown => (mock, false).
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "push":
		return ChannelPush, true
	case "sms":
		return ChannelSMS, true
	case "feed":
		return ChannelFeed, true
	case "mock":
		return ChannelMock, true
	default:
		return ChannelMock, false
	}
}

// DeviceToken is a push destination. Valid only while revoked=false;
// the most recently seen token wins when several exist for a user.
type DeviceToken struct {
	ID         int64     `db:"id"`
	UserID     string    `db:"user_id"`
	Token      string    `db:"token"`
	Revoked    bool      `db:"revoked"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

// VerifiedDestination is an SMS/voice-verified contact point. Only
// active rows are eligible delivery targets.
type VerifiedDestination struct {
	ID       int64   `db:"id"`
	UserID   string  `db:"user_id"`
	Address  string  `db:"address"`
	Channel  Channel `db:"channel"`
	IsActive bool    `db:"is_active"`
}

// FeedItem is a dashboard feed row written by the feed adapter.
type FeedItem struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	EventType string    `db:"event_type"`
	CreatedAt time.Time `db:"created_at"`
}

// Ack is the unary bridge response: receipt, not delivery.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
