package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/repository"
)

var errBreakerOpen = errors.New("notifier: relay breaker open")

// deviceSource and destinationSource are the slices of the repositories
// the adapters actually use.
type deviceSource interface {
	Latest(ctx context.Context, userID string) (model.DeviceToken, error)
}

type destinationSource interface {
	Active(ctx context.Context, userID string, ch model.Channel) (model.VerifiedDestination, error)
}

// relay is the shared HTTP POST path to an external delivery provider,
// breaker-guarded the same way for push and SMS.
type relay struct {
	name    string
	url     string
	client  *http.Client
	breaker *MicroBreaker
}

func newRelay(name string, ac config.AdapterConfig) relay {
	timeout := ac.TimeoutMs
	if timeout <= 0 {
		timeout = 3000
	}
	threshold := ac.Breaker.FailThreshold
	if threshold <= 0 {
		threshold = 3
	}
	openFor := ac.Breaker.OpenForMs
	if openFor <= 0 {
		openFor = 15000
	}

	return relay{
		name:    name,
		url:     strings.TrimRight(ac.BaseURL, "/") + ac.Path,
		client:  &http.Client{Timeout: time.Duration(timeout) * time.Millisecond},
		breaker: NewMicroBreaker(threshold, time.Duration(openFor)*time.Millisecond),
	}
}

func (r *relay) post(ctx context.Context, body any) error {
	if !r.breaker.TryAcquire() {
		return errBreakerOpen
	}

	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(b))
	if err != nil {
		r.breaker.OnFailure()
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		r.breaker.OnFailure()
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		r.breaker.OnFailure()
		return fmt.Errorf("relay=%s status=%d", r.name, res.StatusCode)
	}

	r.breaker.OnSuccess()
	return nil
}

// PushAdapter posts to the push relay using the recipient's latest
// non-revoked device token.
type PushAdapter struct {
	Devices deviceSource
	relay   relay
}

func newPushAdapter(ac config.AdapterConfig, deps Deps) (Adapter, error) {
	if err := requireBaseURL(ac); err != nil {
		return nil, err
	}
	return &PushAdapter{Devices: deps.Devices, relay: newRelay("push", ac)}, nil
}

func (p *PushAdapter) Name() string { return "push-http" }

func (p *PushAdapter) Send(ctx context.Context, recipientID string, msg Message) error {
	tok, err := p.Devices.Latest(ctx, recipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNoDestination) {
			return ErrSkip
		}
		return err
	}

	return p.relay.post(ctx, map[string]any{
		"token":   tok.Token,
		"title":   msg.Title,
		"body":    msg.Body,
		"eventId": msg.EventID,
	})
}

// SMSAdapter posts to the SMS relay using the recipient's active
// verified destination.
type SMSAdapter struct {
	Destinations destinationSource
	relay        relay
}

func newSMSAdapter(ac config.AdapterConfig, deps Deps) (Adapter, error) {
	if err := requireBaseURL(ac); err != nil {
		return nil, err
	}
	return &SMSAdapter{Destinations: deps.Destinations, relay: newRelay("sms", ac)}, nil
}

func (s *SMSAdapter) Name() string { return "sms-http" }

func (s *SMSAdapter) Send(ctx context.Context, recipientID string, msg Message) error {
	dest, err := s.Destinations.Active(ctx, recipientID, model.ChannelSMS)
	if err != nil {
		if errors.Is(err, repository.ErrNoDestination) {
			return ErrSkip
		}
		return err
	}

	return s.relay.post(ctx, map[string]any{
		"to":      dest.Address,
		"text":    msg.Title + ": " + msg.Body,
		"eventId": msg.EventID,
	})
}
