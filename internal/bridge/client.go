package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/engage/internal/model"
)

// Client is the producer half of the direct call path.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// PublishEvent blocks until the notification service acknowledges
// receipt. A non-OK ack surfaces as the call error.
func (c *Client) PublishEvent(ctx context.Context, ev model.Event) (model.Ack, error) {
	raw, err := ev.Encode()
	if err != nil {
		return model.Ack{}, fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events", bytes.NewReader(raw))
	if err != nil {
		return model.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return model.Ack{}, err
	}
	defer res.Body.Close()

	var ack model.Ack
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return model.Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	if !ack.OK {
		return ack, fmt.Errorf("publish rejected: %s", ack.Error)
	}
	return ack, nil
}
