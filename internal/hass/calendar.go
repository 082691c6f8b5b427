// Package hass creates events on a Home Assistant calendar entity through
// the REST API.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"info-collecte/internal/model"
)

// ErrEventCreationFailed marks any failure of the remote calendar call.
var ErrEventCreationFailed = errors.New("remote calendar event creation failed")

const createEventPath = "/api/services/calendar/create_event"

// Event is an all-day event to create.
type Event struct {
	CalendarID  string
	Start       time.Time
	End         time.Time
	Title       string
	Description string
}

// Client is a Home Assistant REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the instance at baseURL authenticated with a
// long-lived access token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateEvent calls the calendar.create_event service.
func (c *Client) CreateEvent(ctx context.Context, ev Event) error {
	reqBody := map[string]string{
		"entity_id":   ev.CalendarID,
		"summary":     ev.Title,
		"description": ev.Description,
		"start_date":  model.FormatDate(ev.Start),
		"end_date":    model.FormatDate(ev.End),
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "marshaling request"), ErrEventCreationFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createEventPath, bytes.NewReader(reqJSON))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "creating request"), ErrEventCreationFailed)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "sending request"), ErrEventCreationFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Mark(
			errors.Newf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))),
			ErrEventCreationFailed,
		)
	}
	return nil
}
