// Package globalbus is the client for the bus-tracking integration API.
//
// Two endpoint families are wrapped: trip/schedule listing (Grid/List,
// TripsWithNonConformity) and position history (HistoryPosition/List).
// Every call carries a bearer token; a 401 invalidates the token,
// re-acquires once, and retries the same request exactly once.
// Other non-200/204 responses mean "no data for this request" and are
// logged, not raised.
package globalbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"fleetsync/internal/timefmt"
)

// Config holds upstream endpoint settings.
type Config struct {
	BaseURL               string // e.g. https://integration.systemsatx.com.br
	ClientIntegrationCode string
	Timeout               time.Duration
}

// Client wraps the integration API endpoints.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	cfg        Config
}

// NewClient creates a client using the given token provider. A nil
// httpClient falls back to a default with the configured timeout.
func NewClient(cfg Config, tokens TokenProvider, httpClient *http.Client) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{httpClient: httpClient, tokens: tokens, cfg: cfg}
}

// ListTrips returns the trips effective on the given local calendar date.
func (c *Client) ListTrips(ctx context.Context, day time.Time) ([]Trip, error) {
	url := fmt.Sprintf("%s/GlobalBus/Grid/List?paramClientIntegrationCode=%s",
		c.cfg.BaseURL, c.cfg.ClientIntegrationCode)
	payload := []gridFilter{{
		PropertyName: "EffectiveDate",
		Condition:    "Equal",
		Value:        timefmt.MidnightUTC(day),
	}}

	var trips []Trip
	if err := c.postJSON(ctx, url, payload, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// ListPositions returns the position history for a tracked unit in the
// given UTC window. Both bounds are millisecond ISO-8601 strings.
func (c *Client) ListPositions(ctx context.Context, vehicle, start, end string) ([]Position, error) {
	url := c.cfg.BaseURL + "/Controlws/HistoryPosition/List"
	payload := positionRequest{
		TrackedUnitType:            1,
		TrackedUnitIntegrationCode: vehicle,
		StartDatePosition:          start,
		EndDatePosition:            end,
	}

	var positions []Position
	if err := c.postJSON(ctx, url, payload, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// ListNonConformities returns the trips flagged non-conformant on the
// given local calendar date.
func (c *Client) ListNonConformities(ctx context.Context, day time.Time) ([]NonConformity, error) {
	url := c.cfg.BaseURL + "/GlobalBus/Trip/TripsWithNonConformity"
	initial, final := timefmt.DayBoundsUTC(day)
	payload := nonConformityRequest{
		ClientIntegrationCode: c.cfg.ClientIntegrationCode,
		InitialDate:           initial,
		FinalDate:             final,
		DelayTolerance:        5,
		EarlinessTolerance:    5,
		InconformityType:      1,
	}

	var items []NonConformity
	if err := c.postJSON(ctx, url, payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// postJSON issues an authenticated POST and decodes the response into out.
// A 401 triggers exactly one token refresh and retry. A 204 or any other
// non-200 leaves out empty: the caller sees "no data", never an error,
// unless the transport itself failed.
func (c *Client) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, data, err := c.doOnce(ctx, url, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		resp, data, err = c.doOnce(ctx, url, body)
		if err != nil {
			return err
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
		return nil
	case resp.StatusCode == http.StatusNoContent:
		return nil
	default:
		log.Printf("❌ upstream %s returned %d, treating as no data", url, resp.StatusCode)
		return nil
	}
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte) (*http.Response, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire token: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	return resp, data, nil
}
