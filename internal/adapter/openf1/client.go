package openf1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("openf1 API error")

// Endpoint names, also used as metric labels.
const (
	EndpointSessions  = "sessions"
	EndpointDrivers   = "drivers"
	EndpointIntervals = "intervals"
	EndpointPosition  = "position"
)

// Client reads live timing data from the OpenF1 REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sessionKey string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenF1 client scoped to one session key ("latest" or
// a numeric key).
func NewClient(baseURL, sessionKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		sessionKey: sessionKey,
		metrics:    metrics,
		logger:     logger,
	}
}

// Sessions returns the session descriptors for the configured key.
func (c *Client) Sessions(ctx context.Context) ([]domain.Session, error) {
	records, err := fetchList[sessionRecord](ctx, c, EndpointSessions)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Drivers returns the roster for the configured session keyed by car number.
func (c *Client) Drivers(ctx context.Context) (domain.Roster, error) {
	records, err := fetchList[driverRecord](ctx, c, EndpointDrivers)
	if err != nil {
		return nil, err
	}
	roster := make(domain.Roster, len(records))
	for _, r := range records {
		d := r.toDomain()
		if d.CarID <= 0 {
			continue
		}
		roster[d.CarID] = d
	}
	return roster, nil
}

// Intervals returns the interval time series for the configured session.
func (c *Client) Intervals(ctx context.Context) ([]domain.IntervalSample, error) {
	records, err := fetchList[intervalRecord](ctx, c, EndpointIntervals)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IntervalSample, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Positions returns the position time series for the configured session.
func (c *Client) Positions(ctx context.Context) ([]domain.PositionSample, error) {
	records, err := fetchList[positionRecord](ctx, c, EndpointPosition)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PositionSample, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func fetchList[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	start := time.Now()
	body, err := c.get(ctx, endpoint)
	c.metrics.FeedDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(endpoint, outcome(ctx, err)).Inc()
		return nil, err
	}

	records, err := decodeList[T](body)
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	c.metrics.FeedRequests.WithLabelValues(endpoint, "success").Inc()
	c.logger.Debug("openf1 fetch", "endpoint", endpoint, "records", len(records), "duration", time.Since(start))
	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	params := url.Values{"session_key": {c.sessionKey}}
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrStatus, endpoint, resp.StatusCode, bytes.TrimSpace(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return body, nil
}

// decodeList accepts a JSON array, an object of records keyed by anything,
// or null.
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var keyed map[string]T
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, err
		}
		out := make([]T, 0, len(keyed))
		for _, v := range keyed {
			out = append(out, v)
		}
		return out, nil
	}

	var list []T
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func outcome(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}
