package xtream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/xtarr/internal/version"
)

// DefaultTimeout bounds a request made with the client's own HTTP client.
const DefaultTimeout = 2 * time.Minute

const (
	pathPlayerAPI = "/player_api.php"

	paramUsername = "username"
	paramPassword = "password"
	paramAction   = "action"
	paramVODID    = "vod_id"
	paramSeriesID = "series_id"

	// errorBodyLimit caps how much of a failed response ends up in a
	// StatusError.
	errorBodyLimit = 1024
)

// Player API actions.
const (
	ActionGetLiveCategories   = "get_live_categories"
	ActionGetVODCategories    = "get_vod_categories"
	ActionGetSeriesCategories = "get_series_categories"
	ActionGetLiveStreams      = "get_live_streams"
	ActionGetVODStreams       = "get_vod_streams"
	ActionGetSeries           = "get_series"
	ActionGetSeriesInfo       = "get_series_info"
	ActionGetVODInfo          = "get_vod_info"
)

// StatusError is returned when the provider answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := "unexpected status " + fmt.Sprint(e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client fetches raw Player API payloads from one provider account.
//
// Payloads are returned undecoded. Callers decode them with the tolerant
// types in this package, so one malformed listing can be reported without
// losing the others.
type Client struct {
	Connection

	http   *http.Client
	header http.Header
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for the account at baseURL.
func NewClient(baseURL, username, password string, opts ...ClientOption) *Client {
	c := &Client{
		Connection: NewConnection(baseURL, username, password),
		http:       &http.Client{Timeout: DefaultTimeout},
		header:     http.Header{"User-Agent": {version.UserAgent()}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient replaces the HTTP client, typically with one that retries
// through a circuit breaker.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.header.Set("User-Agent", ua)
	}
}

// WithHeaders adds headers to every request. A User-Agent here wins over
// the default one.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.header.Set(k, v)
		}
	}
}

// Fetch requests action with params and returns the raw body of a 200
// response. Any other status is a *StatusError.
func (c *Client) Fetch(ctx context.Context, action string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL(action, params), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}
	return body, nil
}

// FetchSeriesInfo returns the raw get_series_info payload of a series.
func (c *Client) FetchSeriesInfo(ctx context.Context, seriesID string) ([]byte, error) {
	return c.Fetch(ctx, ActionGetSeriesInfo, url.Values{paramSeriesID: {seriesID}})
}

// FetchVODInfo returns the raw get_vod_info payload of a movie.
func (c *Client) FetchVODInfo(ctx context.Context, vodID string) ([]byte, error) {
	return c.Fetch(ctx, ActionGetVODInfo, url.Values{paramVODID: {vodID}})
}
