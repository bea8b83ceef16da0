package xtream

import (
	"fmt"
	"net/url"
	"strings"
)

// Default container extensions.
const (
	ExtensionTS  = "ts"
	ExtensionMP4 = "mp4"
)

// Stream kinds as they appear in upstream and downstream stream paths.
const (
	KindLive   = "live"
	KindMovie  = "movie"
	KindSeries = "series"
)

// Connection holds the base URL and credentials that stream URLs are built
// from. It is used both for upstream providers and for the downstream URLs
// handed to clients.
type Connection struct {
	BaseURL  string
	Username string
	Password string
}

// NewConnection returns a Connection with any trailing slash removed from
// the base URL.
func NewConnection(baseURL, username, password string) Connection {
	return Connection{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Username: username,
		Password: password,
	}
}

// LiveURL returns {base}/live/{user}/{pass}/{id}.ts.
func (c Connection) LiveURL(id string) string {
	return c.streamURL(KindLive, id, ExtensionTS)
}

// MovieURL returns {base}/movie/{user}/{pass}/{id}.{ext}; ext defaults to mp4.
func (c Connection) MovieURL(id, ext string) string {
	if ext == "" {
		ext = ExtensionMP4
	}
	return c.streamURL(KindMovie, id, ext)
}

// EpisodeURL returns {base}/series/{user}/{pass}/{id}.{ext}; ext defaults to mp4.
func (c Connection) EpisodeURL(id, ext string) string {
	if ext == "" {
		ext = ExtensionMP4
	}
	return c.streamURL(KindSeries, id, ext)
}

// APIURL returns the player_api.php URL for action. Credentials come first,
// then the action, then params in sorted key order. An empty action is
// omitted.
func (c Connection) APIURL(action string, params url.Values) string {
	var b strings.Builder
	b.WriteString(c.BaseURL + pathPlayerAPI)
	b.WriteString("?" + paramUsername + "=" + url.QueryEscape(c.Username))
	b.WriteString("&" + paramPassword + "=" + url.QueryEscape(c.Password))
	if action != "" {
		b.WriteString("&" + paramAction + "=" + url.QueryEscape(action))
	}
	if len(params) > 0 {
		b.WriteString("&" + params.Encode())
	}
	return b.String()
}

// SeriesInfoURL returns the player_api.php URL that resolves a series into
// its episodes.
func (c Connection) SeriesInfoURL(id string) string {
	return c.APIURL(ActionGetSeriesInfo, url.Values{paramSeriesID: {id}})
}

// StreamURL returns {base}/{kind}/{user}/{pass}/{id} with no extension, the
// form the relay requests upstream.
func (c Connection) StreamURL(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.BaseURL, kind, c.Username, c.Password, id)
}

func (c Connection) streamURL(kind, id, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s.%s", c.BaseURL, kind, c.Username, c.Password, id, ext)
}
