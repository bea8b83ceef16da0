package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/xtarr/internal/relay"
)

type relayFixture struct {
	server   *httptest.Server
	tracker  *relay.SessionTracker
	upstream *httptest.Server
	paths    chan string
}

func newRelayFixture(t *testing.T, upstreamHandler http.HandlerFunc) *relayFixture {
	t.Helper()

	paths := make(chan string, 8)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		upstreamHandler(w, r)
	}))
	t.Cleanup(upstream.Close)

	tracker := relay.NewSessionTracker()
	rl := relay.New(relay.Config{ConnectTimeout: time.Second, IdleTimeout: time.Second, BufferSize: 1024}, tracker)
	h := NewRelayStreamHandler(newResolver(upstream.URL), rl)

	router, api := newTestAPI(t)
	h.RegisterChiRoutes(router)
	h.Register(api)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &relayFixture{server: srv, tracker: tracker, upstream: upstream, paths: paths}
}

func (f *relayFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestRelayStream_Kinds(t *testing.T) {
	f := newRelayFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("X-Provider"))
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("X-Upstream-Secret", "leak")
		_, _ = w.Write([]byte("stream:" + r.URL.Path))
	})

	for _, kind := range []string{"live", "movie", "series"} {
		t.Run(kind, func(t *testing.T) {
			resp, body := f.get(t, "/"+kind+"/alice/secret/42")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
			assert.Empty(t, resp.Header.Get("X-Upstream-Secret"), "only the content type is forwarded")
			assert.Equal(t, "stream:/"+kind+"/pu/pp/42", string(body))
			assert.Equal(t, "/"+kind+"/pu/pp/42", <-f.paths)
		})
	}
}

func TestRelayStream_Rejections(t *testing.T) {
	f := newRelayFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	})

	tests := []struct {
		name string
		path string
	}{
		{"unknown credentials", "/live/alice/wrong/1"},
		{"target without xtream output", "/live/bob/hunter2/1"},
		{"target without xtream input", "/movie/carol/pw/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.get(t, tt.path)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, body)
		})
	}
	assert.Empty(t, f.paths, "upstream is never contacted")
}

func TestRelayStream_UpstreamFailureIsBadRequest(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newRelayFixture(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			})

			resp, body := f.get(t, "/live/alice/secret/42")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, body)
			assert.Len(t, f.paths, 1, "no retries")
		})
	}
}

func TestRelayStream_UnreachableUpstream(t *testing.T) {
	f := newRelayFixture(t, func(http.ResponseWriter, *http.Request) {})
	f.upstream.Close()

	resp, _ := f.get(t, "/series/alice/secret/901")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayStream_ListSessions(t *testing.T) {
	release := make(chan struct{})
	f := newRelayFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("chunk"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/live/alice/secret/42", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 5)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.tracker.Count() == 1 && f.tracker.TotalBytesOut() == 5
	}, time.Second, 5*time.Millisecond)

	listResp, body := f.get(t, "/api/v1/relay/sessions")
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var out struct {
		Count         int                 `json:"count"`
		TotalBytesOut uint64              `json:"total_bytes_out"`
		Sessions      []relay.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, uint64(5), out.TotalBytesOut)
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, "family", out.Sessions[0].Target)
	assert.Equal(t, "provider", out.Sessions[0].Input)
	assert.Equal(t, relay.KindLive, out.Sessions[0].Kind)
	assert.Equal(t, "42", out.Sessions[0].StreamID)
}

func TestRelayStream_ListSessionsWithoutTracker(t *testing.T) {
	h := NewRelayStreamHandler(newResolver("http://upstream.example"), relay.New(relay.Config{}, nil))

	out, err := h.ListSessions(context.Background(), &ListRelaySessionsInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Body.Count)
	assert.NotNil(t, out.Body.Sessions)
}
