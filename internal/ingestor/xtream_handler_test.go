package ingestor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/httpclient"
)

func newXtreamUpstream(t *testing.T, responses map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/player_api.php" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("username") != "u" || q.Get("password") != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := responses[q.Get("action")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func noRetryConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	return cfg
}

func TestXtreamHandler_Type(t *testing.T) {
	if got := NewXtreamHandler().Type(); got != config.InputTypeXtream {
		t.Errorf("Type() = %q, want %q", got, config.InputTypeXtream)
	}
}

func TestXtreamHandler_Validate(t *testing.T) {
	h := NewXtreamHandler()

	tests := []struct {
		name    string
		input   *config.InputConfig
		wantErr error
		fails   bool
	}{
		{name: "nil input", input: nil, fails: true},
		{name: "wrong type", input: &config.InputConfig{Type: config.InputTypeM3U, URL: "http://x"}, fails: true},
		{
			name:    "missing password",
			input:   &config.InputConfig{Type: config.InputTypeXtream, URL: "http://x", Username: "u"},
			wantErr: models.ErrXtreamCredentialsRequired,
			fails:   true,
		},
		{
			name:  "valid",
			input: &config.InputConfig{Type: config.InputTypeXtream, URL: "http://x", Username: "u", Password: "p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Validate(tt.input)
			if tt.fails != (err != nil) {
				t.Fatalf("Validate() error = %v, fails %v", err, tt.fails)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestXtreamHandler_Ingest(t *testing.T) {
	srv, _ := newXtreamUpstream(t, map[string]string{
		"get_live_categories": `[{"category_id": "1", "category_name": "News"}]`,
		"get_live_streams":    `[{"name": "BBC", "stream_id": 42, "category_id": "1"}]`,
	})

	h := NewXtreamHandler().WithHTTPClientConfig(noRetryConfig())
	input := &config.InputConfig{Name: "provider", Type: config.InputTypeXtream, URL: srv.URL + "/", Username: "u", Password: "p"}

	interner := models.NewInterner()
	groups, err := h.Ingest(context.Background(), Request{
		Input:    input,
		Cluster:  models.XtreamClusterLive,
		Counter:  &models.GroupCounter{},
		Interner: interner,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(groups) != 1 || len(groups[0].Channels) != 1 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if got, want := groups[0].Channels[0].Header.URL, srv.URL+"/live/u/p/42.ts"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
	if got := interner.Len(); got != 2 {
		t.Errorf("expected the request interner to hold News and BBC, got %d values", got)
	}
}

func TestXtreamHandler_IngestUpstreamFailure(t *testing.T) {
	srv, _ := newXtreamUpstream(t, map[string]string{
		"get_vod_categories": `[]`,
	})

	h := NewXtreamHandler().WithHTTPClientConfig(noRetryConfig())
	input := &config.InputConfig{Name: "provider", Type: config.InputTypeXtream, URL: srv.URL, Username: "u", Password: "p"}

	_, err := h.Ingest(context.Background(), Request{
		Input:   input,
		Cluster: models.XtreamClusterVideo,
		Counter: &models.GroupCounter{},
	})
	if err == nil {
		t.Fatal("expected error when streams endpoint fails")
	}
	if !models.IsNotify(err) {
		t.Errorf("expected notify error, got %v", err)
	}
	if !strings.Contains(err.Error(), "provider") {
		t.Errorf("expected input name in error, got %v", err)
	}
}

func TestXtreamHandler_IngestInvalidInput(t *testing.T) {
	h := NewXtreamHandler()
	_, err := h.Ingest(context.Background(), Request{
		Input:   &config.InputConfig{Name: "broken", Type: config.InputTypeXtream, URL: "http://x"},
		Counter: &models.GroupCounter{},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if models.IsNotify(err) {
		t.Errorf("expected info error, got notify: %v", err)
	}
}

func TestXtreamHandler_SharedBreakerPerHost(t *testing.T) {
	srv, _ := newXtreamUpstream(t, map[string]string{})
	breakers := httpclient.NewManager(5, 0, 1)
	h := NewXtreamHandler().WithBreakers(breakers)

	h.Client(&config.InputConfig{URL: srv.URL, Username: "u", Password: "p"})
	h.Client(&config.InputConfig{URL: srv.URL + "/other", Username: "u2", Password: "p2"})

	if got := len(breakers.Stats()); got != 1 {
		t.Errorf("expected one breaker per host, got %d", got)
	}
}

func TestXtreamHandler_FetchSeriesInfo(t *testing.T) {
	srv, _ := newXtreamUpstream(t, map[string]string{
		"get_series_info": `{"episodes": {"1": [{"id": "5"}]}}`,
	})

	h := NewXtreamHandler().WithHTTPClientConfig(noRetryConfig())
	input := &config.InputConfig{Name: "provider", Type: config.InputTypeXtream, URL: srv.URL, Username: "u", Password: "p"}

	payload, err := h.FetchSeriesInfo(context.Background(), input, "9")
	if err != nil {
		t.Fatalf("FetchSeriesInfo() error = %v", err)
	}
	if !strings.Contains(string(payload), `"episodes"`) {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestHandlerFactory(t *testing.T) {
	f := NewHandlerFactory(NewXtreamHandler(), NewM3UHandler())

	for _, typ := range []string{config.InputTypeXtream, config.InputTypeM3U} {
		h, err := f.Get(typ)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", typ, err)
		}
		if h.Type() != typ {
			t.Errorf("Get(%q) returned handler for %q", typ, h.Type())
		}
	}

	if _, err := f.Get("stalker"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestBreakerName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://p.example:8080/get.php", "input-p.example:8080"},
		{"not a url", "fallback"},
		{"", "fallback"},
	}
	for _, tt := range tests {
		if got := breakerName(tt.raw, "fallback"); got != tt.want {
			t.Errorf("breakerName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
