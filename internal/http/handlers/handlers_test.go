package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/internal/service"
)

// testConfig wires three targets: family (xtream, with an upstream input),
// playlist (m3u only) and bare (xtream without any xtream input).
func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Xtream: config.XtreamServerConfig{
			Host:      "tv.example",
			HTTPPort:  "8080",
			HTTPSPort: "8443",
			RTMPPort:  "1935",
			Protocol:  "http",
			Timezone:  "Europe/London",
			Message:   "welcome",
		},
		Inputs: []config.InputConfig{
			{Name: "provider", Type: config.InputTypeXtream, URL: upstreamURL, Username: "pu", Password: "pp",
				Headers: map[string]string{"X-Provider": "abc"}},
			{Name: "list", Type: config.InputTypeM3U, URL: upstreamURL + "/list.m3u"},
		},
		Targets: []config.TargetConfig{
			{Name: "family", Inputs: []string{"provider"}, Output: []string{config.OutputXtream}},
			{Name: "playlist", Inputs: []string{"list"}, Output: []string{config.OutputM3U}},
			{Name: "bare", Inputs: []string{"list"}, Output: []string{config.OutputXtream}},
		},
		Users: []config.UserConfig{
			{Target: "family", Username: "alice", Password: "secret", Token: "tok-a"},
			{Target: "playlist", Username: "bob", Password: "hunter2"},
			{Target: "bare", Username: "carol", Password: "pw"},
		},
	}
}

func newResolver(upstreamURL string) *service.CredentialResolver {
	return service.NewCredentialResolver(testConfig(upstreamURL))
}

func newTestAPI(t *testing.T) (*chi.Mux, huma.API) {
	t.Helper()
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	return router, api
}

type detailKey struct {
	target string
	kind   models.DetailKind
	id     int64
}

// memoryDetails is an in-memory DetailRepository.
type memoryDetails struct {
	mu      sync.Mutex
	details map[detailKey]*models.XtreamDetail
	err     error
}

func newMemoryDetails() *memoryDetails {
	return &memoryDetails{details: make(map[detailKey]*models.XtreamDetail)}
}

func (m *memoryDetails) Upsert(_ context.Context, d *models.XtreamDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[detailKey{d.Target, d.Kind, d.ContentID}] = d
	return nil
}

func (m *memoryDetails) Get(_ context.Context, target string, kind models.DetailKind, id int64) (*models.XtreamDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.details[detailKey{target, kind, id}], nil
}

func (m *memoryDetails) DeleteByTarget(_ context.Context, target string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.details {
		if k.target == target {
			delete(m.details, k)
			n++
		}
	}
	return n, nil
}

func (m *memoryDetails) Count(_ context.Context, target string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.details {
		if k.target == target {
			n++
		}
	}
	return n, nil
}
