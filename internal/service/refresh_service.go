package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/ingestor"
	"github.com/jmylchreest/xtarr/internal/metrics"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/internal/observability"
	"github.com/jmylchreest/xtarr/internal/output"
	"github.com/jmylchreest/xtarr/internal/repository"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

// DetailFetcher fetches the raw detail payloads of single upstream items.
type DetailFetcher interface {
	FetchSeriesInfo(ctx context.Context, input *config.InputConfig, seriesID string) ([]byte, error)
	FetchVODInfo(ctx context.Context, input *config.InputConfig, vodID string) ([]byte, error)
}

// TargetRefresh summarizes the refresh of one target. Retained lists the
// artifact kinds left at their previous version because an upstream listing
// failed. Cached counts the detail payloads stored for the target. Interned
// counts the distinct strings shared across the items of this refresh.
type TargetRefresh struct {
	Target    string                  `json:"target"`
	Groups    int                     `json:"groups"`
	Items     int                     `json:"items"`
	Details   int                     `json:"details"`
	Cached    int64                   `json:"cached_details"`
	Interned  int                     `json:"interned_strings"`
	Artifacts []models.CollectionKind `json:"artifacts"`
	Retained  []models.CollectionKind `json:"retained,omitempty"`
	Errors    []error                 `json:"-"`
	Duration  time.Duration           `json:"duration"`
}

// RefreshResult summarizes one refresh run.
type RefreshResult struct {
	Targets []TargetRefresh `json:"targets"`
}

// Errors returns the processing errors of every target.
func (r *RefreshResult) Errors() []error {
	var errs []error
	for i := range r.Targets {
		errs = append(errs, r.Targets[i].Errors...)
	}
	return errs
}

// HasNotify reports whether any target produced a notify-worthy error.
func (r *RefreshResult) HasNotify() bool {
	return slices.ContainsFunc(r.Errors(), models.IsNotify)
}

// RefreshService pulls every input of a target, renders the target's
// artifacts and publishes them.
type RefreshService struct {
	mu  sync.RWMutex
	cfg *config.Config

	factory   *ingestor.HandlerFactory
	fetcher   DetailFetcher
	playlists repository.PlaylistRepository
	details   repository.DetailRepository
	notifier  Notifier
	logger    *slog.Logger

	runningMu sync.Mutex
	running   map[string]struct{}
}

// NewRefreshService creates a refresh service. fetcher serves series
// resolution and the VOD info cache; details may be nil when neither is used.
func NewRefreshService(
	cfg *config.Config,
	factory *ingestor.HandlerFactory,
	fetcher DetailFetcher,
	playlists repository.PlaylistRepository,
	details repository.DetailRepository,
) *RefreshService {
	return &RefreshService{
		cfg:       cfg,
		factory:   factory,
		fetcher:   fetcher,
		playlists: playlists,
		details:   details,
		notifier:  NewLogNotifier(nil),
		logger:    slog.Default(),
		running:   make(map[string]struct{}),
	}
}

// WithLogger sets the logger for the service.
func (s *RefreshService) WithLogger(logger *slog.Logger) *RefreshService {
	s.logger = logger
	return s
}

// WithNotifier sets where notify-worthy errors are sent after each pass.
func (s *RefreshService) WithNotifier(n Notifier) *RefreshService {
	s.notifier = n
	return s
}

// Reload replaces the configuration used by subsequent refreshes and drops
// the cached details of targets the new configuration no longer has.
func (s *RefreshService) Reload(ctx context.Context, cfg *config.Config) {
	s.mu.Lock()
	previous := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if s.details == nil || previous == nil {
		return
	}
	for _, t := range previous.Targets {
		if cfg.FindTarget(t.Name) != nil {
			continue
		}
		removed, err := s.details.DeleteByTarget(ctx, t.Name)
		if err != nil {
			s.logger.Warn("failed to drop details of removed target",
				slog.String("target", t.Name),
				slog.Any("error", err),
			)
			continue
		}
		s.logger.Info("dropped details of removed target",
			slog.String("target", t.Name),
			slog.Int64("details", removed),
		)
	}
}

func (s *RefreshService) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Refresh refreshes the named target, or every target when name is empty.
// Processing errors are collected in the result; the returned error covers
// unknown targets, concurrent refreshes and publish failures.
func (s *RefreshService) Refresh(ctx context.Context, name string) (*RefreshResult, error) {
	cfg := s.config()
	targets, err := selectTargets(cfg, name)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(targets); err != nil {
		return nil, err
	}
	defer s.release(targets)

	return s.run(ctx, cfg, targets)
}

// RefreshAsync starts a refresh in the background. It fails immediately
// when the target is unknown or already being refreshed.
func (s *RefreshService) RefreshAsync(ctx context.Context, name string) error {
	cfg := s.config()
	targets, err := selectTargets(cfg, name)
	if err != nil {
		return err
	}
	if err := s.acquire(targets); err != nil {
		return err
	}

	go func() {
		defer s.release(targets)
		if _, err := s.run(context.WithoutCancel(ctx), cfg, targets); err != nil {
			s.logger.Error("background refresh failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Running reports the names of targets currently being refreshed.
func (s *RefreshService) Running() []string {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return slices.Sorted(maps.Keys(s.running))
}

func selectTargets(cfg *config.Config, name string) ([]*config.TargetConfig, error) {
	if name != "" {
		target := cfg.FindTarget(name)
		if target == nil {
			return nil, fmt.Errorf("%w: %s", models.ErrTargetNotFound, name)
		}
		return []*config.TargetConfig{target}, nil
	}

	targets := make([]*config.TargetConfig, 0, len(cfg.Targets))
	for i := range cfg.Targets {
		targets = append(targets, &cfg.Targets[i])
	}
	return targets, nil
}

// acquire marks every target as running, or none of them.
func (s *RefreshService) acquire(targets []*config.TargetConfig) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	for _, t := range targets {
		if _, busy := s.running[t.Name]; busy {
			return fmt.Errorf("%w: %s", models.ErrRefreshInProgress, t.Name)
		}
	}
	for _, t := range targets {
		s.running[t.Name] = struct{}{}
	}
	return nil
}

func (s *RefreshService) release(targets []*config.TargetConfig) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	for _, t := range targets {
		delete(s.running, t.Name)
	}
}

func (s *RefreshService) run(ctx context.Context, cfg *config.Config, targets []*config.TargetConfig) (_ *RefreshResult, err error) {
	defer observability.TimedOperation(ctx, s.logger, "refresh", &err)()

	result := &RefreshResult{Targets: make([]TargetRefresh, 0, len(targets))}
	var errs []error

	for _, target := range targets {
		tr, terr := s.refreshTarget(ctx, cfg, target)
		result.Targets = append(result.Targets, tr)
		if terr != nil {
			errs = append(errs, terr)
		}
		metrics.ObserveRefresh(target.Name, tr.Duration, terr == nil && len(tr.Errors) == 0)

		if msg := models.NotifyMessages(tr.Errors); msg != "" {
			if nerr := s.notifier.Notify(ctx, fmt.Sprintf("target %q:\n%s", target.Name, msg)); nerr != nil {
				s.logger.Warn("failed to deliver refresh notification",
					slog.String("target", target.Name),
					slog.Any("error", nerr),
				)
			}
		}
	}
	return result, errors.Join(errs...)
}

// pass is one normalization run over an input, or an input and cluster.
type pass struct {
	input   *config.InputConfig
	cluster models.XtreamCluster
	groups  []models.PlaylistGroup
	details int
	errs    []error
	// failed is set when the pass produced no listing at all.
	failed bool
}

func (s *RefreshService) refreshTarget(ctx context.Context, cfg *config.Config, target *config.TargetConfig) (TargetRefresh, error) {
	start := time.Now()
	logger := s.logger.With(slog.String("target", target.Name))
	tr := TargetRefresh{Target: target.Name}

	passes, planErrs := planPasses(cfg, target)
	tr.Errors = append(tr.Errors, planErrs...)

	counter := &models.GroupCounter{}
	interner := models.NewInterner()
	limiter := newPacer(target.Options)

	g, gctx := errgroup.WithContext(ctx)
	if limit := cfg.Refresh.MaxConcurrent; limit > 0 {
		g.SetLimit(limit)
	}
	for _, p := range passes {
		g.Go(func() error {
			s.runPass(gctx, target, p, counter, interner, limiter)
			return nil
		})
	}
	_ = g.Wait()

	var groups []models.PlaylistGroup
	for _, p := range passes {
		groups = append(groups, p.groups...)
		tr.Details += p.details
		tr.Errors = append(tr.Errors, p.errs...)
	}
	for _, err := range tr.Errors {
		logProcessingError(logger, err)
	}

	tr.Groups = len(groups)
	tr.Interned = interner.Len()
	for i := range groups {
		tr.Items += len(groups[i].Channels)
	}

	if err := ctx.Err(); err != nil {
		tr.Duration = time.Since(start)
		return tr, fmt.Errorf("target %q: %w", target.Name, err)
	}

	artifacts, err := renderArtifacts(target, groups)
	if err != nil {
		tr.Duration = time.Since(start)
		return tr, fmt.Errorf("target %q: rendering: %w", target.Name, err)
	}
	keep := retainedKinds(passes)
	for _, kind := range keep {
		delete(artifacts, kind)
	}
	tr.Retained = keep
	if err := s.playlists.Publish(ctx, target.Name, artifacts, keep...); err != nil {
		tr.Duration = time.Since(start)
		return tr, fmt.Errorf("target %q: publishing: %w", target.Name, err)
	}

	tr.Artifacts = slices.Sorted(maps.Keys(artifacts))
	if s.details != nil {
		cached, err := s.details.Count(ctx, target.Name)
		if err != nil {
			tr.Errors = append(tr.Errors, fmt.Errorf("counting cached details: %w", err))
		}
		tr.Cached = cached
	}
	tr.Duration = time.Since(start)

	logger.Info("refreshed target",
		slog.Int("groups", tr.Groups),
		slog.Int("items", tr.Items),
		slog.Int("details", tr.Details),
		slog.Int64("cached_details", tr.Cached),
		slog.Any("retained", tr.Retained),
		slog.Int("errors", len(tr.Errors)),
		slog.Duration("duration", tr.Duration),
	)
	return tr, nil
}

// planPasses lists the normalization passes of a target: one per cluster of
// each enabled xtream input and one per enabled m3u input.
func planPasses(cfg *config.Config, target *config.TargetConfig) ([]*pass, []error) {
	var passes []*pass
	var errs []error

	for _, name := range target.Inputs {
		input := cfg.FindInput(name)
		if input == nil {
			errs = append(errs, models.InfoErrorf("target %q: input %q not found", target.Name, name))
			continue
		}
		if !input.IsEnabled() {
			continue
		}
		if !input.IsXtream() {
			passes = append(passes, &pass{input: input})
			continue
		}
		for _, cluster := range models.XtreamClusters {
			passes = append(passes, &pass{input: input, cluster: cluster})
		}
	}
	return passes, errs
}

func (s *RefreshService) runPass(ctx context.Context, target *config.TargetConfig, p *pass, counter *models.GroupCounter, interner *models.Interner, limiter ratelimit.Limiter) {
	handler, err := s.factory.Get(p.input.Type)
	if err != nil {
		p.failed = true
		p.errs = append(p.errs, models.InfoErrorf("input %q: %v", p.input.Name, err))
		return
	}

	groups, err := handler.Ingest(ctx, ingestor.Request{
		Input:    p.input,
		Cluster:  p.cluster,
		Counter:  counter,
		Interner: interner,
	})
	if err != nil {
		p.failed = true
		p.errs = append(p.errs, err)
		return
	}
	p.groups = groups

	if !p.input.IsXtream() || s.fetcher == nil {
		return
	}

	switch p.cluster {
	case models.XtreamClusterSeries:
		if target.Options.XtreamResolveSeries {
			s.resolveSeries(ctx, target, p, interner, limiter)
		}
	case models.XtreamClusterVideo:
		if p.input.Options.XtreamInfoCache {
			s.cacheVODInfo(ctx, target, p, limiter)
		}
	}
}

// resolveSeries fetches the episodes of every unresolved series of the pass,
// stores the raw payload and appends the episodes to the series' group.
func (s *RefreshService) resolveSeries(ctx context.Context, target *config.TargetConfig, p *pass, interner *models.Interner, limiter ratelimit.Limiter) {
	conn := xtream.NewConnection(p.input.URL, p.input.Username, p.input.Password)

	for gi := range p.groups {
		group := &p.groups[gi]
		var episodes []models.PlaylistItem

		for ci := range group.Channels {
			item := group.Channels[ci]
			if item.Header.ItemType != models.PlaylistItemTypeSeriesInfo {
				continue
			}

			limiter.Take()
			if ctx.Err() != nil {
				return
			}

			payload, err := s.fetcher.FetchSeriesInfo(ctx, p.input, item.Header.ID)
			if err != nil {
				p.errs = append(p.errs, models.NotifyError(err, "input %q: fetching series %s", p.input.Name, item.Header.ID))
				continue
			}

			items, err := ingestor.NormalizeSeriesEpisodes(payload, group.Title, conn, ingestor.WithInterner(interner))
			if err != nil {
				p.errs = append(p.errs, fmt.Errorf("input %q: series %s: %w", p.input.Name, item.Header.ID, err))
				continue
			}
			if s.storeDetail(ctx, target, p, models.DetailKindSeries, item.Header.ID, payload) {
				p.details++
			}
			episodes = append(episodes, items...)
			group.Channels[ci] = models.ResolveSeries(item)
		}

		group.Channels = append(group.Channels, episodes...)
	}
}

// cacheVODInfo stores the get_vod_info payload of every movie of the pass.
func (s *RefreshService) cacheVODInfo(ctx context.Context, target *config.TargetConfig, p *pass, limiter ratelimit.Limiter) {
	for gi := range p.groups {
		for ci := range p.groups[gi].Channels {
			id := p.groups[gi].Channels[ci].Header.ID

			limiter.Take()
			if ctx.Err() != nil {
				return
			}

			payload, err := s.fetcher.FetchVODInfo(ctx, p.input, id)
			if err != nil {
				p.errs = append(p.errs, models.NotifyError(err, "input %q: fetching vod info %s", p.input.Name, id))
				continue
			}
			if s.storeDetail(ctx, target, p, models.DetailKindVOD, id, payload) {
				p.details++
			}
		}
	}
}

func (s *RefreshService) storeDetail(ctx context.Context, target *config.TargetConfig, p *pass, kind models.DetailKind, id string, payload []byte) bool {
	if s.details == nil {
		return false
	}

	contentID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		p.errs = append(p.errs, models.InfoErrorf("input %q: %s id %q is not numeric, detail not cached", p.input.Name, kind, id))
		return false
	}

	detail := &models.XtreamDetail{
		Target:    target.Name,
		Kind:      kind,
		ContentID: contentID,
		Input:     p.input.Name,
		Payload:   payload,
	}
	if err := s.details.Upsert(ctx, detail); err != nil {
		p.errs = append(p.errs, fmt.Errorf("input %q: storing %s detail %d: %w", p.input.Name, kind, contentID, err))
		return false
	}
	return true
}

// newPacer spaces detail lookups of one target by the configured delay.
func newPacer(opts config.TargetOptions) ratelimit.Limiter {
	if opts.XtreamResolveSeriesDelay <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(1, ratelimit.Per(opts.XtreamResolveSeriesDelay), ratelimit.WithoutSlack)
}

// retainedKinds lists the artifacts that keep their last published version
// because a pass feeding them failed. A failed xtream cluster keeps its
// category and stream listings plus the M3U playlist; a failed M3U input
// feeds every listing and keeps them all.
func retainedKinds(passes []*pass) []models.CollectionKind {
	var keep []models.CollectionKind
	for _, p := range passes {
		if !p.failed {
			continue
		}
		if !p.input.IsXtream() {
			return slices.Clone(models.Collections)
		}
		keep = append(keep,
			models.CategoriesCollection(p.cluster),
			models.StreamsCollection(p.cluster),
			models.CollectionM3U,
		)
	}
	slices.Sort(keep)
	return slices.Compact(keep)
}

func renderArtifacts(target *config.TargetConfig, groups []models.PlaylistGroup) (map[models.CollectionKind][]byte, error) {
	artifacts := make(map[models.CollectionKind][]byte)

	if target.HasOutput(config.OutputXtream) {
		rendered, err := output.RenderXtream(groups, output.XtreamOptionsFromTarget(target.Options))
		if err != nil {
			return nil, err
		}
		maps.Copy(artifacts, rendered)
	}

	if target.HasOutput(config.OutputM3U) {
		playlist, err := output.RenderM3U(groups)
		if err != nil {
			return nil, err
		}
		artifacts[models.CollectionM3U] = playlist
	}
	return artifacts, nil
}

func logProcessingError(logger *slog.Logger, err error) {
	if models.IsNotify(err) {
		observability.WithError(logger, err).Warn("refresh error")
		return
	}
	observability.WithError(logger, err).Info("refresh problem")
}
