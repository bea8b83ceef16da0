// Package ingestor fetches upstream inputs and normalizes them into the
// canonical playlist model.
package ingestor

import (
	"encoding/json"
	"log/slog"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

// normalizeOptions holds the optional collaborators of a normalization pass.
type normalizeOptions struct {
	interner *models.Interner
	logger   *slog.Logger
}

// NormalizeOption configures a normalization pass.
type NormalizeOption func(*normalizeOptions)

// WithInterner shares string values across items through in.
func WithInterner(in *models.Interner) NormalizeOption {
	return func(o *normalizeOptions) {
		o.interner = in
	}
}

// WithNormalizeLogger sets the logger used for suspicious records.
func WithNormalizeLogger(logger *slog.Logger) NormalizeOption {
	return func(o *normalizeOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []NormalizeOption) normalizeOptions {
	o := normalizeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interner == nil {
		o.interner = models.NewInterner()
	}
	return o
}

// category accumulates the items matched to one upstream category.
type category struct {
	title string
	items []models.PlaylistItem
}

// NormalizeXtream turns one (input, cluster) pair of raw category and stream
// payloads into playlist groups.
//
// Streams whose category is unknown are dropped. Every category is emitted,
// including those that matched no stream, and each emitted group takes the
// next id from counter. Decode failures are returned as notify errors.
func NormalizeXtream(
	counter *models.GroupCounter,
	cluster models.XtreamCluster,
	categoryPayload, streamPayload []byte,
	conn xtream.Connection,
	opts ...NormalizeOption,
) ([]models.PlaylistGroup, error) {
	o := buildOptions(opts)

	var categories []xtream.Category
	if err := json.Unmarshal(categoryPayload, &categories); err != nil {
		return nil, models.NotifyError(err, "failed to process %s categories", cluster)
	}

	var streams []xtream.Stream
	if err := json.Unmarshal(streamPayload, &streams); err != nil {
		return nil, models.NotifyError(err, "failed to process %s streams", cluster)
	}

	order := make([]*category, 0, len(categories))
	byID := make(map[string]*category, len(categories))
	for _, c := range categories {
		id := c.CategoryID.String()
		title := o.interner.Intern(c.CategoryName.String())
		// A repeated id keeps its first position and takes the later name.
		if acc, dup := byID[id]; dup {
			acc.title = title
			continue
		}
		acc := &category{title: title}
		byID[id] = acc
		order = append(order, acc)
	}

	var dropped int
	for i := range streams {
		acc, ok := byID[streams[i].CategoryID.String()]
		if !ok {
			dropped++
			continue
		}
		acc.items = append(acc.items, models.PlaylistItem{
			Header: streamHeader(&streams[i], cluster, acc.title, conn, &o),
		})
	}

	if dropped > 0 {
		o.logger.Debug("dropped streams without a matching category",
			slog.String("cluster", cluster.String()),
			slog.Int("dropped", dropped),
			slog.Int("total_streams", len(streams)),
		)
	}

	groups := make([]models.PlaylistGroup, 0, len(order))
	for _, acc := range order {
		groups = append(groups, models.PlaylistGroup{
			ID:            counter.Next(),
			Title:         acc.title,
			XtreamCluster: cluster,
			Channels:      acc.items,
		})
	}
	return groups, nil
}

func streamHeader(s *xtream.Stream, cluster models.XtreamCluster, group string, conn xtream.Connection, o *normalizeOptions) models.PlaylistItemHeader {
	id := s.ID()
	if id == "" {
		o.logger.Warn("stream has neither stream_id nor series_id",
			slog.String("cluster", cluster.String()),
			slog.String("name", s.Name.String()),
			slog.String("group", group),
		)
	}

	name := o.interner.Intern(s.Name.String())
	header := models.PlaylistItemHeader{
		ID:                   id,
		Name:                 name,
		Logo:                 o.interner.Intern(s.StreamIcon.String()),
		Group:                group,
		Title:                name,
		URL:                  streamURL(s, cluster, id, conn),
		XtreamCluster:        cluster,
		ItemType:             cluster.ItemType(),
		AdditionalProperties: additionalProperties(s),
	}
	if s.EPGChannelID != nil {
		header.EPGChannelID = s.EPGChannelID.String()
	}
	return header
}

// streamURL returns the direct source when the provider sent one and a
// synthesized upstream URL otherwise.
func streamURL(s *xtream.Stream, cluster models.XtreamCluster, id string, conn xtream.Connection) string {
	if direct := s.DirectSource.String(); direct != "" {
		return direct
	}
	switch cluster {
	case models.XtreamClusterVideo:
		return conn.MovieURL(id, s.ContainerExtension.String())
	case models.XtreamClusterSeries:
		return conn.SeriesInfoURL(id)
	default:
		return conn.LiveURL(id)
	}
}

// additionalProperties projects the optional descriptive fields that are
// present on s. It returns nil when none are.
func additionalProperties(s *xtream.Stream) []models.Property {
	var props []models.Property

	if len(s.BackdropPath) > 0 {
		props = append(props, models.StringsProperty("backdrop_path", []string{s.BackdropPath[0]}))
	}

	str := func(name string, v xtream.OptString) {
		if v.Valid {
			props = append(props, models.StringProperty(name, v.Value))
		}
	}
	float := func(name string, v xtream.OptFloat) {
		if f, ok := v.Get(); ok {
			props = append(props, models.FloatProperty(name, f))
		}
	}
	integer := func(name string, v xtream.OptInt) {
		if i, ok := v.Get(); ok {
			props = append(props, models.IntProperty(name, i))
		}
	}

	str("added", s.Added)
	str("cast", s.Cast)
	str("container_extension", s.ContainerExtension)
	str("cover", s.Cover)
	str("director", s.Director)
	str("episode_run_time", s.EpisodeRunTime)
	str("genre", s.Genre)
	str("last_modified", s.LastModified)
	str("plot", s.Plot)
	float("rating", s.Rating)
	float("rating_5based", s.Rating5Based)
	str("release_date", s.ReleaseDateValue())
	str("stream_type", s.StreamType)
	str("title", s.Title)
	str("year", s.Year)
	str("youtube_trailer", s.YoutubeTrailer)
	integer("tv_archive", s.TVArchive)
	integer("tv_archive_duration", s.TVArchiveDuration)

	return props
}
