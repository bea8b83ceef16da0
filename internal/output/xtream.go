// Package output renders playlist groups into the artifacts served to
// downstream players.
package output

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/jmylchreest/xtarr/internal/config"
	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

// XtreamOptions controls how items are rendered for the Player API.
type XtreamOptions struct {
	SkipLiveDirectSource   bool
	SkipVideoDirectSource  bool
	SkipSeriesDirectSource bool
}

// XtreamOptionsFromTarget returns the render options configured on a target.
func XtreamOptionsFromTarget(o config.TargetOptions) XtreamOptions {
	return XtreamOptions{
		SkipLiveDirectSource:   o.XtreamSkipLiveDirectSource,
		SkipVideoDirectSource:  o.XtreamSkipVideoDirectSource,
		SkipSeriesDirectSource: o.XtreamSkipSeriesDirectSource,
	}
}

func (o XtreamOptions) skipDirectSource(c models.XtreamCluster) bool {
	switch c {
	case models.XtreamClusterLive:
		return o.SkipLiveDirectSource
	case models.XtreamClusterVideo:
		return o.SkipVideoDirectSource
	case models.XtreamClusterSeries:
		return o.SkipSeriesDirectSource
	}
	return false
}

// RenderXtream renders the six Player API listing collections. Every
// collection is present, empty clusters render as an empty array.
//
// Series listings carry series placeholders and resolved series only;
// episodes are served through get_series_info.
func RenderXtream(groups []models.PlaylistGroup, opts XtreamOptions) (map[models.CollectionKind][]byte, error) {
	categories := make(map[models.XtreamCluster][]document, len(models.XtreamClusters))
	streams := make(map[models.XtreamCluster][]document, len(models.XtreamClusters))
	nums := make(map[models.XtreamCluster]int, len(models.XtreamClusters))

	for i := range groups {
		g := &groups[i]
		categoryID := strconv.FormatUint(uint64(g.ID), 10)
		categories[g.XtreamCluster] = append(categories[g.XtreamCluster], document{
			{"category_id", categoryID},
			{"category_name", g.Title},
			{"parent_id", 0},
		})

		for j := range g.Channels {
			h := &g.Channels[j].Header
			if g.XtreamCluster == models.XtreamClusterSeries && !listedAsSeries(h) {
				continue
			}
			nums[g.XtreamCluster]++
			num := nums[g.XtreamCluster]

			var doc document
			switch g.XtreamCluster {
			case models.XtreamClusterSeries:
				doc = seriesDocument(h, num, categoryID)
			default:
				doc = streamDocument(h, num, categoryID, opts.skipDirectSource(g.XtreamCluster))
			}
			streams[g.XtreamCluster] = append(streams[g.XtreamCluster], appendProperties(doc, h))
		}
	}

	out := make(map[models.CollectionKind][]byte, 2*len(models.XtreamClusters))
	for _, c := range models.XtreamClusters {
		data, err := encodeDocuments(categories[c])
		if err != nil {
			return nil, fmt.Errorf("rendering %s categories: %w", c, err)
		}
		out[models.CategoriesCollection(c)] = data

		data, err = encodeDocuments(streams[c])
		if err != nil {
			return nil, fmt.Errorf("rendering %s streams: %w", c, err)
		}
		out[models.StreamsCollection(c)] = data
	}
	return out, nil
}

func listedAsSeries(h *models.PlaylistItemHeader) bool {
	return h.ItemType == models.PlaylistItemTypeSeriesInfo || h.SeriesFetched
}

func streamDocument(h *models.PlaylistItemHeader, num int, categoryID string, skipDirect bool) document {
	streamType := xtream.KindLive
	if h.XtreamCluster == models.XtreamClusterVideo {
		streamType = xtream.KindMovie
	}

	directSource := h.URL
	if skipDirect {
		directSource = ""
	}

	doc := document{
		{"num", num},
		{"name", h.Name},
		{"stream_type", streamType},
		{"stream_id", numericOrString(h.ID)},
		{"stream_icon", h.Logo},
		{"epg_channel_id", nullable(h.EPGChannelID)},
		{"category_id", categoryID},
		{"direct_source", directSource},
	}
	if h.XtreamCluster == models.XtreamClusterVideo {
		if _, ok := h.Property("container_extension"); !ok {
			doc = append(doc, field{"container_extension", extensionFromURL(h.URL, xtream.ExtensionMP4)})
		}
	}
	return doc
}

func seriesDocument(h *models.PlaylistItemHeader, num int, categoryID string) document {
	doc := document{
		{"num", num},
		{"name", h.Name},
		{"series_id", numericOrString(h.ID)},
		{"category_id", categoryID},
	}
	if _, ok := h.Property("cover"); !ok {
		doc = append(doc, field{"cover", h.Logo})
	}
	return doc
}

// appendProperties adds the item's additional properties that do not clash
// with a key already rendered.
func appendProperties(doc document, h *models.PlaylistItemHeader) document {
	for _, p := range h.AdditionalProperties {
		if doc.has(p.Name) {
			continue
		}
		doc = append(doc, field{p.Name, p.Value})
	}
	return doc
}

// numericOrString keeps upstream integer ids as JSON numbers.
func numericOrString(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func extensionFromURL(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
		return ext
	}
	return fallback
}
