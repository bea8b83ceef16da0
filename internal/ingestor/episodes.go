package ingestor

import (
	"encoding/json"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/xtream"
)

// NormalizeSeriesEpisodes expands a get_series_info payload into one item per
// episode, seasons in ascending order and episodes in payload order.
//
// It returns nil when the series has no episodes and a notify error when the
// payload cannot be decoded.
func NormalizeSeriesEpisodes(payload []byte, groupTitle string, conn xtream.Connection, opts ...NormalizeOption) ([]models.PlaylistItem, error) {
	o := buildOptions(opts)

	var info xtream.SeriesInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, models.NotifyError(err, "failed to process series info")
	}

	var items []models.PlaylistItem
	group := o.interner.Intern(groupTitle)
	for _, season := range info.Episodes.SeasonKeys() {
		for i := range info.Episodes[season] {
			items = append(items, models.PlaylistItem{
				Header: episodeHeader(&info.Episodes[season][i], group, conn, &o),
			})
		}
	}
	return items, nil
}

func episodeHeader(ep *xtream.Episode, group string, conn xtream.Connection, o *normalizeOptions) models.PlaylistItemHeader {
	id := ep.ID.String()
	url := ep.DirectSource.String()
	if url == "" {
		url = conn.EpisodeURL(id, ep.ContainerExtension.String())
	}

	title := o.interner.Intern(ep.Title.String())
	header := models.PlaylistItemHeader{
		ID:            id,
		Name:          title,
		Logo:          o.interner.Intern(ep.Info.MovieImage.String()),
		Group:         group,
		Title:         title,
		URL:           url,
		XtreamCluster: models.XtreamClusterSeries,
		ItemType:      models.PlaylistItemTypeSeries,
	}

	if ext := ep.ContainerExtension.String(); ext != "" {
		header.AdditionalProperties = append(header.AdditionalProperties, models.StringProperty("container_extension", ext))
	}
	if ep.EpisodeNum != 0 {
		header.AdditionalProperties = append(header.AdditionalProperties, models.IntProperty("episode_num", ep.EpisodeNum.Int()))
	}
	if ep.Season != 0 {
		header.AdditionalProperties = append(header.AdditionalProperties, models.IntProperty("season", ep.Season.Int()))
	}
	if plot := ep.Info.Plot.String(); plot != "" {
		header.AdditionalProperties = append(header.AdditionalProperties, models.StringProperty("plot", plot))
	}
	return header
}
