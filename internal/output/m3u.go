package output

import (
	"bytes"
	"fmt"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/m3u"
)

// RenderM3U renders the playable items of groups as an extended M3U
// playlist. Series placeholders are skipped since their URL is an API call,
// not a stream.
func RenderM3U(groups []models.PlaylistGroup) ([]byte, error) {
	var buf bytes.Buffer
	w := m3u.NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}

	for i := range groups {
		for j := range groups[i].Channels {
			h := &groups[i].Channels[j].Header
			if h.URL == "" || h.ItemType == models.PlaylistItemTypeSeriesInfo || h.SeriesFetched {
				continue
			}
			if err := w.WriteEntry(headerToEntry(h, groups[i].Title)); err != nil {
				return nil, fmt.Errorf("writing %q: %w", h.Name, err)
			}
		}
	}
	return buf.Bytes(), nil
}

func headerToEntry(h *models.PlaylistItemHeader, group string) *m3u.Entry {
	title := h.Title
	if title == "" {
		title = h.Name
	}
	if h.Group != "" {
		group = h.Group
	}

	entry := &m3u.Entry{
		Duration:   -1,
		TvgID:      h.EPGChannelID,
		TvgName:    h.Name,
		TvgLogo:    h.Logo,
		GroupTitle: group,
		Title:      title,
		URL:        h.URL,
		Extra:      make(map[string]string),
	}
	if num, ok := h.Property("num"); ok {
		if n, ok := num.(int64); ok {
			entry.ChannelNumber = int(n)
		}
	}
	for key, value := range map[string]string{
		"timeshift":   h.TimeShift,
		"audio-track": h.AudioTrack,
		"parent-code": h.ParentCode,
	} {
		if value != "" {
			entry.Extra[key] = value
		}
	}
	return entry
}
