package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/pkg/m3u"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderM3U(t *testing.T) {
	data, err := RenderM3U(testGroups())
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "#EXTM3U\n"))
	assert.Contains(t, text, `tvg-id="bbc.uk"`)
	assert.Contains(t, text, `group-title="News"`)
	assert.Contains(t, text, "http://p/series/u/p/901.mp4")
	assert.NotContains(t, text, "get_series_info", "series placeholders are not playable")

	entries, err := m3u.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "BBC", entries[0].Title)
	assert.Equal(t, "Heat", entries[1].Title, "name is used when the title is empty")
	assert.Equal(t, "Drama", entries[2].GroupTitle)
}

func TestRenderM3U_Extras(t *testing.T) {
	groups := []models.PlaylistGroup{{
		ID: 1, Title: "UK", XtreamCluster: models.XtreamClusterLive,
		Channels: []models.PlaylistItem{{Header: models.PlaylistItemHeader{
			Name: "A", URL: "http://cdn/a.m3u8", TimeShift: "2",
			XtreamCluster:        models.XtreamClusterLive,
			AdditionalProperties: []models.Property{models.IntProperty("num", 12)},
		}}},
	}}

	data, err := RenderM3U(groups)
	require.NoError(t, err)

	entries, err := m3u.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 12, entries[0].ChannelNumber)
	assert.Equal(t, "2", entries[0].Attr("timeshift"))
	assert.Equal(t, "UK", entries[0].GroupTitle)
}

func TestRenderM3U_Empty(t *testing.T) {
	data, err := RenderM3U(nil)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(data))
}
