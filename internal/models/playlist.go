package models

import (
	"fmt"
	"sync/atomic"
)

// XtreamCluster identifies which upstream endpoint family an item came from.
type XtreamCluster int

// Xtream clusters.
const (
	XtreamClusterLive XtreamCluster = iota + 1
	XtreamClusterVideo
	XtreamClusterSeries
)

// XtreamClusters lists every cluster in refresh order.
var XtreamClusters = []XtreamCluster{XtreamClusterLive, XtreamClusterVideo, XtreamClusterSeries}

// String returns the cluster name.
func (c XtreamCluster) String() string {
	switch c {
	case XtreamClusterLive:
		return "live"
	case XtreamClusterVideo:
		return "video"
	case XtreamClusterSeries:
		return "series"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c XtreamCluster) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// CategoriesAction returns the Player API action listing this cluster's categories.
func (c XtreamCluster) CategoriesAction() string {
	switch c {
	case XtreamClusterVideo:
		return ActionGetVODCategories
	case XtreamClusterSeries:
		return ActionGetSeriesCategories
	default:
		return ActionGetLiveCategories
	}
}

// StreamsAction returns the Player API action listing this cluster's streams.
func (c XtreamCluster) StreamsAction() string {
	switch c {
	case XtreamClusterVideo:
		return ActionGetVODStreams
	case XtreamClusterSeries:
		return ActionGetSeries
	default:
		return ActionGetLiveStreams
	}
}

// ItemType returns the item type assigned to freshly normalized items of this cluster.
func (c XtreamCluster) ItemType() PlaylistItemType {
	switch c {
	case XtreamClusterVideo:
		return PlaylistItemTypeMovie
	case XtreamClusterSeries:
		return PlaylistItemTypeSeriesInfo
	default:
		return PlaylistItemTypeLive
	}
}

// PlaylistItemType is the downstream-facing item tag.
type PlaylistItemType int

// Playlist item types. SeriesInfo is an unresolved series placeholder; Series
// is a resolved episode or a placeholder whose episodes were fetched.
const (
	PlaylistItemTypeLive PlaylistItemType = iota + 1
	PlaylistItemTypeMovie
	PlaylistItemTypeSeriesInfo
	PlaylistItemTypeSeries
)

// String returns the item type name.
func (t PlaylistItemType) String() string {
	switch t {
	case PlaylistItemTypeLive:
		return "live"
	case PlaylistItemTypeMovie:
		return "movie"
	case PlaylistItemTypeSeriesInfo:
		return "series_info"
	case PlaylistItemTypeSeries:
		return "series"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t PlaylistItemType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Property is one optional descriptive field carried over from upstream.
// Value is a string, float64, int64 or []string.
type Property struct {
	Name  string
	Value any
}

// StringProperty builds a string-valued property.
func StringProperty(name, value string) Property {
	return Property{Name: name, Value: value}
}

// FloatProperty builds a float-valued property.
func FloatProperty(name string, value float64) Property {
	return Property{Name: name, Value: value}
}

// IntProperty builds an integer-valued property.
func IntProperty(name string, value int64) Property {
	return Property{Name: name, Value: value}
}

// StringsProperty builds an array-valued property.
func StringsProperty(name string, values []string) Property {
	return Property{Name: name, Value: values}
}

// PlaylistItemHeader holds the fields of one playable entry.
type PlaylistItemHeader struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Logo       string `json:"logo"`
	LogoSmall  string `json:"logo_small"`
	Group      string `json:"group"`
	Title      string `json:"title"`
	ParentCode string `json:"parent_code"`
	AudioTrack string `json:"audio_track"`
	TimeShift  string `json:"time_shift"`
	Rec        string `json:"rec"`
	// Source is reserved for original provider metadata and left empty by the normalizer.
	Source               string           `json:"source"`
	URL                  string           `json:"url"`
	EPGChannelID         string           `json:"epg_channel_id,omitempty"`
	XtreamCluster        XtreamCluster    `json:"xtream_cluster"`
	ItemType             PlaylistItemType `json:"item_type"`
	AdditionalProperties []Property       `json:"-"`
	SeriesFetched        bool             `json:"series_fetched"`
}

// Property returns the value of the named additional property.
func (h *PlaylistItemHeader) Property(name string) (any, bool) {
	for _, p := range h.AdditionalProperties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// PlaylistItem is one playable entry. It owns its header.
type PlaylistItem struct {
	Header PlaylistItemHeader `json:"header"`
}

// ResolveSeries returns item marked as having its episodes fetched.
// Items that are not unresolved series placeholders are returned unchanged.
func ResolveSeries(item PlaylistItem) PlaylistItem {
	if item.Header.ItemType != PlaylistItemTypeSeriesInfo {
		return item
	}
	item.Header.ItemType = PlaylistItemTypeSeries
	item.Header.SeriesFetched = true
	return item
}

// PlaylistGroup is one output category.
type PlaylistGroup struct {
	ID            uint32         `json:"id"`
	Title         string         `json:"title"`
	XtreamCluster XtreamCluster  `json:"xtream_cluster"`
	Channels      []PlaylistItem `json:"channels"`
}

// Validate checks that every channel carries the group's cluster.
func (g *PlaylistGroup) Validate() error {
	for i := range g.Channels {
		if got := g.Channels[i].Header.XtreamCluster; got != g.XtreamCluster {
			return fmt.Errorf("group %q: channel %d has cluster %s, want %s", g.Title, i, got, g.XtreamCluster)
		}
	}
	return nil
}

// GroupCounter hands out group ids. It is safe for concurrent use by
// normalization passes running in parallel.
type GroupCounter struct {
	last atomic.Uint32
}

// Next returns the next group id. Ids start at 1.
func (c *GroupCounter) Next() uint32 {
	return c.last.Add(1)
}
