package models

// Player API actions.
const (
	ActionGetLiveCategories   = "get_live_categories"
	ActionGetVODCategories    = "get_vod_categories"
	ActionGetSeriesCategories = "get_series_categories"
	ActionGetLiveStreams      = "get_live_streams"
	ActionGetVODStreams       = "get_vod_streams"
	ActionGetSeries           = "get_series"
	ActionGetSeriesInfo       = "get_series_info"
	ActionGetVODInfo          = "get_vod_info"
)

// CollectionKind names one pre-rendered artifact of a target.
type CollectionKind string

// Collection kinds.
const (
	CollectionLiveCategories   CollectionKind = "live_categories"
	CollectionVODCategories    CollectionKind = "vod_categories"
	CollectionSeriesCategories CollectionKind = "series_categories"
	CollectionLiveStreams      CollectionKind = "live_streams"
	CollectionVODStreams       CollectionKind = "vod_streams"
	CollectionSeries           CollectionKind = "series"
	CollectionM3U              CollectionKind = "m3u"
)

// Collections lists every artifact kind.
var Collections = []CollectionKind{
	CollectionLiveCategories,
	CollectionVODCategories,
	CollectionSeriesCategories,
	CollectionLiveStreams,
	CollectionVODStreams,
	CollectionSeries,
	CollectionM3U,
}

var actionCollections = map[string]CollectionKind{
	ActionGetLiveCategories:   CollectionLiveCategories,
	ActionGetVODCategories:    CollectionVODCategories,
	ActionGetSeriesCategories: CollectionSeriesCategories,
	ActionGetLiveStreams:      CollectionLiveStreams,
	ActionGetVODStreams:       CollectionVODStreams,
	ActionGetSeries:           CollectionSeries,
}

// CollectionForAction maps a Player API listing action to its artifact kind.
func CollectionForAction(action string) (CollectionKind, bool) {
	kind, ok := actionCollections[action]
	return kind, ok
}

// CategoriesCollection returns the category artifact of a cluster.
func CategoriesCollection(c XtreamCluster) CollectionKind {
	switch c {
	case XtreamClusterVideo:
		return CollectionVODCategories
	case XtreamClusterSeries:
		return CollectionSeriesCategories
	default:
		return CollectionLiveCategories
	}
}

// StreamsCollection returns the stream artifact of a cluster.
func StreamsCollection(c XtreamCluster) CollectionKind {
	switch c {
	case XtreamClusterVideo:
		return CollectionVODStreams
	case XtreamClusterSeries:
		return CollectionSeries
	default:
		return CollectionLiveStreams
	}
}
