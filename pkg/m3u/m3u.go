// Package m3u reads and writes extended M3U playlists.
//
// The reader transparently handles gzip, bzip2 and xz compressed input and
// yields one Entry per stream URL. The writer emits #EXTINF entries with the
// usual tvg-* and group-title attributes.
package m3u

// Entry is a single stream entry of an M3U playlist.
type Entry struct {
	// Duration is the track duration in seconds (-1 for live streams).
	Duration int

	// TvgID is the EPG channel identifier.
	TvgID string

	// TvgName is the display name from tvg-name attribute.
	TvgName string

	// TvgLogo is the URL to the channel logo.
	TvgLogo string

	// GroupTitle is the category from group-title, or from a preceding
	// #EXTGRP directive when the attribute is absent.
	GroupTitle string

	// ChannelNumber is the channel number from tvg-chno attribute.
	ChannelNumber int

	// Title is the display title after the attribute list.
	Title string

	// URL is the stream URL.
	URL string

	// Extra holds attributes not mapped to a field above, keyed in lower case.
	Extra map[string]string
}

// Attr returns an attribute value from Extra.
func (e *Entry) Attr(key string) string {
	if e.Extra == nil {
		return ""
	}
	return e.Extra[key]
}
