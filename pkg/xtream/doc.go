// Package xtream provides the wire types and a raw-payload client for the
// Xtream Codes Player API.
//
// Xtream Codes is an IPTV panel system exposing categories, streams and
// series details as loosely typed JSON. The types in this package tolerate
// the usual provider quirks: numbers sent as strings, strings sent as
// numbers, arrays where objects are expected, and fields that are simply
// missing.
//
// # Basic Usage
//
//	client := xtream.NewClient("http://example.com:8080", "username", "password")
//
//	// Raw category and stream payloads, decoded later by the normalizer
//	categories, err := client.Fetch(ctx, "get_live_categories", nil)
//	streams, err := client.Fetch(ctx, "get_live_streams", nil)
//
//	// Series details
//	info, err := client.FetchSeriesInfo(ctx, "1234")
//
// # Stream URLs
//
// Connection builds the playback URLs a provider serves:
//
//	conn := client.Connection
//	conn.LiveURL("12345")            // {base}/live/{user}/{pass}/12345.ts
//	conn.MovieURL("67890", "mkv")    // {base}/movie/{user}/{pass}/67890.mkv
//	conn.EpisodeURL("11111", "mp4")  // {base}/series/{user}/{pass}/11111.mp4
//	conn.StreamURL("live", "12345")  // {base}/live/{user}/{pass}/12345
//
// # API Endpoints
//
//	{baseURL}/player_api.php?username={user}&password={pass}&action={action}
//
// Actions used here:
//   - (no action): server info and authentication status
//   - get_live_categories, get_vod_categories, get_series_categories
//   - get_live_streams, get_vod_streams, get_series
//   - get_series_info (series_id), get_vod_info (vod_id)
package xtream
