package xtream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Category represents a live, VOD or series category.
type Category struct {
	CategoryID   FlexString `json:"category_id"`
	CategoryName FlexString `json:"category_name"`
	ParentID     FlexInt    `json:"parent_id"`
}

// Stream is one entry of get_live_streams, get_vod_streams or get_series.
//
// The three listings share most of their shape, so a single type covers all
// of them. Identifiers are pointers so a missing id is distinguishable from
// an empty one. Descriptive fields use the Opt types, which stay unset for
// missing, null or unparseable values.
type Stream struct {
	Name         FlexString  `json:"name"`
	CategoryID   FlexString  `json:"category_id"`
	StreamID     *FlexString `json:"stream_id"`
	SeriesID     *FlexString `json:"series_id"`
	StreamIcon   FlexString  `json:"stream_icon"`
	DirectSource FlexString  `json:"direct_source"`
	CustomSID    FlexString  `json:"custom_sid"`
	EPGChannelID *FlexString `json:"epg_channel_id"`

	Added              OptString   `json:"added"`
	BackdropPath       FlexStrings `json:"backdrop_path"`
	Cast               OptString   `json:"cast"`
	ContainerExtension OptString   `json:"container_extension"`
	Cover              OptString   `json:"cover"`
	Director           OptString   `json:"director"`
	EpisodeRunTime     OptString   `json:"episode_run_time"`
	Genre              OptString   `json:"genre"`
	LastModified       OptString   `json:"last_modified"`
	Plot               OptString   `json:"plot"`
	Rating             OptFloat    `json:"rating"`
	Rating5Based       OptFloat    `json:"rating_5based"`
	ReleaseDate        OptString   `json:"release_date"`
	ReleaseDateAlt     OptString   `json:"releaseDate"`
	StreamType         OptString   `json:"stream_type"`
	Title              OptString   `json:"title"`
	Year               OptString   `json:"year"`
	YoutubeTrailer     OptString   `json:"youtube_trailer"`
	TVArchive          OptInt      `json:"tv_archive"`
	TVArchiveDuration  OptInt      `json:"tv_archive_duration"`
}

// ID returns the stream identifier: a numeric stream_id when present, else a
// numeric series_id, else the empty string.
func (s *Stream) ID() string {
	if id, ok := numericID(s.StreamID); ok {
		return id
	}
	if id, ok := numericID(s.SeriesID); ok {
		return id
	}
	return ""
}

func numericID(v *FlexString) (string, bool) {
	if v == nil {
		return "", false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}

// ReleaseDateValue returns release_date, falling back to releaseDate.
func (s *Stream) ReleaseDateValue() OptString {
	if s.ReleaseDate.Valid {
		return s.ReleaseDate
	}
	return s.ReleaseDateAlt
}

// SeriesInfo is the response of get_series_info.
type SeriesInfo struct {
	Info     json.RawMessage `json:"info,omitempty"`
	Seasons  json.RawMessage `json:"seasons,omitempty"`
	Episodes SeasonEpisodes  `json:"episodes"`
}

// SeasonEpisodes maps a season key to its episodes.
//
// Providers send either an object keyed by season number or an array of
// per-season arrays. The array form is keyed by the 1-based position.
type SeasonEpisodes map[string][]Episode

// UnmarshalJSON accepts an object, an array of arrays, or null.
func (s *SeasonEpisodes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		*s = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string][]Episode
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("decoding episodes object: %w", err)
		}
		*s = m
	case '[':
		var seasons [][]Episode
		if err := json.Unmarshal(trimmed, &seasons); err != nil {
			return fmt.Errorf("decoding episodes array: %w", err)
		}
		m := make(map[string][]Episode, len(seasons))
		for i, eps := range seasons {
			m[strconv.Itoa(i+1)] = eps
		}
		*s = m
	default:
		return fmt.Errorf("unexpected episodes value %q", trimmed[0])
	}
	return nil
}

// SeasonKeys returns the season keys in playback order: numeric keys
// ascending, then any non-numeric keys in lexical order.
func (s SeasonEpisodes) SeasonKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// Episode represents a single episode within a series.
type Episode struct {
	ID                 FlexString  `json:"id"`
	EpisodeNum         FlexInt     `json:"episode_num"`
	Title              FlexString  `json:"title"`
	ContainerExtension FlexString  `json:"container_extension"`
	Info               EpisodeInfo `json:"info"`
	DirectSource       FlexString  `json:"direct_source"`
	Season             FlexInt     `json:"season"`
}

// EpisodeInfo contains the per-episode metadata used downstream.
type EpisodeInfo struct {
	MovieImage  FlexString `json:"movie_image"`
	Plot        FlexString `json:"plot"`
	ReleaseDate FlexString `json:"releasedate"`
	Duration    FlexString `json:"duration"`
	Rating      FlexFloat  `json:"rating"`
}

// UnmarshalJSON tolerates providers that send an empty array instead of an
// object when no metadata exists.
func (e *EpisodeInfo) UnmarshalJSON(data []byte) error {
	*e = EpisodeInfo{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	type plain EpisodeInfo
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*e = EpisodeInfo(p)
	return nil
}

// AuthInfo is the response to a player_api.php request without an action.
type AuthInfo struct {
	UserInfo   UserInfo   `json:"user_info"`
	ServerInfo ServerInfo `json:"server_info"`
}

// UserInfo describes the authenticated account.
//
// Xtream clients expect most numeric fields as strings; auth is the
// exception.
type UserInfo struct {
	ActiveCons           string   `json:"active_cons"`
	AllowedOutputFormats []string `json:"allowed_output_formats"`
	Auth                 int      `json:"auth"`
	CreatedAt            string   `json:"created_at"`
	ExpDate              string   `json:"exp_date"`
	IsTrial              string   `json:"is_trial"`
	MaxConnections       string   `json:"max_connections"`
	Message              string   `json:"message"`
	Password             string   `json:"password"`
	Status               string   `json:"status"`
	Username             string   `json:"username"`
}

// ServerInfo describes the server a client should talk to.
type ServerInfo struct {
	URL            string `json:"url"`
	Port           string `json:"port"`
	HTTPSPort      string `json:"https_port"`
	ServerProtocol string `json:"server_protocol"`
	RTMPPort       string `json:"rtmp_port"`
	Timezone       string `json:"timezone"`
	TimestampNow   int64  `json:"timestamp_now"`
	TimeNow        string `json:"time_now"`
}
