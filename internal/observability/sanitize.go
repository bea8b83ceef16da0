package observability

import (
	"net/url"
	"strings"
)

const redactedValue = "xxxxx"

// credentialQueryParams are the query parameters Xtream servers accept credentials on.
var credentialQueryParams = []string{"username", "password", "token"}

// streamPathPrefixes are the path roots that embed /{user}/{pass}/ segments.
var streamPathPrefixes = []string{"live", "movie", "series", "timeshift"}

// SanitizeURL returns rawURL with credentials removed so it can be logged.
// It strips userinfo, masks credential query parameters, and masks the
// user/password segments of /live|/movie|/series stream paths.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return redactedValue
	}

	if u.User != nil {
		u.User = url.User(redactedValue)
	}

	if u.RawQuery != "" {
		q := u.Query()
		for _, param := range credentialQueryParams {
			if q.Has(param) {
				q.Set(param, redactedValue)
			}
		}
		u.RawQuery = q.Encode()
	}

	segments := strings.Split(u.Path, "/")
	for i := 0; i+2 < len(segments); i++ {
		if isStreamPrefix(segments[i]) {
			segments[i+1] = redactedValue
			segments[i+2] = redactedValue
			break
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""

	return u.String()
}

func isStreamPrefix(segment string) bool {
	for _, prefix := range streamPathPrefixes {
		if segment == prefix {
			return true
		}
	}
	return false
}
