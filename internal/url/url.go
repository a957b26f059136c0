package url

import (
	"errors"
	"strings"
)

var errNoScheme = errors.New("no scheme")
var errEmptyURL = errors.New("URL cannot be empty")

// SchemeFromURL find scheme from beginning of string to the first colon
func SchemeFromURL(url string) (string, error) {
	if url == "" {
		return "", errEmptyURL
	}

	i := strings.Index(url, ":")

	// No : or : is the first character.
	if i < 1 {
		return "", errNoScheme
	}

	return url[0:i], nil
}

// PlatformFromURL returns the scheme of url when it is followed by :// or
// names one of platforms, fallback otherwise. Connection strings without a
// scheme, like the key=value strings of SQL Server, yield fallback.
func PlatformFromURL(url string, platforms []string, fallback string) string {
	scheme, err := SchemeFromURL(url)
	if err != nil {
		return fallback
	}
	if strings.HasPrefix(url[len(scheme):], "://") {
		return strings.ToLower(scheme)
	}
	scheme = strings.ToLower(scheme)
	for _, p := range platforms {
		if p == scheme {
			return p
		}
	}
	return fallback
}
