package backend

import (
	"regexp"
	"strconv"
	"strings"
)

var maxAgePattern = regexp.MustCompile(`max-age=([0-9]+)(?:[ ,;]|$)`)

// ParseMaxAge extracts the max-age directive, in seconds, from a
// Cache-Control header value.
func ParseMaxAge(cacheControl string) (int64, bool) {
	m := maxAgePattern.FindStringSubmatch(strings.ToLower(cacheControl))
	if m == nil {
		return 0, false
	}

	seconds, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return seconds, true
}
