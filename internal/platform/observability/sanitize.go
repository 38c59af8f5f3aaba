package observability

import (
	"strings"
	"unicode"
)

// Field length caps for log values. Anything longer is request-supplied data
// that has no business filling a log line.
const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxUserIDLen = 64
	maxRemoteLen = 64
)

// scrub strips control characters and caps the length so request-supplied
// values cannot inject log lines.
func scrub(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	runes := []rune(cleaned)
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

func cleanRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrub(route, maxRouteLen)
}

func cleanMethod(method string) string {
	return scrub(method, maxMethodLen)
}

func cleanUserID(uid string) string {
	return scrub(uid, maxUserIDLen)
}
