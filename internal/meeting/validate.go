package meeting

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minTitleLen = 5
	maxTitleLen = 300
)

var strictDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate reports whether rec may be emitted. Failing records are dropped by
// callers without further reporting.
func Validate(rec Record) bool {
	if !ValidDate(rec.Date) || !ValidTitle(rec.Title) {
		return false
	}
	for _, u := range []string{rec.AgendaURL, rec.MinutesURL, rec.VideoURL} {
		if u != "" && !ValidURL(u) {
			return false
		}
	}
	return true
}

// ValidDate checks the strict YYYY-MM-DD shape.
func ValidDate(date string) bool {
	return strictDate.MatchString(date)
}

// ValidTitle checks the trimmed title length in characters.
func ValidTitle(title string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	return n >= minTitleLen && n <= maxTitleLen
}

// ValidURL accepts absolute http(s) URLs with a host.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
