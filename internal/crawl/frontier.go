package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxPages bounds pagination pages fetched per seed.
const DefaultMaxPages = 10

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, and drops the fragment.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Frontier tracks visited URLs and the bounded queue of pagination pages
// for one seed. It is owned by a single site and is not safe for
// concurrent use.
type Frontier struct {
	seen    map[string]struct{}
	pending []string
	limit   int
	added   int
}

// NewFrontier creates a frontier that has already visited seed and will
// accept at most limit further pages.
func NewFrontier(seed string, limit int) *Frontier {
	if limit <= 0 {
		limit = DefaultMaxPages
	}
	f := &Frontier{seen: make(map[string]struct{}), limit: limit}
	f.MarkIfNew(seed)
	return f
}

// MarkIfNew records rawURL as visited and reports whether it was unseen.
func (f *Frontier) MarkIfNew(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	return true
}

// Enqueue adds an unseen URL while capacity remains.
func (f *Frontier) Enqueue(rawURL string) bool {
	if f.Full() || !f.MarkIfNew(rawURL) {
		return false
	}
	f.pending = append(f.pending, rawURL)
	f.added++
	return true
}

// Next pops the oldest pending URL.
func (f *Frontier) Next() (string, bool) {
	if len(f.pending) == 0 {
		return "", false
	}
	next := f.pending[0]
	f.pending = f.pending[1:]
	return next, true
}

// Full reports whether the page budget is spent.
func (f *Frontier) Full() bool {
	return f.added >= f.limit
}

// Added returns how many pages have been queued so far.
func (f *Frontier) Added() int {
	return f.added
}
