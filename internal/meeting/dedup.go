package meeting

import (
	"sort"
	"strings"
)

// Key identifies the meeting a record describes: its date plus the distinct
// set of populated URLs, or its date plus title when no URL is known.
func (r Record) Key() string {
	seen := make(map[string]struct{}, 3)
	urls := make([]string, 0, 3)
	for _, u := range []string{r.AgendaURL, r.MinutesURL, r.VideoURL} {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return r.Date + "|" + r.Title
	}
	sort.Strings(urls)
	return r.Date + "|" + strings.Join(urls, "|")
}

// Dedupe merges records sharing a Key. The first-seen record survives and its
// empty URL fields are filled from later duplicates; populated fields are
// never overwritten. Output order follows first appearance.
func Dedupe(records []Record) []Record {
	if len(records) == 0 {
		return nil
	}
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := index[key]; ok {
			out[i] = out[i].WithMissingLinks(rec.Links())
			if out[i].Title == "" {
				out[i].Title = rec.Title
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// Merge appends additions to base and deduplicates the union.
func Merge(base []Record, additions ...Record) []Record {
	all := make([]Record, 0, len(base)+len(additions))
	all = append(all, base...)
	all = append(all, additions...)
	return Dedupe(all)
}
