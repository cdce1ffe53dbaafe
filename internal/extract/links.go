package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// ClassifyLinks scores every anchor under sel and keeps at most one URL per
// category. Ties resolve in the order agenda, minutes, video, and a category
// assigned by an earlier anchor is never replaced.
func ClassifyLinks(sel *goquery.Selection, baseURL string) meeting.Links {
	return classifyLinks(sel, parseBase(baseURL))
}

func classifyLinks(sel *goquery.Selection, base *url.URL) meeting.Links {
	var links meeting.Links
	if sel == nil || sel.Length() == 0 {
		return links
	}
	context := strings.ToLower(Text(sel, " "))
	used := make(map[string]struct{})

	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := Resolve(base, href)
		if abs == "" {
			return true
		}
		if _, ok := used[abs]; ok {
			return true
		}
		cat, ok := scoreAnchor(strings.ToLower(Text(a, " "))+" "+context, strings.ToLower(href), hostOf(abs))
		if !ok || links.Get(cat) != "" {
			return true
		}
		links = links.Set(cat, abs)
		used[abs] = struct{}{}
		return !links.Complete()
	})
	return links
}

// scoreAnchor returns the winning category for one anchor, given the lower
// cased combined text, the raw href and the host of the resolved link.
func scoreAnchor(text, href, host string) (meeting.Category, bool) {
	agenda := countContained(text, agendaKeywords)
	minutes := countContained(text, minutesKeywords)
	video := countContained(text, videoKeywords) + countContained(host, videoPlatforms)

	for _, ext := range documentExtensions {
		if !strings.Contains(href, ext) {
			continue
		}
		switch {
		case containsAny(text, agendaKeywords):
			agenda += 2
		case containsAny(text, minutesKeywords):
			minutes += 2
		default:
			agenda++
		}
	}
	if containsAny(href, agendaKeywords) {
		agenda += 2
	}
	if containsAny(href, minutesKeywords) {
		minutes += 2
	}
	if containsAny(href, videoKeywords) {
		video += 2
	}
	if containsAny(href, rawVideoExtensions) {
		video += 3
	}

	best, score := meeting.Agenda, agenda
	if minutes > score {
		best, score = meeting.Minutes, minutes
	}
	if video > score {
		best, score = meeting.Video, video
	}
	return best, score > 0
}

func isVideoLink(a *goquery.Selection) bool {
	href, ok := a.Attr("href")
	if !ok || href == "" {
		return false
	}
	href = strings.ToLower(href)
	text := strings.ToLower(Text(a, ""))
	dataFile := strings.ToLower(a.AttrOr("data-file-name", ""))
	for _, ext := range videoExtensions {
		if strings.HasSuffix(href, ext) || strings.HasSuffix(dataFile, ext) {
			return true
		}
	}
	return containsAny(text, videoKeywords) ||
		containsAny(href, videoKeywords) ||
		containsAny(hostOf(href), videoPlatforms) ||
		strings.Contains(href, "/resource-manager/")
}

// hostOf returns the lower-cased host name of raw, or "" for relative or
// unparsable links.
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
