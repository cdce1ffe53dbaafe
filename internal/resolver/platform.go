package resolver

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/colly"
)

var (
	directPlatforms = []string{"video.ibm.com", "vimeo.com", "facebook.com", "sharepoint.com", "youtube.com", "youtu.be"}
	mediaExtensions = []string{".mp4", ".m3u8", ".m3u", ".webm", ".mp3", ".wav"}

	// Players on these hosts load their stream from script, so the page is
	// scanned for the first stream URL of the given extension.
	scriptedPlayers = []scriptedPlayer{
		{host: "champds.com", stream: streamRe(".m3u8")},
		{host: "civicclerk.com", stream: streamRe(".mp4")},
		{host: "viebit.com", stream: streamRe(".m3u8")},
		{host: "audiomack.com", stream: streamRe(".mp3")},
	}

	granicusMP4Re  = regexp.MustCompile(`https://archive-video\.granicus\.com/[^"'<>\s]+\.mp4`)
	scriptMediaRe  = regexp.MustCompile(`["']https?://[^"']+\.(?:mp4|m3u8|webm|mp3|wav)[^"']*["']`)
	dataSrcMarkers = []string{".mp4", ".m3u8", "video", "media", ".mp3", ".wav"}
)

// platformURL maps rawURL to its platform download form. It returns "" when
// the host is unknown and the URL is not itself a media file.
func (r *Resolver) platformURL(ctx context.Context, rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "swagit.com"):
		if strings.HasSuffix(rawURL, "/download") {
			return rawURL
		}
		return strings.TrimRight(rawURL, "/") + "/download"
	case strings.Contains(lower, "granicus.com"):
		return r.granicusMP4(ctx, rawURL)
	case strings.Contains(lower, "savannahga.gov"):
		if strings.Contains(lower, "/minutes.html") {
			return r.firstPDF(ctx, rawURL)
		}
		return rawURL
	}
	for _, p := range scriptedPlayers {
		if strings.Contains(lower, p.host) {
			return r.scriptedStream(ctx, rawURL, p.stream)
		}
	}
	if playable(rawURL) {
		return rawURL
	}
	return ""
}

// playable reports whether u is a direct platform page or a media file.
func playable(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range directPlatforms {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, ext := range mediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func (r *Resolver) fetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	page, err := r.pages.Get(ctx, collyfetcher.Request{URL: rawURL, Timeout: r.cfg.VerifyTimeout})
	if err != nil {
		return nil, err
	}
	return page.Body, nil
}

func (r *Resolver) granicusMP4(ctx context.Context, rawURL string) string {
	body, err := r.fetchPage(ctx, rawURL)
	if err != nil {
		r.logger.Warn("Granicus page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	if m := granicusMP4Re.Find(body); m != nil {
		return string(m)
	}
	return rawURL
}

func (r *Resolver) firstPDF(ctx context.Context, rawURL string) string {
	body, err := r.fetchPage(ctx, rawURL)
	if err != nil {
		r.logger.Warn("Minutes page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rawURL
	}
	base, _ := url.Parse(rawURL)
	found := rawURL
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(strings.ToLower(href), ".pdf") {
			return true
		}
		if abs := extract.Resolve(base, href); abs != "" {
			found = abs
			return false
		}
		return true
	})
	return found
}

type scriptedPlayer struct {
	host   string
	stream *regexp.Regexp
}

func (r *Resolver) scriptedStream(ctx context.Context, rawURL string, stream *regexp.Regexp) string {
	body, err := r.fetchPage(ctx, rawURL)
	if err != nil {
		r.logger.Warn("Player page fetch failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	if m := stream.Find(body); m != nil {
		return strings.ReplaceAll(string(m), "&amp;", "&")
	}
	return ""
}

func streamRe(ext string) *regexp.Regexp {
	return regexp.MustCompile(`https?://[^"'<>\s]+` + regexp.QuoteMeta(ext) + `[^"'<>\s]*`)
}

// pageCandidates scrapes rawURL for embedded media sources, in document
// order by source kind.
func (r *Resolver) pageCandidates(ctx context.Context, rawURL string) []string {
	if r.pages == nil {
		return nil
	}
	page, err := r.pages.Get(ctx, collyfetcher.Request{URL: rawURL, Timeout: r.cfg.PageTimeout})
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("Page extraction failed", zap.String("url", rawURL), zap.Error(err))
		}
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	return mediaCandidates(doc, rawURL)
}

func mediaCandidates(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	var out []string
	add := func(href string) {
		if abs := extract.Resolve(base, href); abs != "" {
			out = append(out, abs)
		}
	}

	doc.Find("video").Each(func(_ int, v *goquery.Selection) {
		if src, ok := v.Attr("src"); ok {
			add(src)
		}
		v.Find("source[src]").Each(func(_ int, s *goquery.Selection) {
			add(s.AttrOr("src", ""))
		})
	})
	doc.Find("iframe[src]").Each(func(_ int, f *goquery.Selection) {
		add(f.AttrOr("src", ""))
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range scriptMediaRe.FindAllString(s.Text(), -1) {
			out = append(out, strings.Trim(m, `"'`))
		}
	})
	doc.Find("[data-video-url]").Each(func(_ int, e *goquery.Selection) {
		add(e.AttrOr("data-video-url", ""))
	})
	doc.Find("[data-src]").Each(func(_ int, e *goquery.Selection) {
		v := e.AttrOr("data-src", "")
		lower := strings.ToLower(v)
		for _, m := range dataSrcMarkers {
			if strings.Contains(lower, m) {
				add(v)
				return
			}
		}
	})
	return out
}
