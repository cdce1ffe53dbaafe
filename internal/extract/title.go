package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var postedStampRe = regexp.MustCompile(`(?i)Posted\s+\w+\s+\d{1,2},?\s+\d{4}\s+\d{1,2}:\d{2}\s+[AP]M`)

var titleDatePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:` + monthsShort + `)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\s*-?\s*`),
	regexp.MustCompile(`(?i)^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\s*-?\s*`),
	regexp.MustCompile(`(?i)^\d{4}-\d{2}-\d{2}\s*-?\s*`),
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	anchorChrome = []string{"download", "view pdf", "previous version"}
	lineChrome   = []string{"download", "view", "click", "select", "filter", "previous version"}
	leadChrome   = []string{"download", "view", "click"}
)

const maxTitleRunes = 200

// FallbackTitle is used when no title can be derived for a dated meeting.
func FallbackTitle(date string) string {
	return "Meeting on " + date
}

// ExtractTitle picks a human title for a container. It prefers a meeting
// document anchor, then a text line mentioning a meeting keyword, then one of
// the leading lines that is not mostly digits.
func ExtractTitle(sel *goquery.Selection, date string) string {
	title := ""
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.ToLower(a.AttrOr("href", ""))
		if !strings.Contains(href, "agenda") && !strings.Contains(href, "viewfile") && !strings.Contains(href, "meeting") {
			return true
		}
		text := Text(a, " ")
		if n := utf8.RuneCountInString(text); n < 10 || n > 150 {
			return true
		}
		lower := strings.ToLower(text)
		if containsAny(lower, meetingKeywords) && !containsAny(lower, anchorChrome) {
			title = text
			return false
		}
		return true
	})
	if title != "" {
		return title
	}

	all := lines(sel)
	for _, line := range all {
		if n := utf8.RuneCountInString(line); n < 8 || n > 150 {
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, lineChrome) || numericOnly(line) {
			continue
		}
		if containsAny(lower, meetingKeywords) {
			return line
		}
	}

	for i, line := range all {
		if i == 5 {
			break
		}
		n := utf8.RuneCountInString(line)
		if n < 10 || n > 100 || containsAny(strings.ToLower(line), leadChrome) {
			continue
		}
		if digitRatio(line) < 0.4 {
			return line
		}
	}
	return FallbackTitle(date)
}

// CleanTitle normalises a raw title: non-ASCII characters, posting stamps,
// and leading dates are removed and long titles are truncated. ok is false
// when fewer than three characters remain.
func CleanTitle(title string) (string, bool) {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	out := postedStampRe.ReplaceAllString(b.String(), "")
	for _, re := range titleDatePrefixes {
		out = re.ReplaceAllString(out, "")
	}
	out = whitespaceRe.ReplaceAllString(out, " ")
	out = strings.Trim(out, "- \t\n\r")
	if len(out) > maxTitleRunes {
		out = out[:maxTitleRunes-3] + "..."
	}
	if len(out) < 3 {
		return "", false
	}
	return out, true
}

func titleOrFallback(raw, date string) string {
	if t, ok := CleanTitle(raw); ok {
		return t
	}
	return FallbackTitle(date)
}

func numericOnly(line string) bool {
	stripped := strings.NewReplacer("/", "", "-", "", " ", "", ",", "").Replace(line)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func digitRatio(line string) float64 {
	total, digits := 0, 0
	for _, r := range line {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(digits) / float64(total)
}
