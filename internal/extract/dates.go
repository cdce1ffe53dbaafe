package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

type fieldOrder int

const (
	orderYMD fieldOrder = iota
	orderMDY
	orderNamed
)

// datePattern pairs a regexp with the order of its capture groups. Named
// patterns capture month name, day, and an optional year.
type datePattern struct {
	re    *regexp.Regexp
	order fieldOrder
}

var (
	isoDate       = datePattern{regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`), orderYMD}
	isoDateLoose  = datePattern{regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`), orderYMD}
	slashDate     = datePattern{regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), orderMDY}
	dashDate      = datePattern{regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`), orderMDY}
	dashDateShort = datePattern{regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{2,4})`), orderMDY}
	longWithYear  = datePattern{regexp.MustCompile(`(?i)(` + monthsLong + `)\s+(\d{1,2}),?\s+(\d{4})`), orderNamed}
	shortWithYear = datePattern{regexp.MustCompile(`(?i)((?:` + monthsShort + `)[a-z]*)\.?\s+(\d{1,2}),?\s+(\d{4})`), orderNamed}
	longNoYear    = datePattern{regexp.MustCompile(`(?i)(` + monthsLong + `)\s+(\d{1,2})`), orderNamed}
	shortNoYear   = datePattern{regexp.MustCompile(`(?i)((?:` + monthsShort + `)[a-z]*)\.?\s+(\d{1,2})`), orderNamed}

	// element text: year-bearing forms in priority order
	elementWithYear = []datePattern{isoDate, slashDate, dashDate, longWithYear, shortWithYear}
	withoutYear     = []datePattern{longNoYear, shortNoYear}

	// free text, as found in table cells and calendar anchors
	textNumeric = []datePattern{isoDateLoose, slashDate, dashDate}
	textNamed   = []datePattern{longWithYear, shortWithYear, longNoYear, shortNoYear, dashDateShort}
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

func monthFromWord(word string) (time.Month, bool) {
	w := strings.TrimSuffix(strings.ToLower(word), ".")
	if len(w) < 3 {
		return 0, false
	}
	if w == "sept" {
		return time.September, true
	}
	for i, name := range monthNames {
		if strings.HasPrefix(name, w) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// parse converts the first match of p in text to YYYY-MM-DD. fallbackYear
// supplies the year when the pattern does not capture one.
func (p datePattern) parse(text string, fallbackYear int) (string, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	var (
		year, day int
		month     time.Month
		err       error
	)
	switch p.order {
	case orderYMD:
		year, _ = strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		month = time.Month(mo)
		day, _ = strconv.Atoi(m[3])
	case orderMDY:
		mo, _ := strconv.Atoi(m[1])
		month = time.Month(mo)
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		} else if len(m[3]) == 3 {
			return "", false
		}
	case orderNamed:
		var ok bool
		if month, ok = monthFromWord(m[1]); !ok {
			return "", false
		}
		if day, err = strconv.Atoi(m[2]); err != nil {
			return "", false
		}
		year = fallbackYear
		if len(m) > 3 && m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
	}
	return canonicalDate(year, month, day)
}

func canonicalDate(year int, month time.Month, day int) (string, bool) {
	if year <= 0 || month < time.January || month > time.December || day < 1 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return "", false
	}
	return t.Format(meeting.DateLayout), true
}

// DateResolver turns element attributes and text into canonical dates.
type DateResolver struct {
	clock meeting.Clock
}

// NewDateResolver builds a resolver. clock supplies the last-resort context year.
func NewDateResolver(clock meeting.Clock) *DateResolver {
	return &DateResolver{clock: clock}
}

func (r *DateResolver) currentYear() int {
	if r.clock == nil {
		return time.Now().Year()
	}
	return r.clock.Now().Year()
}

// FromElement resolves the date of one container. It consults structured
// attributes, a nested <time datetime>, year-bearing text, and finally
// year-less text combined with the context year. Returns "" when nothing
// parses.
func (r *DateResolver) FromElement(sel *goquery.Selection, page *Page) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"data-date", "data-meeting-date", "datetime"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			if d, ok := parseAttribute(v); ok {
				return d
			}
		}
	}
	if v, ok := sel.Find("time").First().Attr("datetime"); ok && strings.TrimSpace(v) != "" {
		if d, ok := parseAttribute(v); ok {
			return d
		}
	}

	text := Text(sel, " ")
	for _, p := range elementWithYear {
		if d, ok := p.parse(text, 0); ok {
			return d
		}
	}

	year := r.ContextYear(sel, page)
	for _, p := range withoutYear {
		if d, ok := p.parse(text, year); ok {
			return d
		}
	}
	return ""
}

// FromText resolves a date from free text. contextYear completes year-less
// forms; zero means the current year.
func (r *DateResolver) FromText(text string, contextYear int) string {
	for _, p := range textNumeric {
		if d, ok := p.parse(text, 0); ok {
			return d
		}
	}
	if contextYear == 0 {
		contextYear = r.currentYear()
	}
	for _, p := range textNamed {
		if d, ok := p.parse(text, contextYear); ok {
			return d
		}
	}
	return ""
}

// ContextYear infers the year for dates printed without one: the first
// in-range year in a heading inside the nearest ancestor that has one, else
// the most frequent in-range year on the page, else the current year.
func (r *DateResolver) ContextYear(sel *goquery.Selection, page *Page) int {
	for cur := sel; cur.Length() > 0; cur = cur.Parent() {
		if y := headingYear(cur); y != 0 {
			return y
		}
	}
	if page != nil {
		if y := page.majorityYear(); y != 0 {
			return y
		}
	}
	return r.currentYear()
}

func headingYear(sel *goquery.Selection) int {
	year := 0
	sel.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		m := yearRe.FindStringSubmatch(Text(h, " "))
		if m == nil {
			return true
		}
		y, _ := strconv.Atoi(m[1])
		if y >= MinYear && y <= MaxYear {
			year = y
			return false
		}
		return true
	})
	return year
}

// mostFrequentYear counts in-range years in text. Ties keep the year seen first.
func mostFrequentYear(text string) int {
	counts := make(map[int]int)
	var order []int
	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		y, _ := strconv.Atoi(m[1])
		if y < MinYear || y > MaxYear {
			continue
		}
		if counts[y] == 0 {
			order = append(order, y)
		}
		counts[y]++
	}
	best, bestCount := 0, 0
	for _, y := range order {
		if counts[y] > bestCount {
			best, bestCount = y, counts[y]
		}
	}
	return best
}

func parseAttribute(v string) (string, bool) {
	t, err := dateparse.ParseAny(strings.TrimSpace(v))
	if err != nil {
		return "", false
	}
	return t.Format(meeting.DateLayout), true
}
