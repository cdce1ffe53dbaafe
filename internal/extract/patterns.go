package extract

import "regexp"

const (
	monthsLong  = `January|February|March|April|May|June|July|August|September|October|November|December`
	monthsShort = `Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec`

	// MinYear and MaxYear bound every inferred context year.
	MinYear = 2010
	MaxYear = 2030
)

var (
	yearRe       = regexp.MustCompile(`\b(20\d{2})\b`)
	yearStrictRe = regexp.MustCompile(`^\s*(20\d{2})\s*$`)
	monthFullRe  = regexp.MustCompile(`(?i)^(` + monthsLong + `)`)
	monthLabelRe = regexp.MustCompile(`(?i)^(` + monthsLong + `)(?:\s+20\d{2})?$`)
	monthShortRe = regexp.MustCompile(`(?i)^(?:` + monthsShort + `)`)
	monthAnyRe   = regexp.MustCompile(`(?i)(?:` + monthsShort + `)`)
	contentRe    = regexp.MustCompile(`(?i)content|main`)

	dateCombinedRe = regexp.MustCompile(`(?i)\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|` +
		`(?:` + monthsShort + `)[a-z]*\.?\s+\d{1,2}|(?:` + monthsLong + `)\s+\d{1,2}`)

	dateSimpleRe    = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	dateWithMonthRe = regexp.MustCompile(`(?i)\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\b(` + monthsShort + `)`)
)

var (
	meetingDivPatterns = []string{"meeting", "agenda", "item", "event", "row", "card", "calendar", "session", "board"}
	meetingKeywords    = []string{"meeting", "agenda", "minutes", "board", "council", "session", "hearing", "commission", "committee"}
	agendaKeywords     = []string{"agenda", "packet", "notice", "proposed", "docs", "document", "board book", "material"}
	minutesKeywords    = []string{"minutes", "summary", "transcript", "notes", "action", "record"}
	videoKeywords      = []string{"video", "watch", "recording", "stream", "media", "play", "live", "broadcast"}
	videoPlatforms     = []string{"youtube", "vimeo", "swagit", "granicus", "civicclerk", "champds", "viebit", "sharepoint"}
	documentExtensions = []string{".pdf", ".doc", ".docx", ".html"}
	videoExtensions    = []string{".mp4", ".webm", ".avi", ".mov", ".wmv", ".m4v", ".flv", ".m3u8"}
	rawVideoExtensions = []string{".mp4", ".m3u8", ".webm"}
	cancelledKeywords  = []string{"cancel", "cancelled", "postponed"}
	meetingAttrMarkers = []string{"data-date", "data-meeting", `class="meeting`, `id="meeting`}
)
