// Package detector decides when a fetched page needs extra render time
// before its document is captured.
package detector

import (
	"regexp"
	"strings"
)

// Platform wait selectors for sites whose meeting tables are filled in by script.
const (
	TownCloudSelector   = "table.tc-table tbody tr"
	NovusAgendaSelector = `table[id*="radGrid"]`
	GranicusSelector    = ".minutes-item, .meeting-row"
)

// Heuristic implements a handful of rule-based render checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var scriptMarkers = []string{
	"__doPostBack",
	"RadGrid",
	"react-root",
	"ng-app",
	"vue-app",
}

var tableDataRe = regexp.MustCompile(`data-url=["']/[^"']+/table_data`)

// JSHeavy reports whether body appears to render its meeting listing with
// client-side script.
func (h *Heuristic) JSHeavy(body, pageURL string) bool {
	if body == "" {
		return false
	}
	lowerURL := strings.ToLower(pageURL)
	if strings.Contains(lowerURL, "novusagenda") || strings.Contains(lowerURL, "towncloud") {
		return true
	}
	if strings.Contains(strings.ToLower(body), "datatables") {
		return true
	}
	if tableDataRe.MatchString(body) {
		return true
	}
	for _, marker := range scriptMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return len(body) < h.BodyLengthThreshold && scriptDensityHigh(body)
}

// WaitSelector returns the element to wait for on known platforms, or "" when
// a fixed settle delay should be used instead.
func (h *Heuristic) WaitSelector(pageURL string) string {
	lowerURL := strings.ToLower(pageURL)
	switch {
	case strings.Contains(lowerURL, "towncloud"):
		return TownCloudSelector
	case strings.Contains(lowerURL, "novusagenda"):
		return NovusAgendaSelector
	case strings.Contains(lowerURL, "granicus"):
		return GranicusSelector
	default:
		return ""
	}
}

func scriptDensityHigh(body string) bool {
	lower := strings.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 50
}
