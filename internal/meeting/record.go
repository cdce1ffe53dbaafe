// Package meeting defines the records, request windows, and collaborator
// interfaces shared by the extraction and crawl pipeline.
package meeting

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date format for every record.
const DateLayout = "2006-01-02"

// Category names one of the three link slots of a record.
type Category int

// Link categories in their fixed evaluation order.
const (
	Agenda Category = iota
	Minutes
	Video
)

// Categories lists every category in evaluation order.
var Categories = []Category{Agenda, Minutes, Video}

func (c Category) String() string {
	switch c {
	case Agenda:
		return "agenda"
	case Minutes:
		return "minutes"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// Links holds the classified URLs of one meeting. Empty means unresolved.
type Links struct {
	Agenda  string
	Minutes string
	Video   string
}

// Get returns the URL stored for c.
func (l Links) Get(c Category) string {
	switch c {
	case Agenda:
		return l.Agenda
	case Minutes:
		return l.Minutes
	case Video:
		return l.Video
	default:
		return ""
	}
}

// Set returns a copy of l with c assigned to url.
func (l Links) Set(c Category, url string) Links {
	switch c {
	case Agenda:
		l.Agenda = url
	case Minutes:
		l.Minutes = url
	case Video:
		l.Video = url
	}
	return l
}

// Fill copies values from other into the empty slots of l only.
func (l Links) Fill(other Links) Links {
	for _, c := range Categories {
		if l.Get(c) == "" && other.Get(c) != "" {
			l = l.Set(c, other.Get(c))
		}
	}
	return l
}

// Complete reports whether every category is resolved.
func (l Links) Complete() bool {
	return l.Agenda != "" && l.Minutes != "" && l.Video != ""
}

// Empty reports whether no category is resolved.
func (l Links) Empty() bool {
	return l.Agenda == "" && l.Minutes == "" && l.Video == ""
}

// Record is one validated meeting. Empty strings represent absent values.
type Record struct {
	VideoURL   string `json:"meeting_url,omitempty"`
	AgendaURL  string `json:"agenda_url,omitempty"`
	MinutesURL string `json:"minutes_url,omitempty"`
	Title      string `json:"title"`
	Date       string `json:"date"`
}

// NewRecord assembles a record from its parts.
func NewRecord(date, title string, links Links) Record {
	return Record{
		Date:       date,
		Title:      title,
		AgendaURL:  links.Agenda,
		MinutesURL: links.Minutes,
		VideoURL:   links.Video,
	}
}

// Links returns the record's URLs as a Links value.
func (r Record) Links() Links {
	return Links{Agenda: r.AgendaURL, Minutes: r.MinutesURL, Video: r.VideoURL}
}

// WithMissingLinks returns a copy of r whose empty URL fields are filled from l.
func (r Record) WithMissingLinks(l Links) Record {
	merged := r.Links().Fill(l)
	r.AgendaURL = merged.Agenda
	r.MinutesURL = merged.Minutes
	r.VideoURL = merged.Video
	return r
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// ParseWindow builds a Window from two YYYY-MM-DD strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Window{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Window{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if e.Before(s) {
		return Window{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether the canonical date falls inside the window.
func (w Window) Contains(date string) bool {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	return !d.Before(w.Start) && !d.After(w.End)
}

// StartYear returns the calendar year of the first day.
func (w Window) StartYear() int { return w.Start.Year() }

// EndYear returns the calendar year of the last day.
func (w Window) EndYear() int { return w.End.Year() }

// Input is a scrape request.
type Input struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	BaseURLs  []string `json:"base_urls"`
}

// Window validates the request dates and returns the matching Window.
func (in Input) Window() (Window, error) {
	return ParseWindow(in.StartDate, in.EndDate)
}

// SiteResult is the finalized output for one requested site.
type SiteResult struct {
	BaseURL string   `json:"base_url"`
	Records []Record `json:"medias"`
}

// Statistics summarizes an extraction-only run.
type Statistics struct {
	TotalSitesRequested      int     `json:"total_sites_requested"`
	SitesSuccessfullyScraped int     `json:"sites_successfully_scraped"`
	SitesWithMeetingsFound   int     `json:"sites_with_meetings_found"`
	TotalMeetingsExtracted   int     `json:"total_meetings_extracted"`
	CoveragePercentage       float64 `json:"coverage_percentage"`
	DurationSeconds          float64 `json:"duration_seconds"`
}

// Report is the universal-mode output document.
type Report struct {
	Results    []SiteResult `json:"results"`
	Statistics Statistics   `json:"statistics"`
}
