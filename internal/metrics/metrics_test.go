package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.gov/path", "example.gov"},
		{"standard https", "https://Example.gov/path", "example.gov"},
		{"no scheme", "example.gov/path", "example.gov"},
		{"host with port", "example.gov:8080", "example.gov"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserversInitializeLazily(t *testing.T) {
	ObserveFetch("https://fetch.example.gov/meetings", "success")
	ObserveFetch("https://fetch.example.gov/other", "success")
	ObserveIdentityRotation("https://fetch.example.gov/")
	ObserveRecords("observer-test", 3)
	ObserveRecords("observer-test", 0)

	if val := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("fetch.example.gov", "success")); val != 2 {
		t.Errorf("expected 2 fetch attempts, got %f", val)
	}
	if val := testutil.ToFloat64(identityRotationsTotal.WithLabelValues("fetch.example.gov")); val != 1 {
		t.Errorf("expected 1 identity rotation, got %f", val)
	}
	if val := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("observer-test")); val != 3 {
		t.Errorf("expected 3 records, got %f", val)
	}
}

func TestObserveResolution(t *testing.T) {
	ObserveResolution("observer-video", true)
	ObserveResolution("observer-video", false)
	ObserveResolution("observer-video", false)

	if val := testutil.ToFloat64(resolverResultsTotal.WithLabelValues("observer-video", "failed")); val != 2 {
		t.Errorf("expected 2 failed resolutions, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.gov", "https://boarddocs.com", "ftp://example.gov"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
