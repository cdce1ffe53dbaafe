package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// ErrorKind categorizes a failed fetch attempt.
type ErrorKind int

// Error kinds in classification order.
const (
	KindNone ErrorKind = iota
	KindTimeout
	KindRateLimited
	KindChallenge
	KindBotDetection
	KindServerError
	KindNetwork
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindChallenge:
		return "challenge"
	case KindBotDetection:
		return "bot_detection"
	case KindServerError:
		return "server_error"
	case KindNetwork:
		return "network"
	default:
		return "other"
	}
}

// Transient reports whether the kind is retried after a backoff sleep.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindNetwork
}

// Blocked reports whether the kind is retried with a fresh identity.
func (k ErrorKind) Blocked() bool {
	return k == KindChallenge || k == KindBotDetection
}

// ChallengeError reports that navigation succeeded but served an
// anti-bot interstitial instead of the requested page.
type ChallengeError struct {
	URL string
}

func (e *ChallengeError) Error() string {
	return "challenge page served for " + e.URL
}

var (
	timeoutMarkers   = []string{"timeout", "timed out", "timed_out", "err_timed_out"}
	rateLimitMarkers = []string{"rate limit", "too many requests"}
	challengeMarkers = []string{"cloudflare", "cf-ray", "checking your browser", "ddos protection"}
	botMarkers       = []string{
		"access denied", "captcha", "blocked", "forbidden", "please verify",
		"security check", "unusual traffic", "robot", "automated",
	}
	networkMarkers = []string{"connection", "network", "err_connection", "getaddrinfo", "dns", "err_name_not_resolved"}
)

// Classify maps an attempt error to its kind. Typed errors are inspected
// before the message text. HTTP statuses are only read from
// *meeting.StatusError, and the text scan covers the innermost cause with
// URLs removed, so the page address never decides the kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var challenge *ChallengeError
	if errors.As(err, &challenge) {
		return KindChallenge
	}
	var status *meeting.StatusError
	if errors.As(err, &status) {
		return classifyStatus(status.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	msg := causeMessage(err)
	switch {
	case containsAny(msg, timeoutMarkers):
		return KindTimeout
	case containsAny(msg, rateLimitMarkers):
		return KindRateLimited
	case containsAny(msg, challengeMarkers):
		return KindChallenge
	case containsAny(msg, botMarkers):
		return KindBotDetection
	case containsAny(msg, networkMarkers):
		return KindNetwork
	default:
		return KindOther
	}
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindBotDetection
	case code >= 500:
		return KindServerError
	default:
		return KindOther
	}
}

var challengeTitles = []string{"just a moment...", "attention required! | cloudflare"}

// IsChallengePage reports whether a captured document is an anti-bot
// interstitial rather than site content.
func IsChallengePage(html string) bool {
	lower := strings.ToLower(html)
	if strings.Contains(lower, "cf-chl") {
		return true
	}
	for _, title := range challengeTitles {
		if strings.Contains(lower, "<title>"+title+"</title>") {
			return true
		}
	}
	return false
}

// causeMessage returns the lower-cased text of the innermost wrapped error
// without URL tokens.
func causeMessage(err error) string {
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(err) {
		err = next
	}
	fields := strings.Fields(strings.ToLower(err.Error()))
	kept := fields[:0]
	for _, f := range fields {
		if strings.Contains(f, "://") {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
