package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnsupported is returned by browser providers that cannot perform an interaction.
var ErrUnsupported = errors.New("operation not supported by browser provider")

// Browser drives one browsing session. Implementations are not safe for
// concurrent use; a site owns its browser for the duration of its crawl.
type Browser interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Content(ctx context.Context) (string, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, script string, out any) error
	// RecreateIdentity replaces the session fingerprint. Cookies and any
	// in-flight page state are discarded.
	RecreateIdentity(ctx context.Context) error
	Close() error
}

// Gate paces outbound activity.
type Gate interface {
	Wait(ctx context.Context) error
}

// Sleeper pauses the caller, returning early when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Hasher returns a stable digest of page content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator yields unique run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// StatusError reports a document response with an HTTP error status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}
