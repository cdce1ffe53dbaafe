package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/meeting-crawler/internal/fetch/fetchtest"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

const pageURL = "https://example.gov/meetings"

type stubDetector struct {
	heavy    bool
	selector string
}

func (d stubDetector) JSHeavy(string, string) bool { return d.heavy }
func (d stubDetector) WaitSelector(string) string  { return d.selector }

func newTestOrchestrator(b *fetchtest.Browser, det Detector) (*Orchestrator, *fetchtest.Gate, *fetchtest.Sleeper) {
	gate := &fetchtest.Gate{}
	sleeper := &fetchtest.Sleeper{}
	return NewOrchestrator(b, gate, sleeper, det, Config{}, nil), gate, sleeper
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>ok</html>"})
	o, gate, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, 0)
	require.True(t, res.Success)
	assert.Equal(t, "<html>ok</html>", res.HTML)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, KindNone, res.LastKind)
	assert.Equal(t, 1, gate.Count)
	assert.Empty(t, sleeper.Delays)
}

func TestFetch_TimeoutsExhaustWithBackoff(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(nil)
	b.NavErrs = []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}
	o, gate, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, KindTimeout, res.LastKind)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays)
	assert.Equal(t, 3, gate.Count)
	assert.Zero(t, b.Rotations)
}

func TestFetch_BotDetectionRotatesIdentity(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>ok</html>"})
	b.NavErrs = []error{errors.New("Access Denied"), errors.New("captcha challenge")}
	o, _, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, b.Rotations)
	assert.Empty(t, sleeper.Delays)
}

func TestFetch_BotDetectionOnEveryAttempt(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(nil)
	b.NavErrs = []error{errors.New("blocked"), errors.New("blocked"), errors.New("blocked")}
	o, _, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, b.Rotations)
	assert.Empty(t, sleeper.Delays)
	assert.Equal(t, KindBotDetection, res.LastKind)
}

func TestFetch_ChallengeContentRotates(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<title>Just a moment...</title>"})
	o, _, _ := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, KindChallenge, res.LastKind)
	assert.Equal(t, 2, b.Rotations)
}

func TestFetch_OtherErrorIsTerminal(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(nil)
	o, _, sleeper := newTestOrchestrator(b, nil)

	// Unknown URL yields a 404 status error.
	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, KindOther, res.LastKind)
	assert.Empty(t, sleeper.Delays)
}

func TestFetch_RateLimitedIsTerminal(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(nil)
	b.NavErrs = []error{&meeting.StatusError{URL: pageURL, Code: 429}}
	o, _, _ := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, KindRateLimited, res.LastKind)
}

func TestFetch_NetworkThenSuccess(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>ok</html>"})
	b.NavErrs = []error{errors.New("net::ERR_CONNECTION_REFUSED")}
	o, _, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays)
}

func TestFetch_RenderWaitWithSelector(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>shell</html>"})
	b.Rendered[pageURL] = "<html>rows</html>"
	o, _, sleeper := newTestOrchestrator(b, stubDetector{heavy: true, selector: "table tr"})

	res := o.Fetch(context.Background(), pageURL, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, "<html>rows</html>", res.HTML)
	assert.Equal(t, []string{"table tr"}, b.Waits)
	assert.Empty(t, sleeper.Delays)
}

func TestFetch_RenderWaitSettleDelay(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>shell</html>"})
	o, _, sleeper := newTestOrchestrator(b, stubDetector{heavy: true})

	res := o.Fetch(context.Background(), pageURL, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, sleeper.Delays)
	assert.Empty(t, b.Waits)
}

func TestFetch_GateErrorStops(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "<html>ok</html>"})
	gate := &fetchtest.Gate{Err: context.Canceled}
	o := NewOrchestrator(b, gate, &fetchtest.Sleeper{}, nil, Config{}, nil)

	res := o.Fetch(context.Background(), pageURL, time.Second)
	assert.False(t, res.Success)
	assert.Empty(t, b.Visits)
}

func TestPacedBrowser(t *testing.T) {
	t.Parallel()

	b := fetchtest.NewBrowser(map[string]string{pageURL: "x"})
	b.ClickHTML["button"] = "clicked"
	gate := &fetchtest.Gate{}
	p := Pace(b, gate)

	require.NoError(t, p.Navigate(context.Background(), pageURL, time.Second))
	require.NoError(t, p.Click(context.Background(), "button"))
	_ = p.Evaluate(context.Background(), "1", nil)
	assert.Equal(t, 3, gate.Count)

	html, err := p.Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clicked", html)
}

func TestFetch_NetworkErrorOnNumericPathIsRetried(t *testing.T) {
	t.Parallel()

	const numericURL = "https://city.gov/DocumentCenter/View/15021"
	reset := fmt.Errorf("navigate %s: %w", numericURL, errors.New("page load error net::ERR_CONNECTION_RESET"))
	b := fetchtest.NewBrowser(map[string]string{numericURL: "<html>ok</html>"})
	b.NavErrs = []error{reset, reset}
	o, _, sleeper := newTestOrchestrator(b, nil)

	res := o.Fetch(context.Background(), numericURL, time.Second)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays)
	assert.Zero(t, b.Rotations)
}
