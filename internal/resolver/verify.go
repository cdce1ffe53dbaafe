package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/colly"
)

func (r *Resolver) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.VerifyRetries)), ctx)
}

// verifyDocument probes rawURL with HEAD. Only a 200 counts as reachable,
// but a host that never answers is given the benefit of the doubt.
func (r *Resolver) verifyDocument(ctx context.Context, rawURL string) bool {
	if r.pages == nil {
		return true
	}
	var code int
	err := backoff.Retry(func() error {
		c, err := r.pages.Head(ctx, collyfetcher.Request{URL: rawURL, Timeout: r.cfg.VerifyTimeout})
		if err != nil {
			return err
		}
		code = c
		return nil
	}, r.retryPolicy(ctx))
	if err != nil {
		r.logger.Debug("Document probe failed, accepting URL", zap.String("url", rawURL), zap.Error(err))
		return true
	}
	return code == http.StatusOK
}

var (
	refererRequired  = []string{"champds.com", "viebit", "civicclerk.com"}
	acceptedFailures = []string{"private video", "requires authentication"}
	retryableFailure = []string{"unable to download", "http error"}
	errYTDLPRetry    = errors.New("yt-dlp reported a retryable failure")
)

// YTDLP verifies media URLs with `yt-dlp --simulate`.
type YTDLP struct {
	Path          string
	Timeout       time.Duration
	Retries       int
	RetryInterval time.Duration
	Logger        *zap.Logger
}

// Verify implements Verifier.
func (y *YTDLP) Verify(ctx context.Context, mediaURL, referer string) bool {
	logger := y.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := y.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	interval := y.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(y.Retries, 0))), ctx)

	ok := false
	err := backoff.Retry(func() error {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var stderr strings.Builder
		cmd := exec.CommandContext(runCtx, y.Path, ytdlpArgs(mediaURL, referer)...)
		cmd.Stderr = &stderr
		runErr := cmd.Run()
		if runErr == nil {
			ok = true
			return nil
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			if runCtx.Err() != nil {
				return errYTDLPRetry
			}
			return backoff.Permanent(runErr)
		}
		msg := strings.ToLower(stderr.String())
		switch {
		case containsAny(msg, acceptedFailures):
			ok = true
			return nil
		case containsAny(msg, retryableFailure):
			return errYTDLPRetry
		default:
			return backoff.Permanent(errors.New(strings.TrimSpace(msg)))
		}
	}, policy)
	if err != nil {
		logger.Debug("yt-dlp rejected URL", zap.String("url", mediaURL), zap.Error(err))
	}
	return ok
}

func ytdlpArgs(mediaURL, referer string) []string {
	args := []string{"--simulate", "--no-warnings", "--quiet", "--socket-timeout", "15"}
	if referer != "" && containsAny(mediaURL, refererRequired) {
		if origin := originOf(referer); origin != "" {
			args = append(args, "--referer", origin)
		}
	}
	return append(args, mediaURL)
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
