package fetch

import (
	"context"
	"time"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// PacedBrowser routes activations through the shared gate. Site modules and
// crawl navigators drive the browser through it; the Orchestrator waits on
// the gate itself and uses the unwrapped browser.
type PacedBrowser struct {
	meeting.Browser
	gate meeting.Gate
}

// Pace wraps b so Navigate, Click, and Evaluate wait on gate first.
func Pace(b meeting.Browser, gate meeting.Gate) *PacedBrowser {
	return &PacedBrowser{Browser: b, gate: gate}
}

// Navigate waits on the gate and navigates.
func (p *PacedBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	return p.Browser.Navigate(ctx, url, timeout)
}

// Click waits on the gate and clicks.
func (p *PacedBrowser) Click(ctx context.Context, selector string) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	return p.Browser.Click(ctx, selector)
}

// Evaluate waits on the gate and runs script.
func (p *PacedBrowser) Evaluate(ctx context.Context, script string, out any) error {
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	return p.Browser.Evaluate(ctx, script, out)
}
