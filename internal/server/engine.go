package server

import (
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/config"
	"github.com/JakeFAU/meeting-crawler/internal/crawl"
	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/fetch"
	collyfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/meeting-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/meeting-crawler/internal/hash/sha256"
	"github.com/JakeFAU/meeting-crawler/internal/headless/detector"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/pipeline"
	"github.com/JakeFAU/meeting-crawler/internal/resolver"
	"github.com/JakeFAU/meeting-crawler/internal/sites"
)

// clock is the wall clock and sleeper shared by every engine.
type clock interface {
	meeting.Clock
	meeting.Sleeper
}

// engine is one browser session and the pipeline driving it. Browsers are
// not safe for concurrent use, so every worker owns an engine.
type engine struct {
	runner  *pipeline.Runner
	browser meeting.Browser
}

func newBrowser(cfg config.Config, pages *collyfetcher.Fetcher, logger *zap.Logger) meeting.Browser {
	if cfg.Crawler.Browser == config.BrowserStatic {
		return collyfetcher.NewBrowser(pages)
	}
	pools := headlessfetcher.Pools{UserAgents: cfg.Crawler.UserAgents}
	return headlessfetcher.NewChromedp(headlessfetcher.Config{
		ExecPath:          cfg.Headless.ExecPath,
		Headful:           cfg.Headless.Headful,
		AllowResources:    cfg.Headless.AllowResources,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		Pools:             pools,
	}, logger)
}

func newEngine(
	cfg config.Config,
	pages *collyfetcher.Fetcher,
	gate meeting.Gate,
	clk clock,
	logger *zap.Logger,
) engine {
	browser := newBrowser(cfg, pages, logger)
	paced := fetch.Pace(browser, gate)
	orchestrator := fetch.NewOrchestrator(
		browser,
		gate,
		clk,
		detector.NewHeuristic(cfg.Crawler.JSBodyThreshold),
		fetch.Config{
			MaxAttempts:     cfg.Crawler.MaxAttempts,
			BackoffUnit:     cfg.Crawler.BackoffUnit(),
			SelectorTimeout: cfg.Crawler.SelectorTimeout(),
			SettleDelay:     cfg.Crawler.SettleDelay(),
		},
		logger,
	)
	coord := extract.NewCoordinator(clk, logger)
	expander := crawl.NewExpander(orchestrator, paced, coord, sha256.New(), clk, crawl.Config{
		MaxPages:       cfg.Crawler.MaxPages,
		MaxDetailPages: cfg.Crawler.MaxDetailPages,
		PageTimeout:    cfg.Crawler.PageTimeout(),
		DetailTimeout:  cfg.Crawler.DetailTimeout(),
	}, logger)

	var (
		modules pipeline.Modules
		session *sites.Session
	)
	if cfg.Crawler.SiteModules {
		modules = sites.NewRegistry()
		session = sites.NewSession(paced, clk, logger)
	}
	runner := pipeline.NewRunner(
		orchestrator,
		coord,
		expander,
		modules,
		session,
		clk,
		pipeline.Config{SeedTimeout: cfg.Crawler.PageTimeout()},
		logger,
	)
	return engine{runner: runner, browser: browser}
}

func newResolver(cfg config.Config, gate meeting.Gate, logger *zap.Logger) *resolver.Resolver {
	timeout := time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgents:    cfg.Crawler.UserAgents,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       timeout,
	})
	var verifier resolver.Verifier
	if cfg.Resolver.YTDLPPath != "" {
		verifier = &resolver.YTDLP{
			Path:    cfg.Resolver.YTDLPPath,
			Timeout: timeout,
			Retries: cfg.Resolver.VerifyRetries,
			Logger:  logger,
		}
	}
	return resolver.New(pages, verifier, gate, resolver.Config{
		Concurrency:   cfg.Resolver.Concurrency,
		PageTimeout:   timeout,
		VerifyTimeout: timeout,
		VerifyRetries: cfg.Resolver.VerifyRetries,
	}, logger)
}
