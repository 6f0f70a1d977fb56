package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// autoScrollJS scrolls to the bottom in 100px steps so lazy sections render.
const autoScrollJS = `() => new Promise((resolve) => {
	let total = 0;
	const timer = setInterval(() => {
		window.scrollBy(0, 100);
		total += 100;
		if (total >= document.body.scrollHeight) {
			clearInterval(timer);
			resolve();
		}
	}, 100);
})`

// BrowserOptions configures the headless browser strategy.
type BrowserOptions struct {
	Bin        string        // Chromium binary; empty lets rod resolve one
	Timeout    time.Duration // whole-page budget, default 30s
	IdleWait   time.Duration // network-idle wait, default 5s
	AutoScroll bool
}

// BrowserScraper renders pages in headless Chromium. The browser is launched
// on first use and reused until Close.
type BrowserScraper struct {
	opts BrowserOptions

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserScraper creates a BrowserScraper.
func NewBrowserScraper(opts BrowserOptions) *BrowserScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = 5 * time.Second
	}
	return &BrowserScraper{opts: opts}
}

func (b *BrowserScraper) Name() string           { return "browser" }
func (b *BrowserScraper) Supports(_ string) bool { return true }

// Scrape navigates to targetURL, waits for the network to settle, optionally
// scrolls, and returns the rendered HTML.
func (b *BrowserScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx).Timeout(b.opts.Timeout)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1920, Height: 1080, DeviceScaleFactor: 1,
	}); err != nil {
		return nil, eris.Wrap(err, "browser: set viewport")
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      BrowserUserAgent,
		AcceptLanguage: "ru-RU,ru;q=0.9",
	}); err != nil {
		return nil, eris.Wrap(err, "browser: set user agent")
	}

	if err := p.Navigate(targetURL); err != nil {
		return nil, eris.Wrap(err, "browser: navigate")
	}
	if err := p.WaitLoad(); err != nil {
		return nil, eris.Wrap(err, "browser: wait load")
	}
	if err := p.WaitIdle(b.opts.IdleWait); err != nil {
		zap.L().Debug("browser: page never went idle", zap.String("url", targetURL), zap.Error(err))
	}

	if b.opts.AutoScroll {
		if _, err := p.Eval(autoScrollJS); err != nil {
			zap.L().Debug("browser: auto-scroll failed", zap.String("url", targetURL), zap.Error(err))
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, eris.Wrap(err, "browser: read html")
	}

	return &Result{
		URL:        targetURL,
		HTML:       html,
		StatusCode: 200,
		Source:     b.Name(),
	}, nil
}

func (b *BrowserScraper) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("window-size", "1920,1080")
	if b.opts.Bin != "" {
		l = l.Bin(b.opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "browser: connect")
	}

	zap.L().Info("browser: launched", zap.String("control_url", controlURL))
	b.launcher = l
	b.browser = browser
	return browser, nil
}

// Close shuts down the browser if it was launched.
func (b *BrowserScraper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Kill()
	b.browser = nil
	b.launcher = nil
	return eris.Wrap(err, "browser: close")
}
