package headless

import "strings"

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int64
	Height int64
}

// Identity is the fingerprint presented by one browser session.
type Identity struct {
	UserAgent string
	Viewport  Viewport
	Locale    string
	Timezone  string
}

// Pools holds the values identities are drawn from.
type Pools struct {
	UserAgents []string
	Viewports  []Viewport
	Locales    []string
	Timezones  []string
}

// DefaultPools returns the built-in desktop fingerprints.
func DefaultPools() Pools {
	return Pools{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
		},
		Viewports: []Viewport{
			{Width: 1920, Height: 1080},
			{Width: 1536, Height: 864},
			{Width: 1440, Height: 900},
			{Width: 1366, Height: 768},
		},
		Locales:   []string{"en-US", "en-GB", "en-CA"},
		Timezones: []string{"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"},
	}
}

// withDefaults fills every empty pool from DefaultPools.
func (p Pools) withDefaults() Pools {
	d := DefaultPools()
	if len(p.UserAgents) == 0 {
		p.UserAgents = d.UserAgents
	}
	if len(p.Viewports) == 0 {
		p.Viewports = d.Viewports
	}
	if len(p.Locales) == 0 {
		p.Locales = d.Locales
	}
	if len(p.Timezones) == 0 {
		p.Timezones = d.Timezones
	}
	return p
}

// Pick returns the n-th identity. Consecutive values of n differ in every
// attribute whose pool has more than one entry.
func (p Pools) Pick(n int) Identity {
	p = p.withDefaults()
	if n < 0 {
		n = -n
	}
	return Identity{
		UserAgent: p.UserAgents[n%len(p.UserAgents)],
		Viewport:  p.Viewports[n%len(p.Viewports)],
		Locale:    p.Locales[n%len(p.Locales)],
		Timezone:  p.Timezones[n%len(p.Timezones)],
	}
}

// acceptLanguage renders the Accept-Language header for a locale.
func acceptLanguage(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	if lang == locale {
		return locale
	}
	return locale + "," + lang + ";q=0.9"
}

// icuLocale converts "en-US" to "en_US".
func icuLocale(locale string) string {
	return strings.ReplaceAll(locale, "-", "_")
}

// noiseScript runs before every document. It hides the automation flag and
// perturbs canvas and WebGL readouts.
const noiseScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  const shift = Math.floor(Math.random() * 10) - 5;
  const toDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function(...args) {
    const ctx = this.getContext('2d');
    if (ctx && this.width > 0 && this.height > 0) {
      const img = ctx.getImageData(0, 0, 1, 1);
      img.data[0] = (img.data[0] + shift) & 255;
      ctx.putImageData(img, 0, 0);
    }
    return toDataURL.apply(this, args);
  };
  const getParameter = WebGLRenderingContext.prototype.getParameter;
  WebGLRenderingContext.prototype.getParameter = function(param) {
    if (param === 37445) return 'Intel Inc.';
    if (param === 37446) return 'Intel Iris OpenGL Engine';
    return getParameter.call(this, param);
  };
})();`
