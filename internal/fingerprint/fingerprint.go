package fingerprint

import (
	"math/rand"
	"strings"

	"github.com/maltedev/product-scraper/internal/models"
)

// profile bundles signals that must stay internally consistent: a Windows
// user agent never reports a Mac platform string, and viewports stay within
// the range plausible for the device class.
type profile struct {
	userAgents []string
	platform   string
	viewports  [][2]int
	locales    []string
	timezones  []string
}

var profiles = []profile{
	{
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		},
		platform:  "Win32",
		viewports: [][2]int{{1920, 1080}, {1536, 864}, {1366, 768}, {2560, 1440}},
		locales:   []string{"en-US", "en-GB"},
		timezones: []string{"America/New_York", "America/Chicago", "Europe/London"},
	},
	{
		userAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		},
		platform:  "MacIntel",
		viewports: [][2]int{{1440, 900}, {1680, 1050}, {2560, 1600}},
		locales:   []string{"en-US"},
		timezones: []string{"America/Los_Angeles", "America/New_York"},
	},
	{
		userAgents: []string{
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		platform:  "Linux x86_64",
		viewports: [][2]int{{1920, 1080}, {1600, 900}},
		locales:   []string{"en-US"},
		timezones: []string{"Europe/Berlin", "America/New_York"},
	},
}

// Generator produces randomized browser fingerprints. The randomness source
// is injected so sessions are reproducible under test.
type Generator struct {
	rng    *rand.Rand
	agents []string
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// WithUserAgents constrains generation to the given user agents. The platform
// and viewport signals are derived from each agent so the pair stays
// consistent. Empty input leaves the built-in profiles in place.
func (g *Generator) WithUserAgents(agents []string) *Generator {
	g.agents = agents
	return g
}

// Generate returns a fresh fingerprint with internally consistent signals.
// It never fails.
func (g *Generator) Generate() models.BrowserFingerprint {
	if len(g.agents) > 0 {
		ua := g.agents[g.rng.Intn(len(g.agents))]
		return g.fromProfile(profileFor(ua), ua)
	}
	p := profiles[g.rng.Intn(len(profiles))]
	return g.fromProfile(p, p.userAgents[g.rng.Intn(len(p.userAgents))])
}

func profileFor(userAgent string) profile {
	for _, p := range profiles[1:] {
		if strings.Contains(userAgent, "Macintosh") && p.platform == "MacIntel" {
			return p
		}
		if strings.Contains(userAgent, "X11; Linux") && p.platform == "Linux x86_64" {
			return p
		}
	}
	return profiles[0]
}

func (g *Generator) fromProfile(p profile, userAgent string) models.BrowserFingerprint {
	vp := p.viewports[g.rng.Intn(len(p.viewports))]

	return models.BrowserFingerprint{
		UserAgent:      userAgent,
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
		Locale:         p.locales[g.rng.Intn(len(p.locales))],
		Timezone:       p.timezones[g.rng.Intn(len(p.timezones))],
		Platform:       p.platform,
		WebGL:          true,
		Canvas:         true,
	}
}

// Default returns the fixed fingerprint used when randomization is disabled.
func Default() models.BrowserFingerprint {
	p := profiles[0]
	return models.BrowserFingerprint{
		UserAgent:      p.userAgents[0],
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		Timezone:       "America/New_York",
		Platform:       p.platform,
		WebGL:          true,
		Canvas:         true,
	}
}
