package fingerprint

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsReproducible(t *testing.T) {
	a := NewGenerator(rand.New(rand.NewSource(42)))
	b := NewGenerator(rand.New(rand.NewSource(42)))

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestGenerateConsistentSignals(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(7)))

	for i := 0; i < 100; i++ {
		fp := g.Generate()

		require.NotEmpty(t, fp.UserAgent)
		assert.Greater(t, fp.ViewportWidth, 0)
		assert.Greater(t, fp.ViewportHeight, 0)
		assert.NotEmpty(t, fp.Locale)
		assert.NotEmpty(t, fp.Timezone)
		assert.True(t, fp.WebGL)
		assert.True(t, fp.Canvas)

		// The platform string must agree with the user agent's OS.
		switch fp.Platform {
		case "Win32":
			assert.Contains(t, fp.UserAgent, "Windows")
		case "MacIntel":
			assert.Contains(t, fp.UserAgent, "Macintosh")
		case "Linux x86_64":
			assert.Contains(t, fp.UserAgent, "Linux")
		default:
			t.Fatalf("unexpected platform %q", fp.Platform)
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(1)))

	agents := make(map[string]bool)
	for i := 0; i < 50; i++ {
		agents[g.Generate().UserAgent] = true
	}
	assert.Greater(t, len(agents), 1, "successive fingerprints should differ")
}

func TestWithUserAgentsConstrainsPool(t *testing.T) {
	custom := []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0",
	}
	g := NewGenerator(rand.New(rand.NewSource(3))).WithUserAgents(custom)

	for i := 0; i < 50; i++ {
		fp := g.Generate()
		assert.Contains(t, custom, fp.UserAgent)

		if strings.Contains(fp.UserAgent, "Macintosh") {
			assert.Equal(t, "MacIntel", fp.Platform)
		} else {
			assert.Equal(t, "Linux x86_64", fp.Platform)
		}
	}
}

func TestWithUserAgentsEmptyKeepsBuiltins(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(4))).WithUserAgents(nil)
	fp := g.Generate()
	assert.NotEmpty(t, fp.UserAgent)
}

func TestDefault(t *testing.T) {
	fp := Default()
	assert.Equal(t, "Win32", fp.Platform)
	assert.True(t, strings.Contains(fp.UserAgent, "Windows"))
	assert.Equal(t, 1920, fp.ViewportWidth)
	assert.Equal(t, 1080, fp.ViewportHeight)

	// Stable across calls.
	assert.Equal(t, fp, Default())
}
