package templates_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/templates"
)

func TestLoadNormalizesLocale(t *testing.T) {
	tests := map[string]string{
		"":            "pt",
		"pt_BR.UTF-8": "pt",
		"en-US":       "en",
		"C":           "pt",
		"fr":          "pt",
	}
	for in, want := range tests {
		b, err := templates.Load(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, b.Lang(), in)
	}
}

func TestRender(t *testing.T) {
	b, err := templates.Load("en")
	require.NoError(t, err)

	out, err := b.Render("reason.missing_argument", map[string]any{"Argument": "name", "Capability": "start_vm"})
	require.NoError(t, err)
	assert.Equal(t, `I need a value for "name" to run start_vm.`, out)

	_, err = b.Render("nope", nil)
	require.Error(t, err)
	assert.Equal(t, "fallback", templates.RenderOr(b, "nope", nil, "fallback"))
	assert.Equal(t, "fallback", templates.RenderOr(nil, "nope", nil, "fallback"))
}

func TestBundlesHaveSameKeys(t *testing.T) {
	keys := func(path string) []string {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var m map[string]string
		require.NoError(t, json.Unmarshal(raw, &m))
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	assert.ElementsMatch(t, keys("data/pt.json"), keys("data/en.json"))
}
