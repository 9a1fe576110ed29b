package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_AllKeys(t *testing.T) {
	vars := Vars{
		BrandName:   "Acme Plumbing",
		ServiceType: "plumbing",
		Location:    "Austin, TX",
		Competitor:  "Budget Pipes",
	}

	for _, key := range DefaultKeys() {
		t.Run(key, func(t *testing.T) {
			text, err := Render(key, vars)
			require.NoError(t, err)
			assert.NotEmpty(t, text)
			assert.NotContains(t, text, "{brand}")
			assert.NotContains(t, text, "{service_type}")
			assert.NotContains(t, text, "{location}")
			assert.NotContains(t, text, "{competitor}")
		})
	}
}

func TestRender_Substitution(t *testing.T) {
	vars := Vars{
		BrandName:   "Acme Plumbing",
		ServiceType: "plumbing",
		Location:    "Austin, TX",
		Competitor:  "Budget Pipes",
	}

	text, err := Render(KeyComparison, vars)
	require.NoError(t, err)
	assert.Contains(t, text, "Acme Plumbing")
	assert.Contains(t, text, "Budget Pipes")
	assert.Contains(t, text, "plumbing")

	text, err = Render(KeyBestInCategory, vars)
	require.NoError(t, err)
	assert.Contains(t, text, "plumbing")
	assert.Contains(t, text, "Austin, TX")
}

func TestRender_Fallbacks(t *testing.T) {
	vars := Vars{BrandName: "Acme"}

	text, err := Render(KeyBestInCategory, vars)
	require.NoError(t, err)
	assert.Contains(t, text, "services")
	assert.Contains(t, text, "the United States")

	// With no competitor the brand stands in for it.
	text, err = Render(KeyAlternatives, vars)
	require.NoError(t, err)
	assert.Contains(t, text, "Acme")
}

func TestRender_UnknownKey(t *testing.T) {
	_, err := Render("press_coverage", Vars{BrandName: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template key")
}

func TestDefaultKeys_StableOrder(t *testing.T) {
	want := []string{
		KeyBestInCategory,
		KeyRecommendation,
		KeyComparison,
		KeyReviews,
		KeyAlternatives,
		KeyLocalSearch,
	}
	assert.Equal(t, want, DefaultKeys())

	// Callers may mutate the returned slice without corrupting the
	// package order.
	keys := DefaultKeys()
	keys[0] = "mutated"
	assert.Equal(t, want, DefaultKeys())
}

func TestValidKey(t *testing.T) {
	for _, key := range DefaultKeys() {
		assert.True(t, ValidKey(key), key)
	}
	assert.False(t, ValidKey("press_coverage"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey(strings.ToUpper(KeyReviews)))
}
