package resolver

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalStore(t *testing.T) {
	assert.Equal(t, "xbox", CanonicalStore("xbox-store"))
	assert.Equal(t, "xbox", CanonicalStore("xbox360"))
	assert.Equal(t, "playstation", CanonicalStore("playstation-store"))
	assert.Equal(t, "playstation", CanonicalStore("ps-store"))
	assert.Equal(t, "gog", CanonicalStore("gog-store"))
	assert.Equal(t, "steam", CanonicalStore("steam"))
	assert.Equal(t, "itch", CanonicalStore("itch"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "half-life-2", Slugify("half-life 2"))
	assert.Equal(t, "assassin-s-creed", Slugify("assassin's creed"))
	assert.Equal(t, "doom-eternal", Slugify("  DOOM Eternal  "))
	assert.Equal(t, "", Slugify("™®"))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		store    string
		raw      string
		expected string
	}{
		{
			name:     "lowercases and trims",
			store:    "steam",
			raw:      "  Half-Life 2  ",
			expected: "half-life 2",
		},
		{
			name:     "folds unicode apostrophes",
			store:    "steam",
			raw:      "Assassin’s Creed",
			expected: "assassin's creed",
		},
		{
			name:     "strips trademark glyphs",
			store:    "steam",
			raw:      "DOOM® Eternal™",
			expected: "doom eternal",
		},
		{
			name:     "strips sup tags",
			store:    "xbox-store",
			raw:      "Game<sup>beta</sup> Title",
			expected: "game title",
		},
		{
			name:     "collapses whitespace",
			store:    "steam",
			raw:      "Dark   Souls\t III",
			expected: "dark souls iii",
		},
		{
			name:     "strips steam demo suffix",
			store:    "steam",
			raw:      "Cyberpunk 2077 Demo",
			expected: "cyberpunk 2077",
		},
		{
			name:     "steam suffix ignored for other stores",
			store:    "gog",
			raw:      "Cyberpunk 2077 Demo",
			expected: "cyberpunk 2077 demo",
		},
		{
			name:     "strips xbox platform decoration via alias",
			store:    "xbox-store",
			raw:      "Halo Infinite (Xbox Series X|S)",
			expected: "halo infinite",
		},
		{
			name:     "strips playstation decoration",
			store:    "playstation-store",
			raw:      "God of War (PS5)",
			expected: "god of war",
		},
		{
			name:     "strips edition suffix regardless of store",
			store:    "gog",
			raw:      "The Witcher 3 Standard Edition",
			expected: "the witcher 3",
		},
		{
			name:     "strips stacked suffixes",
			store:    "playstation-store",
			raw:      "Horizon Standard Edition (PS4)",
			expected: "horizon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.store, tt.raw))
		})
	}
}

func TestNormalizeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	stores := gen.OneConstOf("steam", "xbox-store", "playstation-store", "gog", "unknown")

	properties.Property("idempotent", prop.ForAll(
		func(store, name string) bool {
			once := Normalize(store, name)
			return Normalize(store, once) == once
		},
		stores,
		gen.AnyString(),
	))

	properties.Property("never produces surrounding whitespace", prop.ForAll(
		func(store, name string) bool {
			out := Normalize(store, name)
			return out == "" || (out[0] != ' ' && out[len(out)-1] != ' ')
		},
		stores,
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
