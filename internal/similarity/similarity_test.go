package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAreSimilar(t *testing.T) {
	t.Run("identical names", func(t *testing.T) {
		assert.True(t, AreSimilar("Dark Souls", "Dark Souls"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.True(t, AreSimilar("DARK SOULS", "dark souls"))
	})

	t.Run("near duplicates", func(t *testing.T) {
		assert.True(t, AreSimilar("The Witcher 3: Wild Hunt", "The Witcher 3 Wild Hunt"))
		assert.True(t, AreSimilar("Counter-Strike: Global Offensive", "Counter Strike: Global Offensive"))
	})

	t.Run("different games", func(t *testing.T) {
		assert.False(t, AreSimilar("Dark Souls", "Hollow Knight"))
		assert.False(t, AreSimilar("Portal", "Doom Eternal"))
	})

	t.Run("short sequels stay under the bar", func(t *testing.T) {
		// "doom" vs "doom 2": 8/10 = 0.80
		assert.False(t, AreSimilar("Doom", "Doom 2"))
	})

	t.Run("longer sequels can be flagged", func(t *testing.T) {
		// The pair survives detection and lands in moderation, where
		// ignoring it is a one-click decision.
		// "portal" vs "portal 2": 12/14 = 0.857
		assert.True(t, AreSimilar("Portal", "Portal 2"))
	})

	t.Run("symmetric", func(t *testing.T) {
		pairs := [][2]string{
			{"Dark Souls", "Dark Souls II"},
			{"The Witcher 3: Wild Hunt", "The Witcher 3 Wild Hunt"},
			{"Portal", "Doom Eternal"},
		}
		for _, p := range pairs {
			assert.Equal(t, AreSimilar(p[0], p[1]), AreSimilar(p[1], p[0]),
				"similarity must be symmetric for %q / %q", p[0], p[1])
		}
	})
}
