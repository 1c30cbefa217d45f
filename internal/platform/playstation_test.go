package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseISODurationMinutes(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"PT2H30M", 150},
		{"PT45M", 45},
		{"PT1H", 60},
		{"PT100H", 6000},
		{"PT0M", 0},
		{"PT1H30M15S", 90}, // seconds are dropped
		{"PT30S", 0},
		{"", 0},
		{"PT", 0},
		{"2H30M", 0},
		{"PT2X30M", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseISODurationMinutes(tt.input))
		})
	}
}
