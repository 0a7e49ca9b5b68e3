package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tk := KnownTickers()

	tests := []struct {
		input string
		want  []string
	}{
		{"Compare NVDA and AAPL revenue", []string{"AAPL", "NVDA"}},
		{"What were the margins?", nil},
		{"how did nvda do vs msft, and nvda again", []string{"MSFT", "NVDA"}},
		{"Berkshire BRK-A results", []string{"BRK-A"}},
		{"NVDAX is not a ticker", nil},
		{"Tell me about GOOGL.", []string{"GOOGL"}},
		{"ÉNVDA and NVDAé", nil},
		{"NVDA_2024 or 2NVDA", nil},
		{"(NVDA) über alles", []string{"NVDA"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tk.Detect(tt.input))
		})
	}
}

func TestKnownTickers(t *testing.T) {
	tk := KnownTickers()
	all := tk.All()
	assert.Len(t, all, 67)
	assert.IsNonDecreasing(t, all)
	assert.True(t, tk.Contains("nvda"))
	assert.False(t, tk.Contains("XYZ"))

	all[0] = "mutated"
	assert.NotEqual(t, "mutated", tk.All()[0])
}

func TestNextPrevWrap(t *testing.T) {
	tk := NewTickers([]string{"MSFT", "AAPL", "NVDA"})
	assert.Equal(t, "MSFT", tk.Next("AAPL"))
	assert.Equal(t, "AAPL", tk.Next("NVDA"))
	assert.Equal(t, "NVDA", tk.Prev("AAPL"))
	assert.Equal(t, "AAPL", tk.Next("unknown"))
}
