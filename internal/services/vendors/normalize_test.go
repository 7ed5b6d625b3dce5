package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips inc suffix", "Acme Inc.", "acme"},
		{"strips incorporated", "ACME INCORPORATED", "acme"},
		{"strips ltd", "Globex Ltd", "globex"},
		{"strips multiple suffixes", "Initech Co Ltd.", "initech"},
		{"strips punctuation", "O'Brien & Sons, LLC", "o brien sons"},
		{"collapses whitespace", "  Umbrella    Corp  ", "umbrella"},
		{"empty input", "", ""},
		{"suffix only in word not stripped", "Copernicus Labs", "copernicus labs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("same normalized name is exact", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("Acme Inc.", "ACME INCORPORATED"))
		assert.Equal(t, 1.0, Similarity("Globex Ltd", "globex limited"))
	})

	t.Run("close names score above partial cutoff", func(t *testing.T) {
		assert.GreaterOrEqual(t, Similarity("Acme Industries", "Acme Industry"), 0.7)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		assert.Less(t, Similarity("Acme Corp", "Zenith Pharmaceuticals"), 0.5)
	})

	t.Run("empty names score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("", "Acme"))
		assert.Equal(t, 0.0, Similarity("Acme", ""))
	})

	t.Run("word reordering stays high via token overlap", func(t *testing.T) {
		assert.GreaterOrEqual(t, Similarity("Northwind Traders", "Traders Northwind"), 0.9)
	})
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("widget", "widget"))
	assert.Greater(t, Ratio("widget assembly", "widget assmbly"), 0.9)
	assert.Equal(t, 0.0, Ratio("", "widget"))
}

func TestCurrencySymbol(t *testing.T) {
	assert.Equal(t, "$", CurrencySymbol("USD"))
	assert.Equal(t, "₹", CurrencySymbol("INR"))
	assert.Equal(t, "$", CurrencySymbol(""))
	assert.Equal(t, "CHF", CurrencySymbol("CHF"))
}
