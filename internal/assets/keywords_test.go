package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "drops stop words and short tokens",
			text: "The sun was setting over the mountains and the lake",
			want: "sun setting mountains lake",
		},
		{
			name: "caps token count",
			text: "ancient forest hidden waterfall crystal cavern golden temple",
			want: "ancient forest hidden waterfall crystal",
		},
		{
			name: "strips punctuation and case",
			text: "Storm! Clouds, gathering... QUICKLY.",
			want: "storm clouds gathering quickly",
		},
		{
			name: "falls back to raw tokens when all filtered",
			text: "the and was",
			want: "the and was",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuery(tt.text))
		})
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	// Whitespace and case differences collapse to the same key.
	a := CacheKey("Sunset  Mountains", "image_portrait")
	b := CacheKey("sunset mountains", "image_portrait")
	assert.Equal(t, a, b)

	// Different provider class gives a different key.
	c := CacheKey("sunset mountains", "audio")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
