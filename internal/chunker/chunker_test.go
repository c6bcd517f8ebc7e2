package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyText(t *testing.T) {
	c := New(200, 50)
	assert.Equal(t, []string{""}, c.Split(""))
}

func TestSplit_ShortText(t *testing.T) {
	c := New(200, 50)
	chunks := c.Split("hello world")
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSplit_WindowCount(t *testing.T) {
	c := New(200, 50)
	text := strings.Repeat("a", 1000)

	chunks := c.Split(text)
	require.Len(t, chunks, 7)
	for i, chunk := range chunks[:6] {
		assert.Len(t, chunk, 200, "chunk %d", i)
	}
	assert.Len(t, chunks[6], 100)
}

func TestSplit_Overlap(t *testing.T) {
	c := New(10, 4)
	text := "abcdefghijklmnopqrst"

	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-4:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the last 4 runes of chunk %d", i, i-1)
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	c := New(10, 4)
	text := "the quick brown fox jumps over the lazy dog"

	chunks := c.Split(text)
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) > 4 {
			b.WriteString(string(runes[4:]))
		}
	}
	assert.Equal(t, text, b.String())
}

func TestSplit_MultibyteRunes(t *testing.T) {
	c := New(5, 2)
	text := strings.Repeat("日本語テキスト", 3)

	chunks := c.Split(text)
	for i, chunk := range chunks {
		for _, r := range chunk {
			assert.NotEqual(t, rune(0xFFFD), r, "chunk %d contains a broken rune", i)
		}
		assert.LessOrEqual(t, len([]rune(chunk)), 5)
	}
}

func TestSplit_ZeroOverlap(t *testing.T) {
	c := New(4, 0)
	chunks := c.Split("abcdefgh")
	assert.Equal(t, []string{"abcd", "efgh"}, chunks)
}
