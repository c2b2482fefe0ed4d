package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileFingerprint(t *testing.T) {
	t.Parallel()

	content := []byte("hello world")

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t,
			FileFingerprint(content, "a.txt", 11),
			FileFingerprint(content, "a.txt", 11),
		)
	})

	t.Run("name participates", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t,
			FileFingerprint(content, "a.txt", 11),
			FileFingerprint(content, "b.txt", 11),
		)
	})

	t.Run("size participates", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t,
			FileFingerprint(content, "a.txt", 11),
			FileFingerprint(content, "a.txt", 12),
		)
	})
}

func TestTextFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("whitespace insensitive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t,
			TextFingerprint("the  quick\n\tbrown fox"),
			TextFingerprint(" the quick brown fox "),
		)
	})

	t.Run("content sensitive", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, TextFingerprint("alpha"), TextFingerprint("beta"))
	})

	t.Run("independent from file namespace", func(t *testing.T) {
		t.Parallel()
		text := "same bytes"
		assert.NotEqual(t,
			TextFingerprint(text),
			FileFingerprint([]byte(text), "same bytes", int64(len(text))),
		)
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", NormalizeWhitespace("  a\t b \n c "))
	assert.Equal(t, "", NormalizeWhitespace("   \n\t "))
}
