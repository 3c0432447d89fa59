package vitalsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookURL(t *testing.T) {
	assert.Equal(t, "vitalsource://book/bookID/BOOK-1", BookURL("BOOK-1", ""))
	assert.Equal(t, "vitalsource://book/bookID/BOOK-1/cfi/6/8[;vnd.vst.idref=ch02]",
		BookURL("BOOK-1", "/6/8[;vnd.vst.idref=ch02]"))
}

func TestParseRoundTrip(t *testing.T) {
	book, cfi, ok := Parse(BookURL("BOOK-1", "/6/8"))
	assert.True(t, ok)
	assert.Equal(t, "BOOK-1", book)
	assert.Equal(t, "/6/8", cfi)

	book, cfi, ok = Parse(BookURL("BOOK-2", ""))
	assert.True(t, ok)
	assert.Equal(t, "BOOK-2", book)
	assert.Empty(t, cfi)
}

func TestParseRejectsOtherSchemes(t *testing.T) {
	for _, raw := range []string{
		"https://example.com/doc.pdf",
		"canvas://file/42",
		"vitalsource://shelf/BOOK-1",
		"vitalsource://book/other/BOOK-1",
	} {
		_, _, ok := Parse(raw)
		assert.False(t, ok, "input %q", raw)
	}
}
