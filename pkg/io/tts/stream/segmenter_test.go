package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(maxChars, clauseMin int) (*Segmenter, *[]Phrase) {
	var out []Phrase
	s := NewSegmenter(maxChars, clauseMin, func(p Phrase) error {
		out = append(out, p)
		return nil
	})
	return s, &out
}

func TestSentenceBoundaries(t *testing.T) {
	s, out := collect(0, 0)
	for _, d := range []string{"Hel", "lo there", ". How are", " you? I am", " fine."} {
		require.NoError(t, s.Push(d))
	}
	n, err := s.Finish()
	require.NoError(t, err)

	require.Equal(t, 3, n)
	require.Len(t, *out, 3)
	assert.Equal(t, Phrase{Index: 0, Text: "Hello there."}, (*out)[0])
	assert.Equal(t, Phrase{Index: 1, Text: "How are you?"}, (*out)[1])
	assert.Equal(t, Phrase{Index: 2, Text: "I am fine.", IsFinal: true}, (*out)[2])
}

func TestCompletedPhraseHeldUntilMoreText(t *testing.T) {
	s, out := collect(0, 0)
	require.NoError(t, s.Push("Hello there. "))
	assert.Empty(t, *out, "last phrase must wait so it can be flagged final")

	require.NoError(t, s.Push("  "))
	assert.Empty(t, *out)

	require.NoError(t, s.Push("Bye"))
	require.Len(t, *out, 1)
	assert.False(t, (*out)[0].IsFinal)

	_, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, *out, 2)
	assert.Equal(t, "Bye", (*out)[1].Text)
	assert.True(t, (*out)[1].IsFinal)
}

func TestSinglePhraseIsFinal(t *testing.T) {
	s, out := collect(0, 0)
	require.NoError(t, s.Push("Hi!"))
	n, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []Phrase{{Index: 0, Text: "Hi!", IsFinal: true}}, *out)
}

func TestClauseMarksNeedMinimumLength(t *testing.T) {
	s, out := collect(0, 20)
	require.NoError(t, s.Push("Well, "))
	require.NoError(t, s.Push("this sentence is long enough, so it splits here"))
	_, err := s.Finish()
	require.NoError(t, err)

	require.Len(t, *out, 2)
	assert.Equal(t, "Well, this sentence is long enough,", (*out)[0].Text)
	assert.Equal(t, "so it splits here", (*out)[1].Text)
}

func TestNewlineCuts(t *testing.T) {
	s, out := collect(0, 0)
	require.NoError(t, s.Push("- first item\n- second item"))
	_, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, *out, 2)
	assert.Equal(t, "- first item", (*out)[0].Text)
}

func TestMaxCharsSplitsAtWhitespace(t *testing.T) {
	s, out := collect(20, 0)
	require.NoError(t, s.Push(strings.Repeat("word ", 10)))
	_, err := s.Finish()
	require.NoError(t, err)

	require.NotEmpty(t, *out)
	for i, p := range *out {
		assert.Equal(t, i, p.Index)
		assert.LessOrEqual(t, len(p.Text), 20)
		assert.False(t, strings.HasSuffix(p.Text, "wor"), "must not split inside a word")
	}
	assert.True(t, (*out)[len(*out)-1].IsFinal)
}

func TestDecimalsDoNotCut(t *testing.T) {
	s, out := collect(0, 0)
	require.NoError(t, s.Push("It costs 3.50 dollars."))
	_, err := s.Finish()
	require.NoError(t, err)
	require.Len(t, *out, 1)
}

func TestEmptyStreamProducesNothing(t *testing.T) {
	s, out := collect(0, 0)
	require.NoError(t, s.Push("   "))
	n, err := s.Finish()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, *out)
}
