package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncateDetailTextKeepsShortTextsIntact(t *testing.T) {
	text, cut := TruncateDetailText("assertion failed: expected 4, got 5")
	require.False(t, cut)
	require.Equal(t, "assertion failed: expected 4, got 5", text)
}

func TestTruncateDetailTextCutsAtTheInlineLimit(t *testing.T) {
	detail := strings.Repeat("a", DetailTextMaxLength+100)
	text, cut := TruncateDetailText(detail)
	require.True(t, cut)
	require.Len(t, text, DetailTextMaxLength)
}

func TestTruncateDetailTextNeverSplitsARune(t *testing.T) {
	// Three-byte runes put the byte limit in the middle of a character.
	detail := strings.Repeat("世", 2*DetailTextMaxLength/3)
	text, cut := TruncateDetailText(detail)
	require.True(t, cut)
	require.True(t, utf8.ValidString(text))
	require.LessOrEqual(t, len(text), DetailTextMaxLength)
	require.Equal(t, 0, len(text)%3)
}
