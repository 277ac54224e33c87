package processing_test

import (
	"testing"
	"time"

	"github.com/MusheghMov/checkx/internal/models"
	"github.com/MusheghMov/checkx/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   world", want: "Hello world"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
		{name: "remove mentions and hashtags", input: "@alice says #breaking vaccines work", want: "says vaccines work"},
		{name: "html entities", input: "salt &amp; pepper", want: "salt pepper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRemoveURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "no urls", input: "Hello world", want: "Hello world"},
		{name: "single url", input: "Check https://example.com for more", want: "Check   for more"},
		{name: "www url", input: "see www.example.org now", want: "see   now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.RemoveURLs(tt.input))
		})
	}
}

func TestTokens(t *testing.T) {
	got := processing.Tokens("The WHO said: 5G-towers, no!", 2)
	require.Equal(t, []string{"the", "who", "said", "5g", "towers", "no"}, got)

	require.Equal(t, []string{"towers"}, processing.Tokens("5G towers", 3))
	require.Empty(t, processing.Tokens("", 1))
}

func TestIsStopword(t *testing.T) {
	require.True(t, processing.IsStopword("the"))
	require.False(t, processing.IsStopword("vaccine"))
}

func TestBuildDocumentID(t *testing.T) {
	id1 := processing.BuildDocumentID("alice", "text", "2024-02-03T04:05:06Z")
	id2 := processing.BuildDocumentID("alice", "text", "2024-02-03T04:05:06Z")
	id3 := processing.BuildDocumentID("bob", "text", "2024-02-03T04:05:06Z")
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestParseTimestamp(t *testing.T) {
	ts := processing.ParseTimestamp("2024-02-03T04:05:06Z")
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), ts)

	legacy := processing.ParseTimestamp("2024-02-03 04:05:06")
	require.Equal(t, 2024, legacy.Year())
	require.Equal(t, 4, legacy.Hour())

	dateOnly := processing.ParseTimestamp("2024-02-03")
	require.Equal(t, 3, dateOnly.Day())

	require.True(t, processing.ParseTimestamp("invalid").IsZero())
	require.True(t, processing.ParseTimestamp("  ").IsZero())
}

func TestPostID(t *testing.T) {
	require.Equal(t, "given", processing.PostID(models.PostRecord{ID: " given ", Content: "x"}))

	post := models.PostRecord{Content: "Some claim", Author: "@a", Timestamp: "2024-01-01T00:00:00Z"}
	derived := processing.PostID(post)
	require.Equal(t, processing.BuildDocumentID("@a", "Some claim", "2024-01-01T00:00:00Z"), derived)
	require.Equal(t, derived, processing.PostID(post))

	first := processing.PostID(models.PostRecord{})
	second := processing.PostID(models.PostRecord{})
	require.NotEmpty(t, first)
	require.NotEqual(t, first, second)
}
