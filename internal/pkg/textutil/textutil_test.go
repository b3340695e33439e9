package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "   ", want: []string{}},
		{name: "stop words removed", input: "What languages are used?", want: []string{"languages"}},
		{name: "punctuation and case", input: "Go, GO! Rust-lang", want: []string{"go", "rust", "lang"}},
		{name: "single ascii letters dropped", input: "C a x go", want: []string{"go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	terms := Tokenize("typescript python rust")
	require.InDelta(t, 2.0/3.0, TokenOverlap(terms, "Proficient in TypeScript and Python."), 1e-9)
	require.Equal(t, 0.0, TokenOverlap(nil, "anything"))
	require.Equal(t, 0.0, TokenOverlap(terms, ""))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "héll", Truncate("héllo", 4))
	require.Equal(t, "hi", Truncate("hi", 10))
	require.Equal(t, "", Truncate("hi", 0))
}

func TestMarkdownToText(t *testing.T) {
	md := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n- one\n- two\n"
	out := MarkdownToText(md)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "Some bold text with a link.")
	require.Contains(t, out, "one")
	require.NotContains(t, out, "**")
	require.NotContains(t, out, "https://example.com")
	require.Equal(t, "", MarkdownToText("  "))
}
