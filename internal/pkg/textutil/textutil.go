package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {}, "you": {},
	"your": {}, "can": {}, "tell": {}, "about": {}, "any": {}, "used": {},
}

// Normalize lowercases input and replaces every rune that is not a letter or
// digit with a single space.
func Normalize(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	for _, r := range input {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Tokenize returns the distinct, normalized, non stop-word terms of input in
// order of first appearance.
func Tokenize(input string) []string {
	fields := strings.Fields(Normalize(input))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := stopWords[f]; ok {
			continue
		}
		if utf8.RuneCountInString(f) < 2 && f[0] < utf8.RuneSelf {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// TokenOverlap is the fraction of query terms that also occur in doc, in [0,1].
func TokenOverlap(queryTerms []string, doc string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := make(map[string]struct{})
	for _, t := range strings.Fields(Normalize(doc)) {
		docTerms[t] = struct{}{}
	}
	hits := 0
	for _, t := range queryTerms {
		if _, ok := docTerms[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// MarkdownToText renders markdown source as plain text, one block per line.
func MarkdownToText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var txt string
		if code, ok := node.(*ast.FencedCodeBlock); ok {
			txt = blockLines(code, source)
		} else if code, ok := node.(*ast.CodeBlock); ok {
			txt = blockLines(code, source)
		} else {
			txt = inlineText(node, source)
		}
		if txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return strings.Join(blocks, "\n")
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimSpace(sb.String())
}

func inlineText(n ast.Node, source []byte) string {
	var parts []string
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node != n && sb.Len() > 0 {
				parts = append(parts, strings.TrimSpace(sb.String()))
				sb.Reset()
			}
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	if sb.Len() > 0 {
		parts = append(parts, strings.TrimSpace(sb.String()))
	}
	return strings.Join(parts, " ")
}
