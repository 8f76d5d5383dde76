package compile

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Only quoted attribute values are accepted so that comparisons such as
// "a<b and c>d" are never read as a tag.
const (
	tagAttrs = `(?:\s+[a-z_:][-a-z0-9_:.]*\s*=\s*(?:"[^"]*"|'[^']*'))*\s*/?>`
	tagNames = `b|i|u|s|em|strong|small|big|mark|span|div|p|font|sup|sub|code|pre|center|` +
		`blockquote|ul|ol|li|table|thead|tbody|tr|td|th|h[1-6]|hr`
)

var (
	breakTag  = regexp.MustCompile(`(?i)<br` + tagAttrs)
	markupTag = regexp.MustCompile(`(?i)</?(?:` + tagNames + `)` + tagAttrs)
	entity    = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")

	strayMarker = regexp.MustCompile("\\*\\*|__|`+")
)

// Sanitize prepares plain text such as a question for layout: formatting
// tags and entities are removed, anything else that looks like markup is
// kept as written.
func Sanitize(s string) string {
	return normalize(entity.Replace(stripMarkup(s)))
}

// stripMarkup removes known formatting tags. Breaks become newlines.
func stripMarkup(s string) string {
	s = breakTag.ReplaceAllString(s, "\n")
	return markupTag.ReplaceAllString(s, "")
}

// normalize composes characters, drops control characters and removes an
// unterminated code fence. Markdown structure is kept for the parser.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\u00A0':
			return ' '
		case r == '\uFEFF', r == '\u200B', r == '\u200C', r == '\u200D':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(dropUnclosedFence(s))
}

// dropUnclosedFence removes the last ``` line when fences do not pair up, so
// the rest of the answer is not swallowed into a code block.
func dropUnclosedFence(s string) string {
	lines := strings.Split(s, "\n")
	last, count := -1, 0
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			last = i
			count++
		}
	}
	if count%2 == 0 {
		return s
	}
	return strings.Join(append(lines[:last:last], lines[last+1:]...), "\n")
}

// cleanInline strips emphasis and code markers that the parser left as
// literal text because they were unbalanced. A marker is stray when exactly
// one of its sides touches a word, so "2 ** 10" and "x**2" survive.
func cleanInline(s string) string {
	locs := strayMarker.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	prev := 0
	for _, loc := range locs {
		blankBefore := loc[0] == 0 || isBlank(s[loc[0]-1])
		blankAfter := loc[1] == len(s) || isBlank(s[loc[1]])
		b.WriteString(s[prev:loc[0]])
		if blankBefore == blankAfter {
			b.WriteString(s[loc[0]:loc[1]])
		}
		prev = loc[1]
	}
	b.WriteString(s[prev:])
	return b.String()
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}
