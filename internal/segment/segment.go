// Package segment splits extracted document text into numbered questions.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"answergen/internal/models"
)

// Result is the outcome of segmenting one document.
type Result struct {
	Questions []models.Question
	// Pattern names the numbering style that won, empty when none did.
	Pattern string
	// LowConfidence is set when no numbering style matched more than once and
	// the whole text became a single question.
	LowConfidence bool
}

type matcher struct {
	name string
	re   *regexp.Regexp
	// spaceAfter requires whitespace or end of text right after the match.
	spaceAfter bool
}

// Tried in order; the first one yielding more than one numbered marker wins.
var matchers = []matcher{
	{name: "Question N", re: regexp.MustCompile(`(?i)\bquestion\s+(\d{1,3})\s*[:.)\-]`)},
	{name: "QN", re: regexp.MustCompile(`(?i)\bQ\.?\s?(\d{1,3})\s*[:.)\-]`)},
	{name: "N.", re: regexp.MustCompile(`(?:^|\s)(\d{1,3})\.`), spaceAfter: true},
	{name: "N)", re: regexp.MustCompile(`(?:^|\s)(\d{1,3})\)`), spaceAfter: true},
	{name: "(N)", re: regexp.MustCompile(`(?:^|\s)\((\d{1,3})\)`)},
}

type marker struct {
	num        int
	start, end int
	raw        string
}

var spaceRun = regexp.MustCompile(`\s+`)

// Split segments text into questions.
func Split(text string) Result {
	text = normalize(text)
	if text == "" {
		return Result{}
	}

	for _, m := range matchers {
		chain := longestChain(find(m, text))
		if len(chain) < 2 {
			continue
		}
		qs := spans(text, chain)
		if len(qs) == 0 {
			continue
		}
		return Result{Questions: qs, Pattern: m.name}
	}

	return Result{
		Questions:     []models.Question{{Index: 0, Text: collapse(text)}},
		LowConfidence: true,
	}
}

func normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func find(m matcher, text string) []marker {
	var out []marker
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if m.spaceAfter && end < len(text) && !isSpace(text[end]) {
			continue
		}
		// Leading whitespace consumed by (?:^|\s) is not part of the marker.
		for start < end && isSpace(text[start]) {
			start++
		}
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		out = append(out, marker{num: n, start: start, end: end, raw: text[start:end]})
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\v' || b == '\f'
}

// longestChain picks the longest run of markers numbered n, n+1, n+2 ... in
// text order. Ties go to the run that starts earliest. Stray numbers such as
// "in 2 steps." or a cross reference drop out here.
func longestChain(ms []marker) []marker {
	var best []marker
	for i := range ms {
		chain := []marker{ms[i]}
		want := ms[i].num + 1
		for j := i + 1; j < len(ms); j++ {
			if ms[j].num == want {
				chain = append(chain, ms[j])
				want++
			}
		}
		if len(chain) > len(best) {
			best = chain
		}
	}
	return best
}

func spans(text string, chain []marker) []models.Question {
	qs := make([]models.Question, 0, len(chain))
	for i, m := range chain {
		end := len(text)
		if i+1 < len(chain) {
			end = chain[i+1].start
		}
		body := collapse(text[m.end:end])
		if body == "" {
			continue
		}
		qs = append(qs, models.Question{
			Index:     len(qs),
			Text:      body,
			RawMarker: m.raw,
		})
	}
	return qs
}
