package compile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergen/internal/models"
)

const codeAnswer = "A variable names a value.\n\n```python\nx = 42\nprint(x)\n```\n\nThat is all."

func runFor(subject string, answers ...string) *models.GenerationRun {
	run := &models.GenerationRun{
		ID:        "run-1",
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Subject:   subject,
		Mode:      models.ModeExam,
	}
	for i, a := range answers {
		run.Records = append(run.Records, models.AnswerRecord{
			Question:   models.Question{Index: i, Text: fmt.Sprintf("What is concept %d?", i+1)},
			AnswerText: a,
			Mode:       run.Mode,
			Subject:    subject,
		})
	}
	return run
}

func codeBlocks(blocks []Block) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Kind == BlockCode {
			out = append(out, b)
		}
	}
	return out
}

func TestCodeStylingFollowsSubject(t *testing.T) {
	cs := BuildLayout(runFor("Computer Science", codeAnswer))
	hist := BuildLayout(runFor("History", codeAnswer))

	csCode := codeBlocks(cs.Sections[0].Blocks)
	require.Len(t, csCode, 1)
	assert.True(t, csCode[0].CodeStyled)
	assert.Equal(t, []string{"x = 42", "print(x)"}, csCode[0].Lines)

	histCode := codeBlocks(hist.Sections[0].Blocks)
	require.Len(t, histCode, 1)
	assert.False(t, histCode[0].CodeStyled)
	assert.Equal(t, csCode[0].Lines, histCode[0].Lines)

	c := New(Options{})

	csArt, err := c.Render(cs)
	require.NoError(t, err)
	assert.Equal(t, 1, csArt.StyledCodeBlocks)
	assert.Equal(t, 0, csArt.PlainCodeBlocks)

	histArt, err := c.Render(hist)
	require.NoError(t, err)
	assert.Equal(t, 0, histArt.StyledCodeBlocks)
	assert.Equal(t, 1, histArt.PlainCodeBlocks)
}

func TestCompileProducesPDF(t *testing.T) {
	run := runFor("Mathematics",
		"The area is πr² and r ≥ 0.",
		"## Steps\n\n1. Expand\n2. Simplify\n\n- note **one**\n  - nested",
		"Short answer.",
	)
	run.CustomPrompt = "Use SI units"
	run.Records[2].Failed = true

	art, err := New(Options{}).Compile(run)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(art.Data, []byte("%PDF-")))
	assert.Equal(t, 2+len(run.Records), art.Pages)
}

func TestCompileRejectsEmptyRun(t *testing.T) {
	_, err := New(Options{}).Compile(runFor("History"))
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "layout", cerr.Stage)
}

func TestRenderFailsOnMissingFont(t *testing.T) {
	c := New(Options{UnicodeFont: filepath.Join(t.TempDir(), "missing.ttf")})
	_, err := c.Compile(runFor("Physics", "F = ma"))
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
}

func TestParseAnswerStructure(t *testing.T) {
	md := "## Overview\n\nSome **bold** and *italic* text.\n\n- one\n- two\n\n1. first\n2. second\n\n" +
		"> quoted line\n\n---\n\n| A | B |\n|---|---|\n| 1 | 2 |\n"

	blocks := ParseAnswer(md, false)
	require.Len(t, blocks, 10)

	assert.Equal(t, BlockHeading, blocks[0].Kind)
	assert.Equal(t, 2, blocks[0].Level)
	assert.Equal(t, "Overview", plain(blocks[0].Spans))

	assert.Equal(t, BlockParagraph, blocks[1].Kind)
	assert.Equal(t, []Span{
		{Text: "Some "},
		{Text: "bold", Bold: true},
		{Text: " and "},
		{Text: "italic", Italic: true},
		{Text: " text."},
	}, blocks[1].Spans)

	assert.Equal(t, BlockListItem, blocks[2].Kind)
	assert.Equal(t, "•", blocks[2].Marker)
	assert.Equal(t, "one", plain(blocks[2].Spans))
	assert.Equal(t, "2.", blocks[5].Marker)
	assert.Equal(t, "second", plain(blocks[5].Spans))

	assert.Equal(t, BlockQuote, blocks[6].Kind)
	assert.Equal(t, BlockRule, blocks[7].Kind)

	assert.Equal(t, BlockTableRow, blocks[8].Kind)
	assert.True(t, blocks[8].Header)
	require.Len(t, blocks[8].Cells, 2)
	assert.Equal(t, "A", plain(blocks[8].Cells[0]))
	assert.False(t, blocks[9].Header)
	assert.Equal(t, "2", plain(blocks[9].Cells[1]))
}

func TestParseAnswerNestedList(t *testing.T) {
	blocks := ParseAnswer("- outer\n  - inner\n- last", true)
	require.Len(t, blocks, 3)
	assert.Equal(t, 0, blocks[0].Level)
	assert.Equal(t, 1, blocks[1].Level)
	assert.Equal(t, "-", blocks[1].Marker)
	assert.Equal(t, "inner", plain(blocks[1].Spans))
	assert.Equal(t, 0, blocks[2].Level)
}

func TestParseAnswerIndentedCode(t *testing.T) {
	blocks := ParseAnswer("Example:\n\n    for i in range(3):\n        print(i)\n", true)
	code := codeBlocks(blocks)
	require.Len(t, code, 1)
	assert.Equal(t, []string{"for i in range(3):", "    print(i)"}, code[0].Lines)
	assert.True(t, code[0].CodeStyled)
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"html tags", "<p>Hello <b>world</b></p><br/>next", "Hello world\nnext"},
		{"entities", "a &lt; b &amp;&amp; c", "a < b && c"},
		{"control chars", "bad\x00\x07text\u200b here", "badtext here"},
		{"comparison kept", "x < y and y > z", "x < y and y > z"},
		{"tight comparison kept", "a<b and c>d", "a<b and c>d"},
		{"generics kept", "std::vector<int> and <iostream>", "std::vector<int> and <iostream>"},
		{"attributes", `<span class="x">value</span>`, "value"},
		{"unclosed fence", "Intro\n```python\nx = 1", "Intro\nx = 1"},
		{"closed fence kept", "```\ncode\n```", "```\ncode\n```"},
		{"math kept", "∫ f(x) dx ≈ π", "∫ f(x) dx ≈ π"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestUnbalancedEmphasisIsStripped(t *testing.T) {
	blocks := ParseAnswer("This is **unfinished and `odd", false)
	require.Len(t, blocks, 1)
	assert.Equal(t, "This is unfinished and odd", plain(blocks[0].Spans))
}

func TestParseAnswerKeepsAngleBrackets(t *testing.T) {
	answer := "Use this:\n\n```cpp\n#include <iostream>\nstd::vector<int> v;\n```\n\n" +
		"For x<y and y>z we have x<z. Also a<b and c>d."

	blocks := ParseAnswer(answer, true)
	require.Len(t, blocks, 3)

	code := codeBlocks(blocks)
	require.Len(t, code, 1)
	assert.Equal(t, []string{"#include <iostream>", "std::vector<int> v;"}, code[0].Lines)
	assert.True(t, code[0].CodeStyled)

	assert.Equal(t, "For x<y and y>z we have x<z. Also a<b and c>d.", plain(blocks[2].Spans))
}

func TestParseAnswerDropsFormattingTags(t *testing.T) {
	blocks := ParseAnswer("Line one<br>line <b>two</b> &amp; <sup>3</sup>", false)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Line one\nline two & 3", plain(blocks[0].Spans))

	blocks = ParseAnswer("<div>\nBoxed &lt;text&gt;\n</div>", false)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Boxed <text>", plain(blocks[0].Spans))
}

func TestParseAnswerKeepsLiteralOperators(t *testing.T) {
	blocks := ParseAnswer("In Python 2 ** 10 is 1024, and x**2 squares x. Use `a ** b` too.", false)
	require.Len(t, blocks, 1)
	assert.Equal(t, "In Python 2 ** 10 is 1024, and x**2 squares x. Use a ** b too.", plain(blocks[0].Spans))
}

func TestSpellSymbols(t *testing.T) {
	assert.Equal(t, "pi r² for r >= 0 -> done", spellSymbols("π r² for r ≥ 0 → done"))
	assert.Equal(t, "x_1 + alpha", spellSymbols("x₁ + α"))
}
