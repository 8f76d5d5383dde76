package compile

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"answergen/internal/models"
)

// BlockKind is the structural role of a laid-out block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockCode
	BlockQuote
	BlockTableRow
	BlockRule
)

// Span is a run of inline text with one style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

// Block is one laid-out unit of an answer.
type Block struct {
	Kind  BlockKind
	Spans []Span
	// Lines holds code block lines verbatim.
	Lines []string
	// Level is the heading level or list nesting depth (0 for top level).
	Level  int
	Marker string
	// CodeStyled is set on code blocks that get monospace and a tinted background.
	CodeStyled bool
	Cells      [][]Span
	Header     bool
}

// Section is one question with its laid-out answer.
type Section struct {
	Number   int
	Question string
	Blocks   []Block
	Failed   bool
}

// Layout is the device-independent form of a compiled run.
type Layout struct {
	Title           string
	Subject         string
	Mode            models.Mode
	GeneratedAt     time.Time
	CustomPrompt    bool
	LowConfidence   bool
	ModeDescription string
	Sections        []Section
}

const documentTitle = "College Answer Generator"

var modeDescriptions = map[models.Mode]string{
	models.ModeUnderstand: "Understand Mode: answers explain each concept in depth with analogies, worked examples " +
		"and background context, aimed at building a solid understanding of the topic.",
	models.ModeExam: "Exam Mode: answers are concise and focused on the key points an examiner looks for, " +
		"structured to score full marks and to be easy to revise.",
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// BuildLayout sanitises and parses every answer in run.
func BuildLayout(run *models.GenerationRun) Layout {
	codeStyled := models.IsProgrammingSubject(run.Subject)
	l := Layout{
		Title:           documentTitle,
		Subject:         run.Subject,
		Mode:            run.Mode,
		GeneratedAt:     run.CreatedAt,
		CustomPrompt:    strings.TrimSpace(run.CustomPrompt) != "",
		LowConfidence:   run.LowConfidence,
		ModeDescription: modeDescriptions[run.Mode],
	}
	for i, rec := range run.Records {
		l.Sections = append(l.Sections, Section{
			Number:   i + 1,
			Question: strings.Join(strings.Fields(Sanitize(rec.Question.Text)), " "),
			Blocks:   ParseAnswer(rec.AnswerText, codeStyled),
			Failed:   rec.Failed,
		})
	}
	return l
}

// ParseAnswer turns one markdown answer into blocks. Code is kept
// byte for byte; formatting tags are dropped only outside of it.
func ParseAnswer(answer string, codeStyled bool) []Block {
	src := []byte(normalize(answer))
	doc := markdown.Parser().Parse(text.NewReader(src))

	w := walker{src: src, codeStyled: codeStyled}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n, 0)
	}
	return w.blocks
}

type walker struct {
	src        []byte
	codeStyled bool
	blocks     []Block
}

func (w *walker) block(n ast.Node, depth int) {
	switch n := n.(type) {
	case *ast.Heading:
		w.add(Block{Kind: BlockHeading, Level: n.Level, Spans: w.inlines(n, Span{})})
	case *ast.Paragraph, *ast.TextBlock:
		w.add(Block{Kind: BlockParagraph, Spans: w.inlines(n, Span{})})
	case *ast.List:
		w.list(n, depth)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		w.code(n)
	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Kind() == ast.KindParagraph {
				w.add(Block{Kind: BlockQuote, Spans: w.inlines(c, Span{})})
			} else {
				w.block(c, depth)
			}
		}
	case *ast.ThematicBreak:
		w.blocks = append(w.blocks, Block{Kind: BlockRule})
	case *east.Table:
		w.table(n)
	case *ast.HTMLBlock:
		w.html(n)
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c, depth)
		}
	}
}

func (w *walker) add(b Block) {
	if b.Kind != BlockRule && len(b.Spans) == 0 && len(b.Lines) == 0 && len(b.Cells) == 0 {
		return
	}
	w.blocks = append(w.blocks, b)
}

func (w *walker) list(l *ast.List, depth int) {
	num := l.Start
	if num == 0 {
		num = 1
	}
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := bulletFor(depth)
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d.", num)
			num++
		}

		var spans []Span
		var rest []ast.Node
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.Kind() {
			case ast.KindParagraph, ast.KindTextBlock:
				if len(spans) > 0 {
					spans = append(spans, Span{Text: " "})
				}
				spans = append(spans, w.inlines(c, Span{})...)
			default:
				rest = append(rest, c)
			}
		}
		w.blocks = append(w.blocks, Block{Kind: BlockListItem, Level: depth, Marker: marker, Spans: spans})
		for _, c := range rest {
			w.block(c, depth+1)
		}
	}
}

func bulletFor(depth int) string {
	if depth%2 == 1 {
		return "-"
	}
	return "•"
}

func (w *walker) code(n ast.Node) {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(w.src)), "\r\n")
		out = append(out, strings.ReplaceAll(line, "\t", "    "))
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	w.add(Block{Kind: BlockCode, Lines: out, CodeStyled: w.codeStyled})
}

// html keeps the text of a raw HTML block with its formatting tags removed.
func (w *walker) html(n *ast.HTMLBlock) {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(w.src))
	}
	if n.HasClosure() {
		b.Write(n.ClosureLine.Value(w.src))
	}
	txt := strings.TrimSpace(cleanInline(entity.Replace(stripMarkup(b.String()))))
	if txt != "" {
		w.add(Block{Kind: BlockParagraph, Spans: []Span{{Text: txt}}})
	}
}

func (w *walker) table(t *east.Table) {
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*east.TableHeader)
		var cells [][]Span
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, w.inlines(cell, Span{Bold: header}))
		}
		w.add(Block{Kind: BlockTableRow, Cells: cells, Header: header})
	}
}

// inlines flattens the inline children of n into styled spans. Adjacent
// spans with the same style are merged.
func (w *walker) inlines(n ast.Node, style Span) []Span {
	var out []Span
	w.collect(n, style, &out)

	merged := out[:0]
	for _, s := range out {
		if k := len(merged) - 1; k >= 0 && sameStyle(merged[k], s) {
			merged[k].Text += s.Text
			continue
		}
		merged = append(merged, s)
	}
	for i := range merged {
		if !merged[i].Code {
			merged[i].Text = cleanInline(entity.Replace(merged[i].Text))
		}
	}
	// Trim the paragraph edges.
	if len(merged) > 0 {
		merged[0].Text = strings.TrimLeft(merged[0].Text, " ")
		last := len(merged) - 1
		merged[last].Text = strings.TrimRight(merged[last].Text, " \n")
	}
	var final []Span
	for _, s := range merged {
		if s.Text != "" {
			final = append(final, s)
		}
	}
	return final
}

func sameStyle(a, b Span) bool {
	return a.Bold == b.Bold && a.Italic == b.Italic && a.Code == b.Code
}

func (w *walker) collect(n ast.Node, style Span, out *[]Span) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			s := style
			s.Text = string(c.Segment.Value(w.src))
			switch {
			case c.HardLineBreak():
				s.Text += "\n"
			case c.SoftLineBreak():
				s.Text += " "
			}
			*out = append(*out, s)
		case *ast.String:
			s := style
			s.Text = string(c.Value)
			*out = append(*out, s)
		case *ast.Emphasis:
			s := style
			if c.Level >= 2 {
				s.Bold = true
			} else {
				s.Italic = true
			}
			w.collect(c, s, out)
		case *ast.CodeSpan:
			s := style
			s.Code = true
			w.collect(c, s, out)
		case *ast.AutoLink:
			s := style
			s.Text = string(c.URL(w.src))
			*out = append(*out, s)
		case *ast.RawHTML:
			var raw strings.Builder
			for i := 0; i < c.Segments.Len(); i++ {
				seg := c.Segments.At(i)
				raw.Write(seg.Value(w.src))
			}
			// Unknown tags such as <iostream> or <y and y> are literal text.
			s := style
			s.Text = stripMarkup(raw.String())
			if s.Text != "" {
				*out = append(*out, s)
			}
		default:
			w.collect(c, style, out)
		}
	}
}
