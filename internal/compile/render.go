// Package compile lays out generated answers and renders them as a PDF.
package compile

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"answergen/internal/models"
)

func init() {
	// Keep pdfcpu from creating a config directory in $HOME.
	model.ConfigPath = "disable"
}

const (
	margin      = 20.0
	bodySize    = 11.0
	bodyLine    = 5.5
	codeSize    = 9.0
	codeLine    = 4.5
	listIndent  = 6.0
	listHang    = 7.0
	unicodeFace = "answerfont"
)

// Options configures rendering.
type Options struct {
	// UnicodeFont is a TTF file used for body text. When empty, the built-in
	// Helvetica is used and text is converted to cp1252.
	UnicodeFont string
}

// Artifact is a rendered answer document.
type Artifact struct {
	Data  []byte
	Pages int
	// StyledCodeBlocks and PlainCodeBlocks count how code blocks were drawn.
	StyledCodeBlocks int
	PlainCodeBlocks  int
}

// Compiler renders generation runs.
type Compiler struct {
	opts Options
}

func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Compile lays out and renders run.
func (c *Compiler) Compile(run *models.GenerationRun) (Artifact, error) {
	if run == nil || len(run.Records) == 0 {
		return Artifact{}, &CompilationError{Stage: "layout", Err: errors.New("run has no answers")}
	}
	return c.Render(BuildLayout(run))
}

// Render draws l and checks the result with a PDF parser.
func (c *Compiler) Render(l Layout) (art Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CompilationError{Stage: "render", Err: fmt.Errorf("renderer panic: %v", r)}
		}
	}()

	d := newDocument(c.opts, l)
	d.cover()
	d.contents()
	for _, s := range l.Sections {
		d.section(s)
	}

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return Artifact{}, &CompilationError{Stage: "render", Err: err}
	}

	pages, err := countPages(buf.Bytes())
	if err != nil {
		return Artifact{}, &CompilationError{Stage: "validate", Err: err}
	}

	return Artifact{
		Data:             buf.Bytes(),
		Pages:            pages,
		StyledCodeBlocks: d.styledCode,
		PlainCodeBlocks:  d.plainCode,
	}, nil
}

func countPages(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("read rendered pdf: %w", err)
	}
	if n == 0 {
		return 0, errors.New("rendered pdf has no pages")
	}
	return n, nil
}

type document struct {
	pdf     *fpdf.Fpdf
	layout  Layout
	face    string
	unicode bool
	cp1252  func(string) string
	width   float64
	links   []int

	styledCode int
	plainCode  int
}

func newDocument(opts Options, l Layout) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AliasNbPages("")
	pdf.SetTitle(l.Title+" - "+l.Subject, true)
	pdf.SetSubject(l.Subject, true)
	pdf.SetCreator("answergen", false)
	if !l.GeneratedAt.IsZero() {
		pdf.SetCreationDate(l.GeneratedAt)
	}

	d := &document{
		pdf:    pdf,
		layout: l,
		face:   "Helvetica",
		cp1252: pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if opts.UnicodeFont != "" {
		for _, style := range []string{"", "B", "I", "BI"} {
			pdf.AddUTF8Font(unicodeFace, style, opts.UnicodeFont)
		}
		d.face = unicodeFace
		d.unicode = true
	}
	pageW, _ := pdf.GetPageSize()
	d.width = pageW - 2*margin

	pdf.SetHeaderFunc(d.header)
	pdf.SetFooterFunc(d.footer)
	return d
}

// txt prepares body text for the active font.
func (d *document) txt(s string) string {
	if d.unicode {
		return s
	}
	return d.cp1252(spellSymbols(s))
}

// mono prepares text for the Courier core font, which is always cp1252.
func (d *document) mono(s string) string {
	return d.cp1252(spellSymbols(s))
}

func (d *document) header() {
	if d.pdf.PageNo() <= 1 {
		return
	}
	d.pdf.SetFont(d.face, "", 8)
	d.pdf.SetTextColor(120, 120, 120)
	d.pdf.CellFormat(0, 6, d.txt(d.layout.Subject+"  |  "+d.layout.Mode.Label()), "B", 1, "R", false, 0, "")
	d.pdf.Ln(4)
}

func (d *document) footer() {
	d.pdf.SetY(-15)
	d.pdf.SetFont("Helvetica", "I", 8)
	d.pdf.SetTextColor(128, 128, 128)
	d.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", d.pdf.PageNo()), "", 0, "C", false, 0, "")
}

func (d *document) body() {
	d.pdf.SetFont(d.face, "", bodySize)
	d.pdf.SetTextColor(30, 30, 30)
}

func (d *document) cover() {
	pdf := d.pdf
	l := d.layout
	pdf.AddPage()

	pdf.SetY(55)
	pdf.SetFont(d.face, "B", 24)
	pdf.SetTextColor(31, 56, 100)
	pdf.CellFormat(0, 12, d.txt(l.Title), "", 1, "C", false, 0, "")
	pdf.SetFont(d.face, "I", 14)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 9, d.txt("Generated answers"), "", 1, "C", false, 0, "")
	pdf.Ln(14)

	failed := 0
	for _, s := range l.Sections {
		if s.Failed {
			failed++
		}
	}
	rows := [][2]string{
		{"Subject", l.Subject},
		{"Answer mode", l.Mode.Label()},
		{"Questions", strconv.Itoa(len(l.Sections))},
		{"Generated on", l.GeneratedAt.Format("2 January 2006, 15:04 MST")},
		{"Custom instructions", yesNo(l.CustomPrompt)},
	}
	if failed > 0 {
		rows = append(rows, [2]string{"Fallback answers", strconv.Itoa(failed)})
	}

	const keyW, valW = 50.0, 80.0
	x := margin + (d.width-keyW-valW)/2
	pdf.SetDrawColor(180, 180, 180)
	for _, r := range rows {
		pdf.SetX(x)
		pdf.SetFont(d.face, "B", bodySize)
		pdf.SetFillColor(230, 236, 245)
		pdf.SetTextColor(31, 56, 100)
		pdf.CellFormat(keyW, 9, d.txt(r[0]), "1", 0, "L", true, 0, "")
		pdf.SetFont(d.face, "", bodySize)
		pdf.SetTextColor(30, 30, 30)
		pdf.CellFormat(valW, 9, d.fit(r[1], valW-2), "1", 1, "L", false, 0, "")
	}

	pdf.Ln(12)
	if l.ModeDescription != "" {
		pdf.SetFont(d.face, "I", bodySize)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, bodyLine, d.txt(l.ModeDescription), "", "C", false)
	}
	if l.LowConfidence {
		pdf.Ln(6)
		pdf.SetFont(d.face, "B", 10)
		pdf.SetTextColor(176, 96, 0)
		pdf.MultiCell(0, bodyLine, d.txt("Question numbering could not be detected, so the whole document was answered as a single question."), "", "C", false)
	}
}

func (d *document) contents() {
	pdf := d.pdf
	pdf.AddPage()
	pdf.SetFont(d.face, "B", 18)
	pdf.SetTextColor(31, 56, 100)
	pdf.CellFormat(0, 10, d.txt("Table of Contents"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	const numW = 15.0
	d.links = make([]int, len(d.layout.Sections))
	for i, s := range d.layout.Sections {
		link := pdf.AddLink()
		d.links[i] = link

		pdf.SetFont(d.face, "B", bodySize)
		pdf.SetTextColor(31, 56, 100)
		label := fmt.Sprintf("Question %d", s.Number)
		labelW := pdf.GetStringWidth(label) + 3
		pdf.CellFormat(labelW, 7, label, "", 0, "L", false, link, "")

		pdf.SetFont(d.face, "", bodySize)
		pdf.SetTextColor(30, 30, 30)
		textW := d.width - labelW - numW
		pdf.CellFormat(textW, 7, d.fit(s.Question, textW-2), "", 0, "L", false, link, "")
		// Page numbers are filled in through aliases, which need a core font.
		pdf.SetFont("Helvetica", "", bodySize)
		pdf.CellFormat(numW, 7, pageAlias(s.Number), "", 1, "R", false, link, "")
	}
}

func pageAlias(n int) string {
	return fmt.Sprintf("{q%d}", n)
}

func (d *document) section(s Section) {
	pdf := d.pdf
	pdf.AddPage()
	pdf.SetLink(d.links[s.Number-1], 0, -1)
	pdf.RegisterAlias(pageAlias(s.Number), strconv.Itoa(pdf.PageNo()))

	pdf.SetFont(d.face, "B", 16)
	pdf.SetTextColor(31, 56, 100)
	pdf.CellFormat(0, 9, fmt.Sprintf("Question %d", s.Number), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont(d.face, "B", bodySize)
	pdf.SetFillColor(235, 241, 250)
	pdf.SetTextColor(30, 30, 30)
	pdf.MultiCell(0, 6, d.txt(fmt.Sprintf("Q%d: %s", s.Number, s.Question)), "", "L", true)
	pdf.Ln(4)

	pdf.SetFont(d.face, "B", 12)
	pdf.SetTextColor(31, 56, 100)
	pdf.CellFormat(0, 7, "Answer:", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	if len(s.Blocks) == 0 {
		d.body()
		pdf.SetFont(d.face, "I", bodySize)
		pdf.MultiCell(0, bodyLine, d.txt("(no answer text)"), "", "L", false)
		return
	}
	for _, b := range s.Blocks {
		d.block(b, s.Failed)
	}
}

func (d *document) block(b Block, failed bool) {
	pdf := d.pdf
	switch b.Kind {
	case BlockHeading:
		size := 14.0 - float64(min(b.Level, 3)-1)
		pdf.Ln(2)
		pdf.SetFont(d.face, "B", size)
		pdf.SetTextColor(31, 56, 100)
		pdf.MultiCell(0, size*0.5, d.txt(plain(b.Spans)), "", "L", false)
		pdf.Ln(1)

	case BlockParagraph:
		d.body()
		if failed {
			pdf.SetTextColor(176, 96, 0)
		}
		d.spans(b.Spans, bodyLine)
		pdf.Ln(bodyLine + 1.5)

	case BlockListItem:
		d.body()
		left := margin + listIndent*float64(b.Level)
		pdf.SetLeftMargin(left + listHang)
		pdf.SetX(left)
		pdf.Write(bodyLine, d.txt(b.Marker))
		pdf.SetX(left + listHang)
		d.spans(b.Spans, bodyLine)
		pdf.SetLeftMargin(margin)
		pdf.Ln(bodyLine + 0.5)

	case BlockCode:
		d.codeBlock(b)

	case BlockQuote:
		d.body()
		pdf.SetLeftMargin(margin + listIndent)
		pdf.SetX(margin + listIndent)
		pdf.SetTextColor(90, 90, 90)
		pdf.SetFont(d.face, "I", bodySize)
		pdf.Write(bodyLine, d.txt(plain(b.Spans)))
		pdf.SetLeftMargin(margin)
		pdf.Ln(bodyLine + 1.5)

	case BlockTableRow:
		if len(b.Cells) == 0 {
			return
		}
		colW := d.width / float64(len(b.Cells))
		pdf.SetDrawColor(180, 180, 180)
		pdf.SetTextColor(30, 30, 30)
		pdf.SetFillColor(230, 236, 245)
		style := ""
		if b.Header {
			style = "B"
		}
		pdf.SetFont(d.face, style, 10)
		for _, cell := range b.Cells {
			pdf.CellFormat(colW, 7, d.fit(plain(cell), colW-2), "1", 0, "L", b.Header, 0, "")
		}
		pdf.Ln(7)

	case BlockRule:
		y := pdf.GetY() + 2
		pdf.SetDrawColor(200, 200, 200)
		pdf.Line(margin, y, margin+d.width, y)
		pdf.Ln(5)
	}
}

func (d *document) codeBlock(b Block) {
	pdf := d.pdf
	text := strings.Join(b.Lines, "\n")
	if b.CodeStyled {
		d.styledCode++
		pdf.Ln(1)
		pdf.SetFont("Courier", "", codeSize)
		pdf.SetTextColor(20, 20, 20)
		pdf.SetFillColor(242, 242, 242)
		pdf.SetDrawColor(200, 200, 200)
		pdf.MultiCell(0, codeLine, d.mono(text), "1", "L", true)
		pdf.Ln(3)
		return
	}
	d.plainCode++
	d.body()
	pdf.MultiCell(0, bodyLine, d.txt(text), "", "L", false)
	pdf.Ln(1.5)
}

// spans writes styled inline text that wraps at the current left margin.
func (d *document) spans(spans []Span, lineH float64) {
	pdf := d.pdf
	codeSubject := models.IsProgrammingSubject(d.layout.Subject)
	r, g, b := pdf.GetTextColor()
	for _, s := range spans {
		if s.Code && codeSubject {
			pdf.SetFont("Courier", "", bodySize-1)
			pdf.SetTextColor(150, 30, 30)
			pdf.Write(lineH, d.mono(s.Text))
			pdf.SetTextColor(r, g, b)
			continue
		}
		style := ""
		if s.Bold {
			style += "B"
		}
		if s.Italic {
			style += "I"
		}
		pdf.SetFont(d.face, style, bodySize)
		pdf.Write(lineH, d.txt(s.Text))
	}
}

// fit converts s for the current font and shortens it with an ellipsis
// until it is at most w wide.
func (d *document) fit(s string, w float64) string {
	out := d.txt(s)
	if d.pdf.GetStringWidth(out) <= w {
		return out
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		out = d.txt(strings.TrimRight(string(runes), " ") + "...")
		if d.pdf.GetStringWidth(out) <= w {
			break
		}
	}
	return out
}

func plain(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
