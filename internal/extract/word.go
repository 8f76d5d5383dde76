package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"answergen/internal/models"
)

func extractWord(src io.ReaderAt, size int64) (Document, error) {
	r, err := docx.ReadDocxFromMemory(src, size)
	if err != nil {
		return Document{}, failed(models.FormatWord, err)
	}
	defer r.Close()

	text, err := documentText(r.Editable().GetContent())
	if err != nil {
		return Document{}, failed(models.FormatWord, err)
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, emptyText(models.FormatWord, "The Word document contains no text. Check that the questions are not embedded as pictures.")
	}
	return Document{Text: text, Pages: 1}, nil
}

// documentText flattens WordprocessingML into text: one line per paragraph,
// with tabs and manual breaks kept.
func documentText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		b      strings.Builder
		inText bool
		inTabs bool // tab stop definitions, not tab characters
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tabs":
				inTabs = true
			case "tab":
				if !inTabs {
					b.WriteByte('\t')
				}
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "tabs":
				inTabs = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
