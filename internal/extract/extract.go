// Package extract turns uploaded PDF, Word and image files into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"answergen/internal/models"
	"answergen/internal/ocr"
)

// Document is the text pulled out of one file.
type Document struct {
	Format models.Format
	Text   string
	Pages  int
	// OCR is set when the text came from reading page images.
	OCR bool
}

// Extractor dispatches a file to the handler for its format.
type Extractor struct {
	ocr        ocr.Service
	scannedOCR bool
}

// New returns an Extractor. When scannedPDFOCR is set, PDFs without a text
// layer are rasterised and read through ocrSvc.
func New(ocrSvc ocr.Service, scannedPDFOCR bool) *Extractor {
	return &Extractor{ocr: ocrSvc, scannedOCR: scannedPDFOCR}
}

// Extract reads src as the given format.
func (e *Extractor) Extract(ctx context.Context, src io.ReaderAt, size int64, format models.Format) (Document, error) {
	var (
		doc Document
		err error
	)
	switch format {
	case models.FormatPDF:
		doc, err = e.extractPDF(ctx, src, size)
	case models.FormatWord:
		doc, err = extractWord(src, size)
	case models.FormatImage:
		doc, err = e.extractImage(ctx, src, size)
	default:
		return Document{}, unsupported(fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return Document{}, err
	}

	doc.Format = format
	doc.Text = strings.TrimSpace(doc.Text)
	log.Debug().Str("format", string(format)).Int("pages", doc.Pages).Int("chars", len(doc.Text)).Bool("ocr", doc.OCR).Msg("extracted document")
	return doc, nil
}

var extensions = map[string]models.Format{
	".pdf":  models.FormatPDF,
	".docx": models.FormatWord,
	".png":  models.FormatImage,
	".jpg":  models.FormatImage,
	".jpeg": models.FormatImage,
}

var (
	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	oleMagic  = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// DetectFormat picks the handler for a file from its name and first bytes.
// A known extension wins; otherwise the magic bytes decide.
func DetectFormat(name string, head []byte) (models.Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".doc" || bytes.HasPrefix(head, oleMagic) {
		return "", &ExtractionError{
			Format:   models.FormatWord,
			Reason:   "legacy .doc files are not supported",
			Guidance: "Open the file in Word and save it as .docx, or export it to PDF.",
		}
	}
	if f, ok := extensions[ext]; ok {
		return f, nil
	}

	switch {
	case bytes.HasPrefix(head, pdfMagic):
		return models.FormatPDF, nil
	case bytes.HasPrefix(head, zipMagic):
		return models.FormatWord, nil
	case bytes.HasPrefix(head, pngMagic), bytes.HasPrefix(head, jpegMagic):
		return models.FormatImage, nil
	}
	if ext == "" {
		return "", unsupported("could not recognise file type")
	}
	return "", unsupported(fmt.Sprintf("unsupported file type %q", ext))
}

// ParseFormat accepts a declared format name such as "pdf", "docx" or "jpg".
func ParseFormat(s string) (models.Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "pdf":
		return models.FormatPDF, true
	case "word", "docx":
		return models.FormatWord, true
	case "image", "png", "jpg", "jpeg":
		return models.FormatImage, true
	}
	return "", false
}

func imageMIME(head []byte) string {
	mt := http.DetectContentType(head)
	if mt == "image/png" || mt == "image/jpeg" {
		return mt
	}
	return "image/jpeg"
}

func readAll(src io.ReaderAt, size int64) ([]byte, error) {
	return io.ReadAll(io.NewSectionReader(src, 0, size))
}
