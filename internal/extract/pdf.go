package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"answergen/internal/models"
)

func (e *Extractor) extractPDF(ctx context.Context, src io.ReaderAt, size int64) (doc Document, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = failed(models.FormatPDF, fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	r, err := pdf.NewReader(src, size)
	if err != nil {
		return Document{}, failed(models.FormatPDF, err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("skipping unreadable pdf page")
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	doc = Document{Text: strings.Join(pages, "\n"), Pages: numPages}
	if strings.TrimSpace(doc.Text) != "" {
		return doc, nil
	}

	if !e.scannedOCR || e.ocr == nil {
		return Document{}, emptyText(models.FormatPDF,
			"This PDF has no text layer (it is probably scanned). Upload the pages as images, or enable SCANNED_PDF_OCR.")
	}
	return e.ocrPDF(ctx, src, size)
}

func (e *Extractor) ocrPDF(ctx context.Context, src io.ReaderAt, size int64) (Document, error) {
	data, err := readAll(src, size)
	if err != nil {
		return Document{}, failed(models.FormatPDF, err)
	}
	images, err := e.ocr.RenderPDF(ctx, data)
	if err != nil {
		return Document{}, failed(models.FormatPDF, err)
	}

	texts, err := e.ocr.ExtractPages(ctx, images, func(page, total int) {
		log.Info().Int("page", page).Int("total", total).Msg("ocr page read")
	})
	if err != nil {
		return Document{}, failed(models.FormatPDF, err)
	}

	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return Document{}, emptyText(models.FormatPDF, "No readable text was found on the scanned pages.")
	}
	return Document{Text: text, Pages: len(images), OCR: true}, nil
}
