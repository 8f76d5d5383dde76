package extract

import (
	"context"
	"io"

	"answergen/internal/models"
)

func (e *Extractor) extractImage(ctx context.Context, src io.ReaderAt, size int64) (Document, error) {
	if e.ocr == nil {
		return Document{}, &ExtractionError{
			Format:   models.FormatImage,
			Reason:   "image reading is not available",
			Guidance: "Configure a vision-capable model, or upload a PDF or Word document instead.",
		}
	}

	data, err := readAll(src, size)
	if err != nil {
		return Document{}, failed(models.FormatImage, err)
	}
	if len(data) == 0 {
		return Document{}, emptyText(models.FormatImage, supportedGuidance)
	}

	text, err := e.ocr.ExtractText(ctx, data, imageMIME(data))
	if err != nil {
		return Document{}, failed(models.FormatImage, err)
	}
	if text == "" {
		return Document{}, emptyText(models.FormatImage,
			"No readable text was found. Use a sharper, well-lit photo with the questions in focus.")
	}
	return Document{Text: text, Pages: 1, OCR: true}, nil
}
