package ocr

import "context"

// Service turns page images into text.
type Service interface {
	// ExtractText reads the text of a single image.
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)

	// ExtractPages reads several page images in order and calls progressFn after each page.
	ExtractPages(ctx context.Context, pages []PageImage, progressFn func(page, total int)) ([]string, error)

	// RenderPDF rasterises every page of a PDF so it can be read like an image.
	RenderPDF(ctx context.Context, pdfData []byte) ([]PageImage, error)
}

// PageImage is a single rendered page.
type PageImage struct {
	PageNumber int
	Data       []byte
	MIMEType   string
}
