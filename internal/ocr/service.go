// Package ocr reads text out of images with a vision-capable model.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"answergen/internal/llm"
)

const transcribePrompt = `Transcribe all text in this image exactly as written.
Keep the original reading order, line breaks and question numbering (for example "1.", "Q2", "Question 3:").
Write mathematical expressions in plain text. Do not add commentary, headings or formatting that is not in the image.
If the image contains no readable text, reply with an empty message.`

type service struct {
	provider llm.Provider
	gsPath   string
}

// NewService reads images through provider. Ghostscript is looked up on PATH
// for RenderPDF.
func NewService(provider llm.Provider) Service {
	return &service{provider: provider, gsPath: "gs"}
}

func (s *service) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	text, err := s.provider.ReadImage(ctx, transcribePrompt, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return strings.TrimSpace(llm.StripCodeFences(text)), nil
}

func (s *service) ExtractPages(ctx context.Context, pages []PageImage, progressFn func(page, total int)) ([]string, error) {
	results := make([]string, 0, len(pages))
	total := len(pages)

	for i, p := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := s.ExtractText(ctx, p.Data, p.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("page %d of %d: %w", i+1, total, err)
		}
		results = append(results, text)

		if progressFn != nil {
			progressFn(i+1, total)
		}
	}

	return results, nil
}

func (s *service) RenderPDF(ctx context.Context, pdfData []byte) ([]PageImage, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		return nil, fmt.Errorf("open pdf for page count: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	tempDir, err := os.MkdirTemp("", "answergen-render-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	src := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(src, pdfData, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	// 150 DPI grey is enough for printed question papers.
	outputPattern := filepath.Join(tempDir, "page-%03d.png")
	cmd := exec.CommandContext(ctx, s.gsPath,
		"-dQUIET",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=pnggray",
		"-r150",
		fmt.Sprintf("-sOutputFile=%s", outputPattern),
		src,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ghostscript render failed: %w, stderr: %s", err, stderr.String())
	}

	pages := make([]PageImage, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		data, err := os.ReadFile(filepath.Join(tempDir, fmt.Sprintf("page-%03d.png", pageNum)))
		if err != nil {
			return nil, fmt.Errorf("read rendered page %d: %w", pageNum, err)
		}
		pages = append(pages, PageImage{PageNumber: pageNum, Data: data, MIMEType: "image/png"})
	}

	log.Debug().Int("pages", numPages).Msg("rendered pdf for ocr")
	return pages, nil
}
