package extract

import (
	"fmt"

	"answergen/internal/models"
)

const supportedGuidance = "Upload a PDF with selectable text, a Word .docx file, or a PNG/JPG image."

// ExtractionError means a document could not be turned into usable text.
type ExtractionError struct {
	Format   models.Format
	Reason   string
	Guidance string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := "extract"
	if e.Format != "" {
		msg += " " + string(e.Format)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func unsupported(reason string) *ExtractionError {
	return &ExtractionError{Reason: reason, Guidance: supportedGuidance}
}

func emptyText(format models.Format, guidance string) *ExtractionError {
	return &ExtractionError{Format: format, Reason: "no text found", Guidance: guidance}
}

func failed(format models.Format, err error) *ExtractionError {
	return &ExtractionError{Format: format, Reason: "could not read document", Guidance: supportedGuidance, Err: err}
}
