package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the answer style.
type Mode string

const (
	ModeUnderstand Mode = "understand"
	ModeExam       Mode = "exam"
)

// ParseMode accepts the short names as well as the "Understand Mode"/"Exam Mode" labels.
func ParseMode(raw string) (Mode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, " mode")
	switch s {
	case "understand":
		return ModeUnderstand, nil
	case "exam":
		return ModeExam, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want understand or exam)", raw)
	}
}

// Label is the human-facing name used on the compiled document.
func (m Mode) Label() string {
	switch m {
	case ModeUnderstand:
		return "Understand Mode"
	case ModeExam:
		return "Exam Mode"
	default:
		return string(m)
	}
}

// Format is the declared or detected kind of an input document.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatWord  Format = "word"
	FormatImage Format = "image"
)

// Subjects offered to users. Any other subject string is accepted and gets general guidelines.
var Subjects = []string{
	"Mathematics",
	"Physics",
	"Computer Science",
	"History",
	"Literature",
	"Chemistry",
	"Biology",
	"Economics",
	"Psychology",
	"Engineering",
}

var programmingMarkers = []string{
	"computer",
	"programming",
	"software",
	"information technology",
	"data science",
}

// IsProgrammingSubject reports whether code blocks should get code styling.
func IsProgrammingSubject(subject string) bool {
	s := strings.ToLower(subject)
	for _, marker := range programmingMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// Question is one numbered item found in a source document.
type Question struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	RawMarker string `json:"rawMarker"`
}

// AnswerRecord pairs a question with its generated answer. Failed marks a fallback answer.
type AnswerRecord struct {
	Question   Question `json:"question"`
	AnswerText string   `json:"answer"`
	Mode       Mode     `json:"mode"`
	Subject    string   `json:"subject"`
	Failed     bool     `json:"failed,omitempty"`
}

// GenerationRun is one upload-to-document cycle. It is persisted as a whole.
type GenerationRun struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"createdAt"`
	Subject       string         `json:"subject"`
	Mode          Mode           `json:"mode"`
	CustomPrompt  string         `json:"customPrompt,omitempty"`
	SourceName    string         `json:"sourceName"`
	DocumentID    int64          `json:"documentId,omitempty"`
	LowConfidence bool           `json:"lowConfidence"`
	Records       []AnswerRecord `json:"records,omitempty"`
	OutputPath    string         `json:"outputPath"`
	PageCount     int            `json:"pageCount"`
}

// FailedCount returns how many records hold fallback answers.
func (r *GenerationRun) FailedCount() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Failed {
			n++
		}
	}
	return n
}

// Summary returns the listing view of r.
func (r *GenerationRun) Summary() RunSummary {
	return RunSummary{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Subject:       r.Subject,
		Mode:          r.Mode,
		SourceName:    r.SourceName,
		QuestionCount: len(r.Records),
		FailedCount:   r.FailedCount(),
		LowConfidence: r.LowConfidence,
		OutputPath:    r.OutputPath,
		PageCount:     r.PageCount,
	}
}

// RunSummary is the history listing view of a run.
type RunSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Subject       string    `json:"subject"`
	Mode          Mode      `json:"mode"`
	SourceName    string    `json:"sourceName"`
	QuestionCount int       `json:"questionCount"`
	FailedCount   int       `json:"failedCount"`
	LowConfidence bool      `json:"lowConfidence"`
	OutputPath    string    `json:"outputPath"`
	PageCount     int       `json:"pageCount"`
}

// Document is an uploaded source file kept on disk.
type Document struct {
	ID           int64
	OriginalName string
	StoredPath   string
	Format       Format
	UploadedAt   time.Time
}
