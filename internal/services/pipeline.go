package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"answergen/internal/compile"
	"answergen/internal/extract"
	"answergen/internal/models"
	"answergen/internal/segment"
)

// ProgressCallback is called while a run advances through its steps.
type ProgressCallback func(step, message string, current, total int)

var (
	// ErrInvalidRequest wraps problems with the caller's input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoQuestions is returned when the document yields no question text at all.
	ErrNoQuestions = errors.New("no questions found in the document")
)

// RunRequest carries everything one run needs. Nothing about a run lives
// outside of it.
type RunRequest struct {
	SourceName string
	Source     io.ReaderAt
	Size       int64
	// Format is detected from SourceName and the file's first bytes when empty.
	Format       models.Format
	Subject      string
	Mode         models.Mode
	CustomPrompt string
	Notes        []extract.Source
	DocumentID   int64
}

func (r RunRequest) validate() error {
	if r.Source == nil {
		return fmt.Errorf("%w: a question document is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	}
	if r.Mode != models.ModeUnderstand && r.Mode != models.ModeExam {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// Preview is the extract and segment result for one document.
type Preview struct {
	Document extract.Document
	Segments segment.Result
}

// Pipeline runs extract, segment, generate, compile and save for one document.
type Pipeline struct {
	extractor *extract.Extractor
	generator *Generator
	compiler  *compile.Compiler
	history   *HistoryService
	outputDir string
	now       func() time.Time
}

func NewPipeline(
	extractor *extract.Extractor,
	generator *Generator,
	compiler *compile.Compiler,
	history *HistoryService,
	outputDir string,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		generator: generator,
		compiler:  compiler,
		history:   history,
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Preview extracts and segments a document without generating anything.
func (p *Pipeline) Preview(ctx context.Context, name string, src io.ReaderAt, size int64, format models.Format) (*Preview, error) {
	doc, res, err := p.questions(ctx, name, src, size, format)
	if err != nil {
		return nil, err
	}
	return &Preview{Document: doc, Segments: res}, nil
}

func (p *Pipeline) questions(ctx context.Context, name string, src io.ReaderAt, size int64, format models.Format) (extract.Document, segment.Result, error) {
	if format == "" {
		head := make([]byte, 16)
		n, _ := src.ReadAt(head, 0)
		detected, err := extract.DetectFormat(name, head[:n])
		if err != nil {
			return extract.Document{}, segment.Result{}, err
		}
		format = detected
	}

	doc, err := p.extractor.Extract(ctx, src, size, format)
	if err != nil {
		return extract.Document{}, segment.Result{}, err
	}

	res := segment.Split(doc.Text)
	if len(res.Questions) == 0 {
		return doc, res, ErrNoQuestions
	}
	return doc, res, nil
}

// Run processes req end to end. The run is saved to history only after the
// document was written; on any error nothing is saved.
func (p *Pipeline) Run(ctx context.Context, req RunRequest, progress ProgressCallback) (*models.GenerationRun, error) {
	if progress == nil {
		progress = func(string, string, int, int) {}
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("subject", req.Subject).Str("mode", string(req.Mode)).Logger()

	progress("extract", fmt.Sprintf("Extracting questions from %s", req.SourceName), 0, 1)
	doc, seg, err := p.questions(ctx, req.SourceName, req.Source, req.Size, req.Format)
	if err != nil {
		return nil, err
	}
	if seg.LowConfidence {
		logger.Warn().Msg("question numbering not detected, treating the document as one question")
		progress("segment", "Question numbering not detected; the document will be answered as a single question", 1, 1)
	} else {
		logger.Info().Int("questions", len(seg.Questions)).Str("pattern", seg.Pattern).Str("format", string(doc.Format)).Msg("questions extracted")
		progress("segment", fmt.Sprintf("Found %d questions", len(seg.Questions)), 1, 1)
	}

	var reference string
	if len(req.Notes) > 0 {
		progress("notes", fmt.Sprintf("Processing %d reference documents", len(req.Notes)), 0, len(req.Notes))
		reference = p.extractor.ExtractReference(ctx, req.Notes)
		progress("notes", "Reference material ready", len(req.Notes), len(req.Notes))
	}

	in := PromptInput{
		Subject:      req.Subject,
		Mode:         req.Mode,
		CustomPrompt: req.CustomPrompt,
		Reference:    reference,
	}
	records, err := p.generator.Generate(ctx, in, seg.Questions, progress)
	if err != nil {
		logger.Error().Err(err).Msg("generation aborted")
		return nil, err
	}

	run := &models.GenerationRun{
		ID:            runID,
		CreatedAt:     p.now().UTC().Truncate(time.Millisecond),
		Subject:       req.Subject,
		Mode:          req.Mode,
		CustomPrompt:  req.CustomPrompt,
		SourceName:    req.SourceName,
		DocumentID:    req.DocumentID,
		LowConfidence: seg.LowConfidence,
		Records:       records,
	}

	progress("compile", "Compiling answer document", 0, 1)
	art, err := p.compiler.Compile(run)
	if err != nil {
		logger.Error().Err(err).Msg("compilation failed")
		return nil, err
	}

	path, err := p.writeArtifact(run, art.Data)
	if err != nil {
		return nil, err
	}
	run.OutputPath = path
	run.PageCount = art.Pages
	progress("compile", fmt.Sprintf("Compiled %d pages", art.Pages), 1, 1)

	progress("save", "Saving to history", 0, 1)
	if err := p.history.Save(ctx, run); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save run: %w", err)
	}

	logger.Info().Int("questions", len(records)).Int("failed", run.FailedCount()).Int("pages", art.Pages).Str("path", path).Msg("run complete")
	progress("complete", "Answer document ready", 1, 1)
	return run, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func subjectSlug(subject string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(subject), "_"), "_")
	if s == "" {
		return "general"
	}
	return s
}

// ArtifactName is the file name of a run's answer document.
func ArtifactName(subject, runID string) string {
	return fmt.Sprintf("answers_%s_%s.pdf", subjectSlug(subject), runID)
}

func (p *Pipeline) writeArtifact(run *models.GenerationRun, data []byte) (string, error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure output dir: %w", err)
	}
	path := filepath.Join(p.outputDir, ArtifactName(run.Subject, run.ID))
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", &compile.CompilationError{Stage: "write", Err: errors.New("rendered output is not a pdf")}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write answer document: %w", err)
	}
	return path, nil
}
