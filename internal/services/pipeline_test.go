package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergen/internal/compile"
	"answergen/internal/extract"
	"answergen/internal/llm"
	"answergen/internal/models"
)

type pipelineFixture struct {
	pipeline  *Pipeline
	history   *HistoryService
	outputDir string
}

func newPipelineFixture(t *testing.T, provider llm.Provider) pipelineFixture {
	t.Helper()
	var delays []time.Duration
	history := NewHistoryService(openTestDB(t))
	outputDir := filepath.Join(t.TempDir(), "output")
	p := NewPipeline(
		extract.New(nil, false),
		NewGenerator(provider, GeneratorOptions{Policy: testPolicy(2, &delays)}),
		compile.New(compile.Options{}),
		history,
		outputDir,
	)
	return pipelineFixture{pipeline: p, history: history, outputDir: outputDir}
}

func docxRequest(t *testing.T, paragraphs ...string) RunRequest {
	data := buildDocx(t, paragraphs...)
	return RunRequest{
		SourceName: "questions.docx",
		Source:     bytes.NewReader(data),
		Size:       int64(len(data)),
		Subject:    "Computer Science",
		Mode:       models.ModeExam,
	}
}

func TestPipelineRun(t *testing.T) {
	f := newPipelineFixture(t, echoProvider())
	req := docxRequest(t, "Midterm", "1. What is a variable?", "2. What is a loop?")

	var steps []string
	run, err := f.pipeline.Run(context.Background(), req, func(step, message string, current, total int) {
		if len(steps) == 0 || steps[len(steps)-1] != step {
			steps = append(steps, step)
		}
	})
	require.NoError(t, err)

	require.Len(t, run.Records, 2)
	assert.Equal(t, "What is a variable?", run.Records[0].Question.Text)
	assert.Equal(t, "**Answer** to: What is a loop?", run.Records[1].AnswerText)
	assert.False(t, run.LowConfidence)
	assert.Equal(t, 4, run.PageCount)
	assert.Equal(t, []string{"extract", "segment", "generate", "compile", "save", "complete"}, steps)

	assert.Equal(t, filepath.Join(f.outputDir, "answers_computer_science_"+run.ID+".pdf"), run.OutputPath)
	data, err := os.ReadFile(run.OutputPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	saved, err := f.history.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Subject, saved.Subject)
	assert.Equal(t, run.Mode, saved.Mode)
	assert.True(t, run.CreatedAt.Equal(saved.CreatedAt))
	assert.Len(t, saved.Records, 2)
}

func TestPipelineRunLowConfidence(t *testing.T) {
	f := newPipelineFixture(t, echoProvider())
	req := docxRequest(t, "Explain the causes of inflation.")
	req.Subject = "Economics"

	run, err := f.pipeline.Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, run.LowConfidence)
	require.Len(t, run.Records, 1)
	assert.Equal(t, "Explain the causes of inflation.", run.Records[0].Question.Text)
}

func TestPipelineFatalSavesNothing(t *testing.T) {
	p := &scriptedProvider{respond: func(int, string) (string, error) {
		return "", llm.Classify(llm.ErrNotConfigured)
	}}
	f := newPipelineFixture(t, p)

	_, err := f.pipeline.Run(context.Background(), docxRequest(t, "1. a?", "2. b?"), nil)
	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))

	list, err := f.history.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	entries, _ := os.ReadDir(f.outputDir)
	assert.Empty(t, entries)
}

func TestPipelineRejectsInvalidRequest(t *testing.T) {
	f := newPipelineFixture(t, echoProvider())

	req := docxRequest(t, "1. a?", "2. b?")
	req.Subject = " "
	_, err := f.pipeline.Run(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = docxRequest(t, "1. a?", "2. b?")
	req.Mode = "cram"
	_, err = f.pipeline.Run(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.pipeline.Run(context.Background(), RunRequest{Subject: "Physics", Mode: models.ModeExam}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPipelineExtractionError(t *testing.T) {
	f := newPipelineFixture(t, echoProvider())

	_, err := f.pipeline.Run(context.Background(), docxRequest(t), nil)
	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.NotEmpty(t, extErr.Guidance)
}

func TestPipelinePreview(t *testing.T) {
	f := newPipelineFixture(t, echoProvider())
	req := docxRequest(t, "Q1. Define force.", "Q2. Define work.", "Q3. Define power.")

	prev, err := f.pipeline.Preview(context.Background(), req.SourceName, req.Source, req.Size, "")
	require.NoError(t, err)
	assert.Equal(t, models.FormatWord, prev.Document.Format)
	assert.Equal(t, "QN", prev.Segments.Pattern)
	require.Len(t, prev.Segments.Questions, 3)
	assert.Equal(t, "Define power.", prev.Segments.Questions[2].Text)
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "answers_computer_science_abc.pdf", ArtifactName("Computer Science", "abc"))
	assert.Equal(t, "answers_general_abc.pdf", ArtifactName("  ", "abc"))
}
