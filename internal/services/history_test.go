package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergen/internal/models"
)

func sampleRun(id string, created time.Time, n int) *models.GenerationRun {
	run := &models.GenerationRun{
		ID:           id,
		CreatedAt:    created,
		Subject:      "Physics",
		Mode:         models.ModeUnderstand,
		CustomPrompt: "Use SI units",
		SourceName:   "midterm.pdf",
		OutputPath:   "/tmp/" + id + ".pdf",
		PageCount:    n + 2,
	}
	for i := 0; i < n; i++ {
		run.Records = append(run.Records, models.AnswerRecord{
			Question:   models.Question{Index: i, Text: "Question text", RawMarker: "1."},
			AnswerText: "Answer text",
			Mode:       run.Mode,
			Subject:    run.Subject,
			Failed:     i == n-1,
		})
	}
	return run
}

func TestHistoryRoundTrip(t *testing.T) {
	h := NewHistoryService(openTestDB(t))
	ctx := context.Background()
	created := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	run := sampleRun("run-1", created, 3)
	require.NoError(t, h.Save(ctx, run))

	got, err := h.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Subject, got.Subject)
	assert.Equal(t, run.Mode, got.Mode)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Len(t, got.Records, 3)
	assert.Equal(t, run.Records, got.Records)
	assert.Equal(t, "Use SI units", got.CustomPrompt)
	assert.Equal(t, 5, got.PageCount)
	assert.Equal(t, 1, got.FailedCount())
}

func TestHistoryListNewestFirst(t *testing.T) {
	h := NewHistoryService(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.Save(ctx, sampleRun("old", base, 1)))
	require.NoError(t, h.Save(ctx, sampleRun("newest", base.Add(2*time.Hour), 2)))
	require.NoError(t, h.Save(ctx, sampleRun("middle", base.Add(time.Hour), 1)))

	list, err := h.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].ID)
	assert.Equal(t, "middle", list[1].ID)
	assert.Equal(t, "old", list[2].ID)
	assert.Equal(t, 2, list[0].QuestionCount)
	assert.Equal(t, 1, list[0].FailedCount)

	limited, err := h.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "newest", limited[0].ID)
}

func TestHistoryGetMissing(t *testing.T) {
	h := NewHistoryService(openTestDB(t))
	_, err := h.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	h := NewHistoryService(openTestDB(t))
	ctx := context.Background()
	run := sampleRun("dup", time.Now().UTC(), 1)

	require.NoError(t, h.Save(ctx, run))
	assert.Error(t, h.Save(ctx, run))

	got, err := h.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, got.Records, 1)
}

func TestHistoryDeleteRemovesDocument(t *testing.T) {
	h := NewHistoryService(openTestDB(t))
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "answers.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	run := sampleRun("gone", time.Now().UTC(), 2)
	run.OutputPath = path
	require.NoError(t, h.Save(ctx, run))

	require.NoError(t, h.Delete(ctx, "gone"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = h.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, h.Delete(ctx, "gone"), ErrRunNotFound)
}
