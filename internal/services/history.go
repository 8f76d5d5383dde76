package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"answergen/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// HistoryService is the append-only log of completed runs.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// Save inserts run and all of its records in one transaction. Saving an id
// that already exists fails.
func (s *HistoryService) Save(ctx context.Context, run *models.GenerationRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var docID sql.NullInt64
	if run.DocumentID > 0 {
		docID = sql.NullInt64{Valid: true, Int64: run.DocumentID}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, subject, mode, custom_prompt, source_name, document_id,
			question_count, failed_count, low_confidence, output_path, page_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, run.ID, run.CreatedAt.UnixMilli(), run.Subject, string(run.Mode), run.CustomPrompt, run.SourceName, docID,
		len(run.Records), run.FailedCount(), boolToInt(run.LowConfidence), run.OutputPath, run.PageCount); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO answer_records (run_id, idx, raw_marker, question, answer, failed)
		VALUES (?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range run.Records {
		if _, err := stmt.ExecContext(ctx, run.ID, rec.Question.Index, rec.Question.RawMarker,
			rec.Question.Text, rec.AnswerText, boolToInt(rec.Failed)); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Question.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// List returns run summaries newest first. A limit of zero or less means no limit.
func (s *HistoryService) List(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, subject, mode, source_name, question_count, failed_count,
			low_confidence, output_path, page_count
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		var (
			sum       models.RunSummary
			createdAt int64
			mode      string
			lowConf   int
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.Subject, &mode, &sum.SourceName, &sum.QuestionCount,
			&sum.FailedCount, &lowConf, &sum.OutputPath, &sum.PageCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(createdAt).UTC()
		sum.Mode = models.Mode(mode)
		sum.LowConfidence = lowConf != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns the full run with its records in question order.
func (s *HistoryService) Get(ctx context.Context, id string) (*models.GenerationRun, error) {
	var (
		run       models.GenerationRun
		createdAt int64
		mode      string
		docID     sql.NullInt64
		lowConf   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, subject, mode, custom_prompt, source_name, document_id,
			low_confidence, output_path, page_count
		FROM runs WHERE id = ?;
	`, id).Scan(&run.ID, &createdAt, &run.Subject, &mode, &run.CustomPrompt, &run.SourceName, &docID,
		&lowConf, &run.OutputPath, &run.PageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.Mode = models.Mode(mode)
	run.LowConfidence = lowConf != 0
	if docID.Valid {
		run.DocumentID = docID.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, raw_marker, question, answer, failed
		FROM answer_records WHERE run_id = ?
		ORDER BY idx ASC;
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := models.AnswerRecord{Mode: run.Mode, Subject: run.Subject}
		var failed int
		if err := rows.Scan(&rec.Question.Index, &rec.Question.RawMarker, &rec.Question.Text, &rec.AnswerText, &failed); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Failed = failed != 0
		run.Records = append(run.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// Delete removes a run, its records and its output document.
func (s *HistoryService) Delete(ctx context.Context, id string) error {
	var outputPath string
	err := s.db.QueryRowContext(ctx, `SELECT output_path FROM runs WHERE id = ?;`, id).Scan(&outputPath)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup run: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	if outputPath != "" {
		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", outputPath).Msg("could not remove run document")
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
