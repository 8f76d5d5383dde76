package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"answergen/internal/models"
)

// DocumentService keeps uploaded source files on disk and records them.
type DocumentService struct {
	db        *sql.DB
	uploadDir string
}

func NewDocumentService(db *sql.DB, uploadDir string) *DocumentService {
	return &DocumentService{db: db, uploadDir: uploadDir}
}

func (s *DocumentService) Create(ctx context.Context, original string, format models.Format, src io.Reader) (*models.Document, error) {
	switch format {
	case models.FormatPDF, models.FormatWord, models.FormatImage:
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure upload dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(original)
	storedPath := filepath.Join(s.uploadDir, name)
	out, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("write file: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (original_name, stored_path, format, uploaded_at)
		VALUES (?, ?, ?, ?);
	`, original, storedPath, string(format), now)
	if err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, _ := res.LastInsertId()

	return &models.Document{
		ID:           id,
		OriginalName: original,
		StoredPath:   storedPath,
		Format:       format,
		UploadedAt:   now,
	}, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, stored_path, format, uploaded_at
		FROM documents WHERE id = ?;
	`, id)
	var (
		doc    models.Document
		format string
	)
	if err := row.Scan(
		&doc.ID,
		&doc.OriginalName,
		&doc.StoredPath,
		&format,
		&doc.UploadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %d not found", id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Format = models.Format(format)
	return &doc, nil
}

// Open opens the stored copy of doc for reading.
func (s *DocumentService) Open(doc *models.Document) (*os.File, int64, error) {
	f, err := os.Open(doc.StoredPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open stored document: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat stored document: %w", err)
	}
	return f, info.Size(), nil
}

// Delete removes doc and its stored copy.
func (s *DocumentService) Delete(ctx context.Context, doc *models.Document) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?;`, doc.ID); err != nil {
		return fmt.Errorf("delete document %d: %w", doc.ID, err)
	}
	if err := os.Remove(doc.StoredPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stored document: %w", err)
	}
	return nil
}
