package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"answergen/internal/compile"
	"answergen/internal/extract"
	"answergen/internal/llm"
	"answergen/internal/models"
	"answergen/internal/services"
)

const (
	maxMultipartMemory = 8 << 20  // 8 MB
	maxUploadSize      = 64 << 20 // 64 MB
)

type Server struct {
	router    *mux.Router
	pipeline  *services.Pipeline
	history   *services.HistoryService
	documents *services.DocumentService
	jobs      *JobManager
}

func NewServer(
	pipeline *services.Pipeline,
	history *services.HistoryService,
	documents *services.DocumentService,
	jobs *JobManager,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		pipeline:  pipeline,
		history:   history,
		documents: documents,
		jobs:      jobs,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the job worker until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.jobs.Run(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestLogger)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/subjects", s.handleSubjects).Methods(http.MethodGet)
	api.HandleFunc("/questions/preview", s.handlePreview).Methods(http.MethodPost)

	api.HandleFunc("/runs/jobs", s.handleCreateRunJob).Methods(http.MethodPost)
	api.HandleFunc("/runs/jobs/{id}", s.handleJobStatus).Methods(http.MethodGet)

	api.HandleFunc("/runs", s.handleCreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/document", s.handleRunDocument).Methods(http.MethodGet)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	modes := []map[string]string{
		{"value": string(models.ModeUnderstand), "label": models.ModeUnderstand.Label()},
		{"value": string(models.ModeExam), "label": models.ModeExam.Label()},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subjects": models.Subjects,
		"modes":    modes,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh, err := formFile(r, "file")
	if err != nil {
		writeFailure(w, err)
		return
	}
	format, err := formFormat(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	defer src.Close()

	prev, err := s.pipeline.Preview(r.Context(), fh.Filename, src, fh.Size, format)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := map[string]any{
		"sourceName":    fh.Filename,
		"format":        prev.Document.Format,
		"pages":         prev.Document.Pages,
		"ocr":           prev.Document.OCR,
		"pattern":       prev.Segments.Pattern,
		"lowConfidence": prev.Segments.LowConfidence,
		"questions":     prev.Segments.Questions,
	}
	if prev.Segments.LowConfidence {
		resp["warning"] = "Question numbering was not detected; the whole document will be treated as one question."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, err := s.parseRunForm(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	run, err := s.jobs.Do(r.Context(), in.doc.OriginalName, func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return s.execute(ctx, in, progress)
	})
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			s.discard(in.doc)
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCreateRunJob(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, err := s.parseRunForm(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	snapshot, err := s.jobs.Submit(in.doc.OriginalName, func(ctx context.Context, progress services.ProgressCallback) (*models.GenerationRun, error) {
		return s.execute(ctx, in, progress)
	})
	if err != nil {
		s.discard(in.doc)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.GetJob(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunDocument(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}

	f, err := os.Open(run.OutputPath)
	if err != nil {
		writeError(w, http.StatusGone, "answer document is no longer available")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeFailure(w, err)
		return
	}

	name := filepath.Base(run.OutputPath)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runForm is a validated run upload. The question file is already stored.
type runForm struct {
	doc          *models.Document
	format       models.Format
	subject      string
	mode         models.Mode
	customPrompt string
	notes        []extract.Source
}

func (s *Server) parseRunForm(r *http.Request) (*runForm, error) {
	subject := strings.TrimSpace(r.FormValue("subject"))
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", services.ErrInvalidRequest)
	}
	mode := models.ModeUnderstand
	if raw := r.FormValue("mode"); strings.TrimSpace(raw) != "" {
		m, err := models.ParseMode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
		}
		mode = m
	}

	fh, err := formFile(r, "file")
	if err != nil {
		return nil, err
	}
	format, err := formFormat(r)
	if err != nil {
		return nil, err
	}
	if format == "" {
		if format, err = detectUpload(fh); err != nil {
			return nil, err
		}
	}

	notes, err := readNotes(r.MultipartForm.File["notes"])
	if err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	doc, err := s.documents.Create(r.Context(), fh.Filename, format, src)
	if err != nil {
		return nil, fmt.Errorf("store upload %s: %w", fh.Filename, err)
	}

	return &runForm{
		doc:          doc,
		format:       format,
		subject:      subject,
		mode:         mode,
		customPrompt: strings.TrimSpace(r.FormValue("customPrompt")),
		notes:        notes,
	}, nil
}

// discard removes an upload whose run was never queued.
func (s *Server) discard(doc *models.Document) {
	if err := s.documents.Delete(context.Background(), doc); err != nil {
		log.Warn().Err(err).Int64("document_id", doc.ID).Msg("failed to remove rejected upload")
	}
}

func (s *Server) execute(ctx context.Context, in *runForm, progress services.ProgressCallback) (*models.GenerationRun, error) {
	f, size, err := s.documents.Open(in.doc)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return s.pipeline.Run(ctx, services.RunRequest{
		SourceName:   in.doc.OriginalName,
		Source:       f,
		Size:         size,
		Format:       in.format,
		Subject:      in.subject,
		Mode:         in.mode,
		CustomPrompt: in.customPrompt,
		Notes:        in.notes,
		DocumentID:   in.doc.ID,
	}, progress)
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return err
	}
	if r.MultipartForm == nil {
		return errors.New("missing multipart form")
	}
	return nil
}

func formFile(r *http.Request, field string) (*multipart.FileHeader, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s uploaded", services.ErrInvalidRequest, field)
	}
	return files[0], nil
}

func formFormat(r *http.Request) (models.Format, error) {
	raw := strings.TrimSpace(r.FormValue("format"))
	if raw == "" {
		return "", nil
	}
	f, ok := extract.ParseFormat(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown format %q", services.ErrInvalidRequest, raw)
	}
	return f, nil
}

func detectUpload(fh *multipart.FileHeader) (models.Format, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	head := make([]byte, 16)
	n, _ := io.ReadFull(src, head)
	return extract.DetectFormat(fh.Filename, head[:n])
}

// readNotes copies reference files into memory so they outlive the request form.
func readNotes(files []*multipart.FileHeader) ([]extract.Source, error) {
	notes := make([]extract.Source, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open notes %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("read notes %s: %w", fh.Filename, err)
		}
		notes = append(notes, extract.Source{Name: fh.Filename, R: bytes.NewReader(data), Size: int64(len(data))})
	}
	return notes, nil
}

// errorResponse maps a pipeline error to a status code, message and optional guidance.
func errorResponse(err error) (int, string, string) {
	var (
		extErr  *extract.ExtractionError
		genErr  *llm.GenerationError
		compErr *compile.CompilationError
	)
	switch {
	case errors.As(err, &extErr):
		return http.StatusUnprocessableEntity, extErr.Error(), extErr.Guidance
	case errors.Is(err, services.ErrNoQuestions):
		return http.StatusUnprocessableEntity, err.Error(), "Check that the document contains readable question text."
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error(), ""
	case errors.Is(err, services.ErrRunNotFound):
		return http.StatusNotFound, err.Error(), ""
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable, err.Error(), "Wait for the current runs to finish and try again."
	case errors.As(err, &genErr) && genErr.Kind == llm.Fatal && !errors.Is(err, context.Canceled):
		return http.StatusBadGateway, err.Error(), "Check the API key and model configuration of the generation service."
	case errors.As(err, &compErr):
		return http.StatusInternalServerError, err.Error(), "Set PDF_UNICODE_FONT to a TrueType font if the answers use non-Latin scripts."
	default:
		return http.StatusInternalServerError, err.Error(), ""
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status, msg, guidance := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	body := map[string]string{"error": msg}
	if guidance != "" {
		body["guidance"] = guidance
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
