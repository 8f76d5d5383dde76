package services

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"answergen/internal/db"
	"answergen/internal/llm"
	"answergen/internal/retry"
)

// scriptedProvider answers prompts through respond and records every call.
type scriptedProvider struct {
	mu      sync.Mutex
	prompts []string
	respond func(call int, prompt string) (string, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	call := len(p.prompts)
	p.mu.Unlock()
	return p.respond(call, prompt)
}

func (p *scriptedProvider) ReadImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	return "", llm.Classify(errors.New("vision not scripted"))
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// echoProvider answers every prompt with a short answer naming the question.
func echoProvider() *scriptedProvider {
	return &scriptedProvider{respond: func(call int, prompt string) (string, error) {
		q := prompt[strings.LastIndex(prompt, "QUESTION TO ANSWER:\n")+len("QUESTION TO ANSWER:\n"):]
		q = q[:strings.Index(q, "\n")]
		return "**Answer** to: " + q, nil
	}}
}

func rateLimited() error {
	return &llm.GenerationError{Kind: llm.RateLimited, StatusCode: 429, Err: errors.New("quota exceeded")}
}

// recordingSleep returns a Sleeper that records delays without waiting.
func recordingSleep(delays *[]time.Duration) retry.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func testPolicy(attempts int, delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
		Sleep:       recordingSleep(delays),
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func buildDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`},
		{"word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body.String() + `</w:body></w:document>`},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
