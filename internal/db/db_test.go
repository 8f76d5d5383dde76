package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	conn, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(path)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"documents", "runs", "answer_records"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestRecordsCascadeWithRun(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO runs (id, created_at, subject, mode, question_count, output_path) VALUES ('r1', 1, 'History', 'exam', 1, '/tmp/x.pdf');`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO answer_records (run_id, idx, question, answer) VALUES ('r1', 0, 'q', 'a');`)
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO runs (id, created_at, subject, mode, question_count, output_path) VALUES ('r2', 1, 'History', 'cram', 1, '/tmp/y.pdf');`)
	assert.Error(t, err)

	_, err = conn.Exec(`DELETE FROM runs WHERE id = 'r1';`)
	require.NoError(t, err)
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM answer_records;`).Scan(&n))
	assert.Zero(t, n)
}
