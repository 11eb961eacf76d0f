package results

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRecorder(t *testing.T) (DataRecorder, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recording")
	recorder := NewRecorder(path)

	return recorder, path + ".sqlite3"
}

func TestRecorderCreatesDatabase(t *testing.T) {
	_, dbFile := setupRecorder(t)

	_, err := os.Stat(dbFile)
	assert.NoError(t, err)
}

func TestRecorderCreateTable(t *testing.T) {
	recorder, dbFile := setupRecorder(t)

	recorder.CreateTable("sweep_summaries", SweepSummaryEntry{})

	assert.Equal(t, []string{"sweep_summaries"}, recorder.ListTables())

	db, err := sql.Open("sqlite3", dbFile)
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' " +
			"AND name='sweep_summaries';").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "sweep_summaries", name)
}

func TestRecorderInsertAndFlush(t *testing.T) {
	recorder, dbFile := setupRecorder(t)

	recorder.CreateTable("bank_deltas", BankDeltaEntry{})

	for bank := 0; bank < 3; bank++ {
		recorder.InsertData("bank_deltas", BankDeltaEntry{
			RunID:         "test-run",
			VictimThreads: 2,
			Bank:          bank,
			Delta:         uint64(1000 + bank),
		})
	}

	recorder.Flush()

	db, err := sql.Open("sqlite3", dbFile)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM bank_deltas;").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var delta uint64
	err = db.QueryRow(
		"SELECT Delta FROM bank_deltas WHERE Bank = 2;").Scan(&delta)
	require.NoError(t, err)
	assert.Equal(t, uint64(1002), delta)
}

func TestRecorderRejectsUnknownTable(t *testing.T) {
	recorder, _ := setupRecorder(t)

	assert.Panics(t, func() {
		recorder.InsertData("missing", BankDeltaEntry{})
	})
}

func TestRecorderRejectsBadEntry(t *testing.T) {
	recorder, _ := setupRecorder(t)

	type badEntry struct {
		Values []int
	}

	assert.Panics(t, func() {
		recorder.CreateTable("bad", badEntry{})
	})
}
