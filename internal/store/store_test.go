package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestRun(t *testing.T, s *Store, digest string) *Run {
	t.Helper()
	r := &Run{
		StartedAt:  time.Now().Truncate(time.Second),
		InputRoot:  "/src/project",
		OutputRoot: "/out/project",
		MapDigest:  digest,
		Files:      2,
		Symbols:    3,
	}
	id, err := s.InsertRun(r)
	require.NoError(t, err)
	require.Positive(t, id)
	return r
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"runs", "mappings", "files"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_BadPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "ledger.db"))
	require.Error(t, err)
}

// =============================================================================
// Runs
// =============================================================================

func TestRuns_OrderAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := insertTestRun(t, s, "00000000000000aa")
	second := insertTestRun(t, s, "00000000000000bb")

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	latest, err = s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "00000000000000bb", latest.MapDigest)
	assert.Equal(t, "/src/project", latest.InputRoot)
	assert.Equal(t, 3, latest.Symbols)
	assert.True(t, latest.StartedAt.Equal(second.StartedAt))

	got, err := s.RunByID(first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "00000000000000aa", got.MapDigest)

	missing, err := s.RunByID(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// Mappings
// =============================================================================

func TestMappings_RoundTripAndReveal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := insertTestRun(t, s, "d")

	require.NoError(t, s.InsertMappings(run.ID, []Mapping{
		{Original: "value", Generated: "c", LikelyLocal: true},
		{Original: "Greeter", Generated: "a"},
		{Original: "greet", Generated: "b"},
	}))

	got, err := s.Mappings(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Greeter", got[0].Original)
	assert.Equal(t, "a", got[0].Generated)
	assert.Equal(t, "value", got[2].Original)
	assert.True(t, got[2].LikelyLocal)
	assert.False(t, got[0].LikelyLocal)

	revealed, err := s.Reveal(run.ID, "a", "c", "zz")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "Greeter", "c": "value"}, revealed)

	empty, err := s.Reveal(run.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMappings_GeneratedUniquePerRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := insertTestRun(t, s, "d")

	err := s.InsertMappings(run.ID, []Mapping{
		{Original: "x", Generated: "a"},
		{Original: "y", Generated: "a"},
	})
	require.Error(t, err)

	got, err := s.Mappings(run.ID)
	require.NoError(t, err)
	assert.Empty(t, got, "failed batch should roll back")
}

func TestMappings_ScopedToRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	r1 := insertTestRun(t, s, "1")
	r2 := insertTestRun(t, s, "2")

	require.NoError(t, s.InsertMappings(r1.ID, []Mapping{{Original: "x", Generated: "a"}}))
	require.NoError(t, s.InsertMappings(r2.ID, []Mapping{{Original: "y", Generated: "a"}}))

	revealed, err := s.Reveal(r2.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, "y", revealed["a"])
}

// =============================================================================
// Files & commit
// =============================================================================

func TestFileResults(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := insertTestRun(t, s, "d")

	require.NoError(t, s.InsertFileResult(&FileResult{
		RunID: run.ID, Path: "pkg/b.py", SourceHash: ContentHash([]byte("x")),
		Error: "parse: syntax error",
	}))
	require.NoError(t, s.InsertFileResult(&FileResult{
		RunID: run.ID, Path: "pkg/a.py", SourceHash: ContentHash([]byte("y")),
		OutputHash: ContentHash([]byte("z")), Changed: true, SymbolsRenamed: 4,
		LikelyLocalRewrites: 1, DynamicNameRewrites: 1,
	}))

	got, err := s.FileResults(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pkg/a.py", got[0].Path)
	assert.True(t, got[0].Changed)
	assert.Equal(t, 4, got[0].SymbolsRenamed)
	assert.Equal(t, ContentHash([]byte("z")), got[0].OutputHash)
	assert.Empty(t, got[0].Error)
	assert.Empty(t, got[1].OutputHash)
	assert.Equal(t, "parse: syntax error", got[1].Error)
}

func TestCommitRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	run := &Run{StartedAt: time.Now(), InputRoot: "in", OutputRoot: "out", MapDigest: "d", Files: 1, Symbols: 1}
	id, err := s.CommitRun(run,
		[]Mapping{{Original: "helper", Generated: "a"}},
		[]FileResult{{Path: "m.py", SourceHash: "h1", OutputHash: "h2", Changed: true}},
	)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	mappings, err := s.Mappings(id)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, id, mappings[0].RunID)

	files, err := s.FileResults(id)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, id, files[0].RunID)
}

func TestCommitRun_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.CommitRun(&Run{StartedAt: time.Now(), MapDigest: "d"},
		nil,
		[]FileResult{{Path: "m.py", SourceHash: "h"}, {Path: "m.py", SourceHash: "h"}},
	)
	require.Error(t, err)

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.Len(t, ContentHash([]byte("x = 1\n")), 64)
}
