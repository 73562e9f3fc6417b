package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *VocabularyCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewVocabularyCache(client, "test:", time.Minute)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadPIDsKeepsNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids.json")
	writeFile(t, path, `[1234567890123, "p2", 7]`)

	pids, err := NewFileStore().LoadPIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890123", "p2", "7"}, pids)
}

func TestLoadVocabularyFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vocabulary.json"), `{"[PAD]": 0, "DIAG_A": 1}`)

	vocab, err := NewFileStore().LoadVocabulary(context.Background(),
		filepath.Join(dir, "tokenized", "vocabulary.json"),
		filepath.Join(dir, "vocabulary.json"),
	)
	require.NoError(t, err)
	assert.Equal(t, patientdata.Vocabulary{"[PAD]": 0, "DIAG_A": 1}, vocab)

	_, err = NewFileStore().LoadVocabulary(context.Background(), filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadVocabularyUsesCache(t *testing.T) {
	mr, cache := setupTestRedis(t)
	path := filepath.Join(t.TempDir(), "vocabulary.json")
	writeFile(t, path, `{"[PAD]": 0, "DIAG_A": 1}`)

	store := NewFileStore(WithVocabularyCache(cache))
	_, err := store.LoadVocabulary(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:vocabulary:"+path))

	// served from Redis once the file is gone
	require.NoError(t, os.Remove(path))
	vocab, err := store.LoadVocabulary(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, vocab["DIAG_A"])

	require.NoError(t, cache.Invalidate(context.Background(), path))
	_, err = store.LoadVocabulary(context.Background(), path)
	assert.Error(t, err)
}

func TestVocabularyCacheExpires(t *testing.T) {
	mr, cache := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "v.json", patientdata.Vocabulary{"A": 1}))
	vocab, ok, err := cache.Get(ctx, "v.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, patientdata.Vocabulary{"A": 1}, vocab)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "v.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadOutcomeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.json")
	writeFile(t, path, `{"PID": [1, 2], "DEATH": [null, 12.5]}`)

	table, err := NewFileStore().LoadOutcomeTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, table.PIDs)
	assert.Equal(t, []patientdata.Outcome{patientdata.Missing, patientdata.Present(12.5)}, table.Columns["DEATH"])
}

func TestSaveJSONCreatesDirectories(t *testing.T) {
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "run", "nested", "outcomes.json")
	require.NoError(t, store.SaveJSON(path, []patientdata.Outcome{patientdata.Present(3), patientdata.Missing}))

	outcomes, err := store.LoadOutcomes(path)
	require.NoError(t, err)
	assert.Equal(t, []patientdata.Outcome{patientdata.Present(3), patientdata.Missing}, outcomes)
}

func TestSequenceLengthsParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lengths", "sequence_lengths_val.parquet")
	rows := []SequenceLengthRow{
		{PID: "p1", Length: 12, Positive: true},
		{PID: "p2", Length: 512},
	}
	require.NoError(t, NewFileStore().WriteSequenceLengths(path, rows))

	read, err := ReadSequenceLengths(path)
	require.NoError(t, err)
	assert.Equal(t, rows, read)
}

func TestWritePatientCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patient_nums.csv")
	require.NoError(t, NewFileStore().WritePatientCounts(path, []PatientCount{
		{Split: "train", Total: 100, Positive: 12},
		{Split: "val", Total: 20, Positive: 5},
	}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Patient Group", "train", "val"},
		{"total", "100", "20"},
		{"positive", "12", "5"},
	}, records)
}
