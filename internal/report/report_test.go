package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msneto/crawler-to-md/internal/storage"
)

func strptr(s string) *string { return &s }

func seededStore(t *testing.T) *storage.MemStore {
	t.Helper()
	store := storage.NewMemStore()
	_, err := store.InsertLinks([]string{
		"https://example.com/ok",
		"https://example.com/failed",
		"https://example.com/pending",
	}, false)
	require.NoError(t, err)

	require.NoError(t, store.CommitCrawlBatch(&storage.CrawlBatch{
		Pages: []*storage.Page{
			{
				URL:      "https://example.com/ok",
				Content:  strptr("hello world"),
				Metadata: `{"title":"OK"}`,
			},
			{
				URL:      "https://example.com/failed",
				Metadata: `{"scrape_status":"failed","error_type":"NetworkError","error_message":"timeout"}`,
			},
		},
		Visited:         []string{"https://example.com/ok", "https://example.com/failed"},
		RetryIncrements: []string{"https://example.com/failed"},
	}))
	return store
}

func TestWriteCSV(t *testing.T) {
	store := seededStore(t)
	path := filepath.Join(t.TempDir(), "report.csv")

	require.NoError(t, Write(store, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "CSV starts with a BOM")

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4, "header plus one row per link")

	assert.Equal(t, columns, records[0])
	assert.Equal(t, []string{
		"https://example.com/ok", "yes", "0", "yes", "OK", "11", "",
	}, records[1])
	assert.Equal(t, []string{
		"https://example.com/failed", "yes", "1", "no", "", "0", "NetworkError",
	}, records[2])
	assert.Equal(t, []string{
		"https://example.com/pending", "no", "0", "no", "", "0", "",
	}, records[3])
}

func TestWriteXLSX(t *testing.T) {
	store := seededStore(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")

	require.NoError(t, Write(store, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteUnsupportedFormat(t *testing.T) {
	store := seededStore(t)
	err := Write(store, filepath.Join(t.TempDir(), "report.txt"))
	assert.Error(t, err)
}
