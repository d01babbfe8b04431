package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomresearch/fathom/pkg/research"
)

func uploadFixture(t *testing.T, store FileStore, content, filename string) string {
	t.Helper()
	id, err := store.Upload(context.Background(), []byte(content), filename)
	require.NoError(t, err)
	return id
}

func TestParseHTMLExtractsTextAndAssets(t *testing.T) {
	page := `<html><head><title>Climate Report</title></head><body>
<h1>Findings</h1>
<p>Sea levels rose.</p>
<img src="https://x.example/chart.png" alt="sea level chart">
<a href="https://x.example/data.csv">dataset</a>
<a href="https://x.example/full.pdf">full report</a>
<script>ignore_me()</script>
</body></html>`

	store := NewMemoryFileStore()
	parser := NewLocalParser(store)
	id := uploadFixture(t, store, page, "upload_1.html")

	doc, err := parser.Parse(context.Background(), id, "https://x.example/report")
	require.NoError(t, err)

	assert.Equal(t, "https://x.example/report", doc.SourceURL)
	assert.Equal(t, "Climate Report", doc.Metadata["title"])
	assert.Contains(t, doc.Markdown, "Sea levels rose.")
	assert.NotContains(t, doc.Markdown, "ignore_me")

	require.Len(t, doc.Assets, 3)
	assert.Equal(t, research.AssetImage, doc.Assets[0].Type)
	assert.Equal(t, "sea level chart", doc.Assets[0].Description)
	assert.Equal(t, research.AssetTableCSV, doc.Assets[1].Type)
	assert.Equal(t, research.AssetFile, doc.Assets[2].Type)
	// Stable ids for analysis selection.
	assert.Equal(t, "asset-1", doc.Assets[0].ID)
	assert.Equal(t, "asset-3", doc.Assets[2].ID)
}

func TestParseCSVRendersMarkdownTable(t *testing.T) {
	store := NewMemoryFileStore()
	parser := NewLocalParser(store)
	id := uploadFixture(t, store, "year,level\n2020,10\n2021,12\n", "upload_2.csv")

	doc, err := parser.Parse(context.Background(), id, "https://x.example/data.csv")
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "| year | level |")
	assert.Contains(t, doc.Markdown, "| 2021 | 12 |")
	assert.Equal(t, "csv", doc.Metadata["format"])
}

func TestParseFilesCollectsFailures(t *testing.T) {
	store := NewMemoryFileStore()
	parser := NewLocalParser(store)
	goodID := uploadFixture(t, store, "<html><body><p>ok text</p></body></html>", "upload_3.html")

	docs, failed := parser.ParseFiles(context.Background(), []FileRef{
		{FileID: goodID, URL: "https://good.example"},
		{FileID: "missing-id", URL: "https://bad.example"},
	})

	require.Len(t, docs, 1)
	assert.Equal(t, "https://good.example", docs[0].SourceURL)
	assert.Equal(t, []string{"https://bad.example"}, failed)
}

func TestParseEmptyHTMLFails(t *testing.T) {
	store := NewMemoryFileStore()
	parser := NewLocalParser(store)
	id := uploadFixture(t, store, "<html><body><script>x()</script></body></html>", "upload_4.html")

	_, err := parser.Parse(context.Background(), id, "https://empty.example")
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestMemoryFileStoreRoundTrip(t *testing.T) {
	store := NewMemoryFileStore()

	id, err := store.Upload(context.Background(), []byte("payload"), "f.html")
	require.NoError(t, err)

	content, filename, err := store.Retrieve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
	assert.Equal(t, "f.html", filename)

	_, _, err = store.Retrieve(context.Background(), "nope")
	assert.Error(t, err)

	_, err = store.Upload(context.Background(), nil, "empty")
	assert.ErrorIs(t, err, ErrUploadFailed)
}

// uploadOnlyStore accepts uploads but cannot serve them back, like the cloud
// store.
type uploadOnlyStore struct {
	uploads int
}

func (s *uploadOnlyStore) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	s.uploads++
	return fmt.Sprintf("remote-%d", s.uploads), nil
}

func (s *uploadOnlyStore) Retrieve(ctx context.Context, fileID string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("retrieval not supported")
}

func TestMirrorStoreRetainsBytesForRetrieve(t *testing.T) {
	remote := &uploadOnlyStore{}
	store := NewMirrorStore(remote)

	id, err := store.Upload(context.Background(), []byte("<html>x</html>"), "f.html")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", id)
	assert.Equal(t, 1, remote.uploads)

	content, filename, err := store.Retrieve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "<html>x</html>", string(content))
	assert.Equal(t, "f.html", filename)

	_, _, err = store.Retrieve(context.Background(), "remote-2")
	assert.Error(t, err)
}
