package scihub

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scihub-client/scihubtest"
)

func TestQuicklook(t *testing.T) {
	image := []byte("png bytes here")
	srv := scihubtest.New(t, &scihubtest.Product{
		ID:        "11112222-0000-0000-0000-000000000000",
		Title:     "S2A_TEST",
		Ingested:  time.Now(),
		Content:   []byte("archive"),
		Quicklook: image,
	})
	c := New("user", "pass", srv.URL)

	var buf bytes.Buffer
	require.NoError(t, c.Quicklook(context.Background(), "11112222-0000-0000-0000-000000000000", &buf))
	assert.Equal(t, image, buf.Bytes())
}

func TestDownloadQuicklook(t *testing.T) {
	image := []byte("png bytes here")
	fixture := &scihubtest.Product{
		ID:        "11112222-0000-0000-0000-000000000000",
		Title:     "S2A_TEST",
		Ingested:  time.Now(),
		Content:   []byte("archive"),
		Quicklook: image,
	}
	srv := scihubtest.New(t, fixture)
	c := New("user", "pass", srv.URL)
	dir := t.TempDir()

	path, err := c.DownloadQuicklook(context.Background(), fixture.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "S2A_TEST.png"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, image, got)

	// An image already on disk is kept, not refetched.
	again, err := c.DownloadQuicklook(context.Background(), fixture.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, srv.Quicklooks())
}

func TestDownloadQuicklookMissing(t *testing.T) {
	srv := scihubtest.New(t, &scihubtest.Product{
		ID:       "11112222-0000-0000-0000-000000000000",
		Title:    "S2A_TEST",
		Ingested: time.Now(),
		Content:  []byte("archive"),
	})
	c := New("user", "pass", srv.URL)
	dir := t.TempDir()

	_, err := c.DownloadQuicklook(context.Background(), "11112222-0000-0000-0000-000000000000", dir)
	apiErr := &APIError{}
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)

	// Neither the image nor a partial temp file is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
