package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini_hdfs_project/frontend"
	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// memFiles is an in-memory namenode behind the real HTTP router.
type memFiles struct {
	files map[string][]byte
}

func (m *memFiles) Upload(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.UploadResult{}, err
	}
	m.files[filename] = data
	ids := []string{}
	for i := 0; i < len(data); i += 4 {
		ids = append(ids, helper.NewChunkID())
	}
	return models.UploadResult{Filename: filename, Size: int64(len(data)), ChunkIDs: ids}, nil
}

func (m *memFiles) Download(ctx context.Context, filename string) ([]byte, error) {
	data, ok := m.files[filename]
	if !ok {
		return nil, errors.Wrapf(helper.ErrFileNotFound, "%q", filename)
	}
	return data, nil
}

func (m *memFiles) Status() models.ClusterStatus {
	files := make(map[string][]string)
	for name := range m.files {
		files[name] = []string{}
	}
	return models.ClusterStatus{DataNodes: []models.NodeStatus{}, Files: files, Chunks: map[string][]string{}}
}

func newTestClient(t *testing.T) (*Client, *memFiles) {
	files := &memFiles{files: make(map[string][]byte)}
	srv := httptest.NewServer(frontend.NewServer(files).Router())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), files
}

func TestNewClientAddressForms(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:5000", NewClient("10.0.0.5").BaseURL)
	assert.Equal(t, "http://10.0.0.5:8080", NewClient("10.0.0.5:8080").BaseURL)
	assert.Equal(t, "https://nn.example", NewClient("https://nn.example/").BaseURL)
}

func TestUploadAndDownload(t *testing.T) {
	c, files := newTestClient(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello, world"), 0644))

	result, err := c.UploadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", result.Filename)
	assert.EqualValues(t, 12, result.Size)
	assert.Len(t, result.ChunkIDs, 3)
	assert.Equal(t, []byte("hello, world"), files.files["hello.txt"])

	data, err := c.Download("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello, world"), data)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Contains(t, status.Files, "hello.txt")
}

func TestDownloadFileNeverOverwrites(t *testing.T) {
	c, files := newTestClient(t)
	files.files["report.txt"] = []byte("remote copy")
	dir := t.TempDir()
	target := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(target, []byte("local original"), 0644))

	written, err := c.DownloadFile("report.txt", target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_copy.txt"), written)

	original, _ := os.ReadFile(target)
	assert.Equal(t, "local original", string(original))
	copied, _ := os.ReadFile(written)
	assert.Equal(t, "remote copy", string(copied))
}

func TestDownloadUnknownFile(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Download("ghost.bin")
	assert.ErrorIs(t, err, helper.ErrFileNotFound)

	_, err = c.DownloadFile("ghost.bin", filepath.Join(t.TempDir(), "ghost.bin"))
	assert.ErrorIs(t, err, helper.ErrFileNotFound)
}

func TestServerErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing chunk 1234", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Download("f")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "missing chunk 1234")
}

func TestUploadMissingLocalFile(t *testing.T) {
	c, files := newTestClient(t)
	_, err := c.UploadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.Empty(t, files.files)
}
