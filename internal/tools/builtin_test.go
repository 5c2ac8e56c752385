package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterBuiltins(registry, nil))
	assert.Equal(t, 4, registry.Len())

	names := make([]string, 0, 4)
	for _, schema := range registry.Schemas() {
		names = append(names, schema.Name)
	}
	assert.Equal(t, []string{"file_list", "file_read", "file_write", "http_request"}, names)
}

func TestFileReadTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	tool := &FileReadTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = tool.Execute(context.Background(), map[string]any{"file_path": filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestFileReadToolAllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	forbidden := t.TempDir()
	path := filepath.Join(forbidden, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o644))

	tool := &FileReadTool{allowedPaths: []string{allowed}}
	_, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	inside := filepath.Join(allowed, "ok.txt")
	require.NoError(t, os.WriteFile(inside, []byte("ok"), 0o644))
	out, err := tool.Execute(context.Background(), map[string]any{"file_path": inside})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestFileWriteTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.txt")

	tool := &FileWriteTool{}
	_, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path,
		"content":   "first",
	})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{
		"file_path": path,
		"content":   " second",
		"mode":      "append",
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first second", string(content))
}

func TestFileWriteToolIsUnsafe(t *testing.T) {
	tool := &FileWriteTool{}
	assert.False(t, tool.Schema().IsSafe)
	assert.Contains(t, tool.Schema().RequiredPermissions, PermFilesystemWrite)
}

func TestFileListTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.log"), nil, 0o644))

	tool := &FileListTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"directory": dir, "pattern": "*.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, out)

	_, err = tool.Execute(context.Background(), map[string]any{"directory": filepath.Join(dir, "nope")})
	assert.Error(t, err)
}

func TestHTTPRequestTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "value", r.Header.Get("X-Custom"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tool := &HTTPRequestTool{client: &http.Client{Timeout: time.Second}}
	out, err := tool.Execute(context.Background(), map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Custom": "value"},
	})
	require.NoError(t, err)

	resp, ok := out.(HTTPResponse)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"ok": true}, resp.Body)
}

func TestHTTPRequestToolConnectionFailure(t *testing.T) {
	tool := &HTTPRequestTool{client: &http.Client{Timeout: 100 * time.Millisecond}}
	out, err := tool.Execute(context.Background(), map[string]any{
		"url": "http://127.0.0.1:1/unreachable",
	})
	require.NoError(t, err, "transport failures are structured results, not errors")

	resp, ok := out.(HTTPResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
