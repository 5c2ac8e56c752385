package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Filesystem permission names checked by the runner.
const (
	PermFilesystemRead  = "filesystem:read"
	PermFilesystemWrite = "filesystem:write"
	PermNetwork         = "network"
)

const httpToolTimeout = 30 * time.Second

// RegisterBuiltins registers the built-in file and HTTP tools.
// allowedPaths restricts file access; empty means unrestricted.
func RegisterBuiltins(registry *Registry, allowedPaths []string) error {
	builtins := []Tool{
		&FileReadTool{allowedPaths: allowedPaths},
		&FileWriteTool{allowedPaths: allowedPaths},
		&FileListTool{},
		&HTTPRequestTool{client: &http.Client{Timeout: httpToolTimeout}},
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// pathAllowed reports whether path falls under one of the allowed
// roots. An empty allow-list means no restriction.
func pathAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range allowed {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, resolved)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// FileReadTool reads a file from the local filesystem.
type FileReadTool struct {
	allowedPaths []string
}

func (t *FileReadTool) Schema() Schema {
	return Schema{
		Name:        "file_read",
		Description: "Read content from a file",
		Parameters: map[string]Param{
			"file_path": {Type: "string", Description: "Path to the file to read", Required: true},
		},
		RequiredPermissions: []string{PermFilesystemRead},
		IsSafe:              true,
	}
}

func (t *FileReadTool) ValidateParameters(params map[string]any) error {
	return ValidateRequired(t.Schema(), params)
}

func (t *FileReadTool) Execute(_ context.Context, params map[string]any) (any, error) {
	path, _ := params["file_path"].(string)
	if !pathAllowed(path, t.allowedPaths) {
		return nil, fmt.Errorf("%w: access to %s not allowed", ErrPermissionDenied, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return string(content), nil
}

// FileWriteTool writes or appends to a file, creating parent
// directories as needed.
type FileWriteTool struct {
	allowedPaths []string
}

func (t *FileWriteTool) Schema() Schema {
	return Schema{
		Name:        "file_write",
		Description: "Write content to a file",
		Parameters: map[string]Param{
			"file_path": {Type: "string", Description: "Path to the file to write", Required: true},
			"content":   {Type: "string", Description: "Content to write to the file", Required: true},
			"mode":      {Type: "string", Description: "Write mode: 'write' or 'append'"},
		},
		RequiredPermissions: []string{PermFilesystemWrite},
		IsSafe:              false, // modifies system state
	}
}

func (t *FileWriteTool) ValidateParameters(params map[string]any) error {
	return ValidateRequired(t.Schema(), params)
}

func (t *FileWriteTool) Execute(_ context.Context, params map[string]any) (any, error) {
	path, _ := params["file_path"].(string)
	content, _ := params["content"].(string)
	if !pathAllowed(path, t.allowedPaths) {
		return nil, fmt.Errorf("%w: write access to %s not allowed", ErrPermissionDenied, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error writing file: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode, _ := params["mode"].(string); mode == "append" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error writing file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return nil, fmt.Errorf("error writing file: %w", err)
	}
	return fmt.Sprintf("Successfully wrote to %s", path), nil
}

// FileListTool lists directory contents matching a glob pattern.
type FileListTool struct{}

func (t *FileListTool) Schema() Schema {
	return Schema{
		Name:        "file_list",
		Description: "List files and directories in a path",
		Parameters: map[string]Param{
			"directory": {Type: "string", Description: "Directory path to list", Required: true},
			"pattern":   {Type: "string", Description: "Glob pattern to filter files"},
		},
		RequiredPermissions: []string{PermFilesystemRead},
		IsSafe:              true,
	}
}

func (t *FileListTool) ValidateParameters(params map[string]any) error {
	return ValidateRequired(t.Schema(), params)
}

func (t *FileListTool) Execute(_ context.Context, params map[string]any) (any, error) {
	directory, _ := params["directory"].(string)
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}

	info, err := os.Stat(directory)
	if err != nil {
		return nil, fmt.Errorf("error listing directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("error listing directory: not a directory: %s", directory)
	}

	matches, err := filepath.Glob(filepath.Join(directory, pattern))
	if err != nil {
		return nil, fmt.Errorf("error listing directory: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(directory, match)
		if err != nil {
			continue
		}
		names = append(names, rel)
	}
	sort.Strings(names)
	return names, nil
}

// HTTPResponse is the structured result of an HTTP request.
type HTTPResponse struct {
	StatusCode int    `json:"status_code"`
	Body       any    `json:"body"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// HTTPRequestTool makes HTTP requests to external APIs. Transport
// failures produce a structured unsuccessful response rather than an
// error, so the caller always gets a result to reason about.
type HTTPRequestTool struct {
	client *http.Client
}

func (t *HTTPRequestTool) Schema() Schema {
	return Schema{
		Name:        "http_request",
		Description: "Make HTTP requests to APIs",
		Parameters: map[string]Param{
			"url":     {Type: "string", Description: "URL to request", Required: true},
			"method":  {Type: "string", Description: "HTTP method (GET, POST, PUT, DELETE)"},
			"headers": {Type: "object", Description: "HTTP headers"},
			"data":    {Type: "object", Description: "Request body data"},
		},
		RequiredPermissions: []string{PermNetwork},
		IsSafe:              true,
	}
}

func (t *HTTPRequestTool) ValidateParameters(params map[string]any) error {
	return ValidateRequired(t.Schema(), params)
}

func (t *HTTPRequestTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	url, _ := params["url"].(string)
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if data, ok := params["data"]; ok && data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: data is not serializable", ErrInvalidParameters)
		}
		body = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.Header.Set(key, fmt.Sprint(value))
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return HTTPResponse{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return HTTPResponse{StatusCode: resp.StatusCode, Success: false, Error: err.Error()}, nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}
	return HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       parsed,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}
