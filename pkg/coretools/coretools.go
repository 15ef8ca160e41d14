package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/toolgate/toolgate/pkg/tool"
)

// Options configures core tool registration.
type Options struct {
	// WorkspaceRoot bounds every filesystem tool. Paths resolving
	// outside it are rejected before any I/O happens.
	WorkspaceRoot string

	// HTTPClient serves http_get. Nil selects a client with a 15s
	// timeout.
	HTTPClient *http.Client

	// Config backs the configuration tools. Nil creates an empty
	// in-memory store.
	Config *ConfigStore
}

// RegisterCoreTools registers the baseline tool set: system
// introspection, workspace file access, HTTP fetch and runtime
// configuration.
func RegisterCoreTools(registry *tool.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	if strings.TrimSpace(opts.WorkspaceRoot) == "" {
		return errors.New("workspace root is required")
	}
	opts.WorkspaceRoot = filepath.Clean(opts.WorkspaceRoot)
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Config == nil {
		opts.Config = NewConfigStore(nil)
	}

	tools := []tool.Definition{
		systemInfoTool(),
		readFileTool(opts),
		listDirectoryTool(opts),
		writeFileTool(opts),
		deleteFileTool(opts),
		httpGetTool(opts),
		getConfigValueTool(opts),
		setConfigValueTool(opts),
	}

	for _, def := range tools {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func systemInfoTool() tool.Definition {
	return tool.Definition{
		Name:               "get_system_info",
		Description:        "Report the host operating system, architecture and process details.",
		Category:           tool.CategoryInformation,
		RequiredPermission: tool.LevelRead,
		Handler: func(_ context.Context, _ *tool.ExecutionContext) (interface{}, error) {
			hostname, _ := os.Hostname()
			wd, _ := os.Getwd()
			return map[string]interface{}{
				"os":          runtime.GOOS,
				"arch":        runtime.GOARCH,
				"go_version":  runtime.Version(),
				"num_cpu":     runtime.NumCPU(),
				"hostname":    hostname,
				"working_dir": wd,
				"pid":         os.Getpid(),
			}, nil
		},
	}
}

func readFileTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "read_file",
		Description:        "Read a file from the workspace.",
		Category:           tool.CategoryFileSystem,
		RequiredPermission: tool.LevelUser,
		Parameters: []tool.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "max_bytes", Type: "number", Description: "Maximum bytes to read (default 200000)", Default: 200000},
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			pathValue := execCtx.StringParam("path", "")
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			maxBytes := int64(200000)
			if raw, ok := execCtx.Params["max_bytes"].(float64); ok && raw > 0 {
				maxBytes = int64(raw)
			} else if raw, ok := execCtx.Params["max_bytes"].(int); ok && raw > 0 {
				maxBytes = int64(raw)
			}

			data, truncated, err := readFileWithLimit(target, maxBytes)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":      pathValue,
				"content":   string(data),
				"truncated": truncated,
				"bytes":     len(data),
			}, nil
		},
	}
}

func listDirectoryTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "list_directory",
		Description:        "List entries in a workspace directory.",
		Category:           tool.CategoryFileSystem,
		RequiredPermission: tool.LevelUser,
		Parameters: []tool.Parameter{
			{Name: "path", Type: "string", Description: "Relative directory path (default workspace root)"},
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			pathValue := execCtx.StringParam("path", ".")
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			entries, err := os.ReadDir(target)
			if err != nil {
				return nil, err
			}

			listing := make([]map[string]interface{}, 0, len(entries))
			for _, entry := range entries {
				item := map[string]interface{}{
					"name":   entry.Name(),
					"is_dir": entry.IsDir(),
				}
				if info, err := entry.Info(); err == nil {
					item["size"] = info.Size()
					item["modified"] = info.ModTime().UTC().Format(time.RFC3339)
				}
				listing = append(listing, item)
			}

			return map[string]interface{}{
				"path":    pathValue,
				"entries": listing,
				"count":   len(listing),
			}, nil
		},
	}
}

func writeFileTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "write_file",
		Description:        "Write content to a file in the workspace.",
		Category:           tool.CategoryFileSystem,
		RequiredPermission: tool.LevelUser,
		RequiresApproval:   true,
		IsModifying:        true,
		Parameters: []tool.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
			{Name: "content", Type: "string", Description: "File content", Required: true},
			{Name: "append", Type: "boolean", Description: "Append to file (default false)"},
		},
		Previewer: func(params map[string]interface{}) string {
			path, _ := params["path"].(string)
			content, _ := params["content"].(string)
			if appendMode, _ := params["append"].(bool); appendMode {
				return fmt.Sprintf("append %d bytes to %s", len(content), path)
			}
			return fmt.Sprintf("write %d bytes to %s", len(content), path)
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			pathValue := execCtx.StringParam("path", "")
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}
			content := execCtx.StringParam("content", "")
			appendMode, _ := execCtx.Params["append"].(bool)

			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}

			flag := os.O_CREATE | os.O_WRONLY
			if appendMode {
				flag |= os.O_APPEND
			} else {
				flag |= os.O_TRUNC
			}
			file, err := os.OpenFile(target, flag, 0644)
			if err != nil {
				return nil, err
			}
			if _, err := file.WriteString(content); err != nil {
				file.Close()
				return nil, err
			}
			if err := file.Close(); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":   pathValue,
				"bytes":  len(content),
				"append": appendMode,
			}, nil
		},
	}
}

func deleteFileTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "delete_file",
		Description:        "Delete a file from the workspace.",
		Category:           tool.CategoryFileSystem,
		RequiredPermission: tool.LevelElevated,
		RequiresApproval:   true,
		IsModifying:        true,
		Parameters: []tool.Parameter{
			{Name: "path", Type: "string", Description: "Relative file path", Required: true},
		},
		Previewer: func(params map[string]interface{}) string {
			path, _ := params["path"].(string)
			return fmt.Sprintf("delete file %s", path)
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			pathValue := execCtx.StringParam("path", "")
			target, err := resolvePathInWorkspace(opts.WorkspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			info, err := os.Stat(target)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", pathValue)
			}
			if err := os.Remove(target); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":    pathValue,
				"deleted": true,
			}, nil
		},
	}
}

func httpGetTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "http_get",
		Description:        "Fetch a URL over HTTP GET and return status and body.",
		Category:           tool.CategoryNetwork,
		RequiredPermission: tool.LevelUser,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Format: tool.FormatURL, Description: "URL to fetch (http or https)", Required: true},
			{Name: "max_bytes", Type: "number", Description: "Maximum response bytes to return (default 100000)", Default: 100000},
		},
		Handler: func(ctx context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			url := strings.TrimSpace(execCtx.StringParam("url", ""))
			if url == "" {
				return nil, errors.New("url is required")
			}
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return nil, fmt.Errorf("unsupported URL scheme in %q", url)
			}

			maxBytes := int64(100000)
			if raw, ok := execCtx.Params["max_bytes"].(float64); ok && raw > 0 {
				maxBytes = int64(raw)
			} else if raw, ok := execCtx.Params["max_bytes"].(int); ok && raw > 0 {
				maxBytes = int64(raw)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}

			resp, err := opts.HTTPClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"url":          url,
				"status":       resp.StatusCode,
				"content_type": resp.Header.Get("Content-Type"),
				"body":         string(body),
				"bytes":        len(body),
			}, nil
		},
	}
}

func getConfigValueTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "get_config_value",
		Description:        "Read a value from the runtime configuration store.",
		Category:           tool.CategoryConfiguration,
		RequiredPermission: tool.LevelElevated,
		Parameters: []tool.Parameter{
			{Name: "key", Type: "string", Description: "Configuration key", Required: true},
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			key := strings.TrimSpace(execCtx.StringParam("key", ""))
			if key == "" {
				return nil, errors.New("key is required")
			}

			value, ok := opts.Config.Get(key)
			return map[string]interface{}{
				"key":    key,
				"value":  value,
				"exists": ok,
			}, nil
		},
	}
}

func setConfigValueTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:               "set_config_value",
		Description:        "Set a value in the runtime configuration store.",
		Category:           tool.CategoryConfiguration,
		RequiredPermission: tool.LevelElevated,
		RequiresApproval:   true,
		IsModifying:        true,
		Parameters: []tool.Parameter{
			{Name: "key", Type: "string", Description: "Configuration key", Required: true},
			{Name: "value", Type: "string", Description: "New value", Required: true},
		},
		Previewer: func(params map[string]interface{}) string {
			key, _ := params["key"].(string)
			value, _ := params["value"].(string)
			return fmt.Sprintf("set configuration %s = %q", key, value)
		},
		Handler: func(_ context.Context, execCtx *tool.ExecutionContext) (interface{}, error) {
			key := strings.TrimSpace(execCtx.StringParam("key", ""))
			if key == "" {
				return nil, errors.New("key is required")
			}
			value, ok := execCtx.Params["value"].(string)
			if !ok {
				return nil, errors.New("value is required")
			}

			previous, existed := opts.Config.Get(key)
			opts.Config.Set(key, value)

			result := map[string]interface{}{
				"key":   key,
				"value": value,
			}
			if existed {
				result["previous"] = previous
			}
			return result, nil
		},
	}
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if limit <= 0 {
		limit = 200000
	}
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	truncated := false
	extra := make([]byte, 1)
	if _, err := file.Read(extra); err == nil {
		truncated = true
	}
	return buf.Bytes(), truncated, nil
}

func resolvePathInWorkspace(workspaceRoot, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", errors.New("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(workspaceRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(workspaceRoot, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside workspace root", pathValue)
	}
	return candidate, nil
}

// sortedKeys is used by ConfigStore.Keys; kept here so the store file
// stays focused on synchronization.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
