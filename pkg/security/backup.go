package security

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileBackupper copies files referenced by tool parameters into a
// per-backup directory under the data dir, and copies them back on
// restore. It supplies the concrete backup mechanics the security
// manager delegates.
type FileBackupper struct {
	backupDir string
}

// NewFileBackupper creates a backupper rooted at dir.
func NewFileBackupper(dir string) (*FileBackupper, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &FileBackupper{backupDir: dir}, nil
}

// pathParamNames are the conventional parameter names carrying file
// paths in built-in tools.
var pathParamNames = []string{"path", "file_path", "filePath", "target", "destination"}

// CandidatePaths extracts existing file paths from a parameter map.
func CandidatePaths(params map[string]interface{}) []string {
	paths := []string{}
	for _, name := range pathParamNames {
		value, ok := params[name].(string)
		if !ok || value == "" {
			continue
		}
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			paths = append(paths, value)
		}
	}
	return paths
}

// Capture copies the given files into the backup's directory. Returns
// the list of captured files; a backup with nothing to capture is still
// valid (nothing existed to preserve yet).
func (b *FileBackupper) Capture(backupID string, files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	dir := filepath.Join(b.backupDir, backupID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	captured := []string{}
	for i, src := range files {
		dst := filepath.Join(dir, fmt.Sprintf("%d_%s", i, filepath.Base(src)))
		if err := copyFile(src, dst); err != nil {
			return captured, fmt.Errorf("failed to back up %s: %w", src, err)
		}
		captured = append(captured, src)
	}

	log.Debug().Str("backup_id", backupID).Int("files", len(captured)).Msg("Backup captured")
	return captured, nil
}

// Restore copies captured files back to their original locations.
func (b *FileBackupper) Restore(info *BackupInfo) error {
	dir := filepath.Join(b.backupDir, info.BackupID)
	for i, original := range info.Files {
		src := filepath.Join(dir, fmt.Sprintf("%d_%s", i, filepath.Base(original)))
		if err := copyFile(src, original); err != nil {
			return fmt.Errorf("failed to restore %s: %w", original, err)
		}
	}

	log.Info().Str("backup_id", info.BackupID).Int("files", len(info.Files)).Msg("Backup restored")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
