package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
)

// WriteDirectory writes dir under root/<project name> and returns the paths
// written. File names must stay inside the project directory.
func WriteDirectory(root string, dir schema.ProjectDirectory) ([]string, error) {
	name := dir.ProjectName
	if name == "" {
		name = "project"
	}
	if !filepath.IsLocal(name) {
		return nil, concrete.NewValidationError("write", fmt.Sprintf("project name %q escapes the output directory", name), nil)
	}
	base := filepath.Join(root, name)

	written := make([]string, 0, len(dir.Files))
	for _, f := range dir.Files {
		if !filepath.IsLocal(f.FileName) {
			return written, concrete.NewValidationError("write", fmt.Sprintf("file name %q escapes the project directory", f.FileName), nil)
		}
		path := filepath.Join(base, f.FileName)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("create directory for %s: %w", f.FileName, err)
		}
		if err := os.WriteFile(path, []byte(f.FileContents), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", f.FileName, err)
		}
		written = append(written, path)
	}
	return written, nil
}
