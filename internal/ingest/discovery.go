package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// defaultSkipDirs are never descended into regardless of ignore files,
// since they hold generated code, dependencies or version-control data
// that is never worth embedding.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// DiscoveryOptions controls which files under a root are eligible for
// ingestion.
type DiscoveryOptions struct {
	// IncludePatterns restricts eligible files to those matching at least
	// one glob pattern (against basename or root-relative path). Empty
	// means every file is eligible, subject to excludes and size.
	IncludePatterns []string
	// ExcludePatterns takes precedence over IncludePatterns.
	ExcludePatterns []string
	// MaxFileSize rejects files larger than this many bytes. Zero means
	// the package default of 1MB.
	MaxFileSize int64
}

const defaultMaxFileSize = 1024 * 1024

// DiscoveredFile is one file selected for ingestion.
type DiscoveredFile struct {
	// AbsPath is the file's absolute path, for reading content.
	AbsPath string
	// RelPath is the path relative to the walked root, used as the
	// stable identifier chunk IDs are derived from.
	RelPath string
	Size    int64
}

// Discover walks root and returns every file eligible for ingestion:
// readable, within the size limit, valid UTF-8, and passing the include
// and exclude filters. Directories in defaultSkipDirs are never descended.
func Discover(root string, opts DiscoveryOptions) ([]DiscoveredFile, error) {
	cleanRoot, err := validateRoot(root)
	if err != nil {
		return nil, err
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}

	var files []DiscoveredFile
	err = filepath.Walk(cleanRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if defaultSkipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(cleanRoot, path)
		if err != nil {
			return fmt.Errorf("ingest: computing relative path for %s: %w", path, err)
		}

		if !shouldIngest(relPath, info, opts) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			// Unreadable files are skipped, not fatal to the whole walk.
			return nil
		}
		if !utf8.Valid(content) {
			return nil
		}
		if strings.TrimSpace(string(content)) == "" {
			return nil
		}

		files = append(files, DiscoveredFile{AbsPath: path, RelPath: relPath, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walking %s: %w", cleanRoot, err)
	}
	return files, nil
}

func validateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("ingest: root path cannot be empty")
	}
	clean := filepath.Clean(root)
	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("ingest: stat %s: %w", clean, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("ingest: root must be a directory: %s", clean)
	}
	return clean, nil
}

func shouldIngest(relPath string, info os.FileInfo, opts DiscoveryOptions) bool {
	basename := filepath.Base(relPath)

	if info.Size() > opts.MaxFileSize {
		return false
	}

	for _, pattern := range opts.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, basename); matched {
			return false
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return false
		}
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if strings.HasPrefix(relPath, prefix+string(filepath.Separator)) {
				return false
			}
		}
	}

	if len(opts.IncludePatterns) > 0 {
		for _, pattern := range opts.IncludePatterns {
			if matched, _ := filepath.Match(pattern, basename); matched {
				return true
			}
			if matched, _ := filepath.Match(pattern, relPath); matched {
				return true
			}
		}
		return false
	}

	return true
}
