package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
)

// ErrDirectoryNotFound matches every DirectoryNotFoundError via errors.Is.
var ErrDirectoryNotFound = errors.New("directory not found")

// DirectoryNotFoundError reports a missing or non-directory input/output path.
type DirectoryNotFoundError struct {
	Path string
	Err  error
}

// Error formats the missing directory for logs and UI.
func (e *DirectoryNotFoundError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("directory not found: %s", e.Path)
	}
	return fmt.Sprintf("directory not found: %s: %v", e.Path, e.Err)
}

// Is makes errors.Is(err, ErrDirectoryNotFound) succeed.
func (e *DirectoryNotFoundError) Is(target error) bool {
	return target == ErrDirectoryNotFound
}

// Unwrap exposes the underlying filesystem error.
func (e *DirectoryNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Matcher decides which files count as images.
type Matcher interface {
	IsInputFile(path string) bool
}

// Scanner enumerates image files below an input directory.
type Scanner struct {
	matcher Matcher
	stat    func(name string) (os.FileInfo, error)
	readDir func(name string) ([]os.DirEntry, error)
}

// NewScanner builds a scanner using real OS dependencies.
func NewScanner(matcher Matcher) *Scanner {
	return &Scanner{
		matcher: matcher,
		stat:    os.Stat,
		readDir: os.ReadDir,
	}
}

// Scan returns recognized image paths in lexical order. A directory without
// images yields an empty slice and no error.
func (s *Scanner) Scan(dir string, recursive bool) ([]string, error) {
	if err := RequireDirectory(s.stat, dir); err != nil {
		return nil, err
	}

	var (
		files []string
		err   error
	)
	if recursive {
		files, err = s.walk(dir)
	} else {
		files, err = s.list(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

// list reads only the top level of dir.
func (s *Scanner) list(dir string) ([]string, error) {
	entries, err := s.readDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 || isHidden(entry.Name()) {
			continue
		}
		if s.matcher.IsInputFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// walk descends into sub-directories, skipping hidden ones and symlinks.
func (s *Scanner) walk(root string) ([]string, error) {
	files := []string{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if p == root {
				return nil
			}
			if isHidden(de.Name()) {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() || de.IsSymlink() {
				return nil
			}
			if s.matcher.IsInputFile(p) {
				files = append(files, p)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// RequireDirectory returns a DirectoryNotFoundError unless path is an
// existing directory.
func RequireDirectory(stat func(string) (os.FileInfo, error), path string) error {
	if strings.TrimSpace(path) == "" {
		return &DirectoryNotFoundError{Path: path, Err: errors.New("path is empty")}
	}
	info, err := stat(path)
	if err != nil {
		return &DirectoryNotFoundError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return &DirectoryNotFoundError{Path: path, Err: errors.New("not a directory")}
	}
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// NewScannerForTests constructs a scanner with injectable filesystem hooks.
func NewScannerForTests(
	matcher Matcher,
	stat func(name string) (os.FileInfo, error),
	readDir func(name string) ([]os.DirEntry, error),
) *Scanner {
	return &Scanner{
		matcher: matcher,
		stat:    stat,
		readDir: readDir,
	}
}
