// Package walker expands command-line globs into the files to upload.
package walker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileSize matches the gateway's default upload limit.
const DefaultMaxFileSize int64 = 16 << 20

// File is a file selected for upload.
type File struct {
	Path        string
	Size        int64
	ContentHash string // SHA-256 hex digest of the content
}

// Skipped is a matched file that was left out, with the reason.
type Skipped struct {
	Path   string
	Reason string
}

// Config controls which matched files Walk keeps.
type Config struct {
	Patterns    []string // doublestar globs, files or directories
	Exclude     []string // glob patterns for files to leave out
	Extensions  []string // accepted extensions, empty accepts all
	MaxFileSize int64    // 0 uses DefaultMaxFileSize
}

// Result lists the selected files in path order.
type Result struct {
	Files   []File
	Skipped []Skipped
}

// Walk expands every pattern. Directories are walked recursively. Each file
// appears once; a file whose content duplicates an earlier one is skipped.
// A pattern that matches nothing is an error.
func Walk(cfg Config) (*Result, error) {
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	seen := make(map[string]bool)
	var candidates []string
	add := func(path string) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if !seen[path] {
			seen[path] = true
			candidates = append(candidates, path)
		}
	}

	for _, pattern := range cfg.Patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("walker: bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("walker: %s: no matching files", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("walker: %w", err)
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return nil
				}
				if d.IsDir() {
					if path != m && shouldExcludeDir(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if d.Type().IsRegular() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walker: traversal: %w", err)
			}
		}
	}
	sort.Strings(candidates)

	res := &Result{}
	hashes := make(map[string]string)
	for _, path := range candidates {
		skip := func(reason string) { res.Skipped = append(res.Skipped, Skipped{Path: path, Reason: reason}) }

		if MatchesExclude(path, cfg.Exclude) {
			skip("excluded")
			continue
		}
		if !hasExtension(path, cfg.Extensions) {
			skip("unsupported extension")
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			skip(err.Error())
			continue
		}
		if info.Size() > maxSize {
			skip(fmt.Sprintf("larger than %d bytes", maxSize))
			continue
		}
		if isBinary(path) {
			skip("binary content")
			continue
		}
		hash, err := hashFile(path)
		if err != nil {
			skip(err.Error())
			continue
		}
		if first, dup := hashes[hash]; dup {
			skip("duplicate of " + first)
			continue
		}
		hashes[hash] = path
		res.Files = append(res.Files, File{Path: path, Size: info.Size(), ContentHash: hash})
	}
	return res, nil
}

// isBinary reads the first 512 bytes of a file and checks for NUL bytes.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}

	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
