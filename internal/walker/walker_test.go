package walker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTree creates files under a temp dir and returns its path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func baseNames(files []File) []string {
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	return names
}

func TestWalk_Glob(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":          "alpha",
		"b.txt":          "bravo",
		"notes.md":       "charlie",
		"sub/c.txt":      "delta",
		"sub/deep/d.txt": "echo",
	})

	res, err := Walk(Config{Patterns: []string{filepath.Join(root, "**", "*.txt")}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	got := strings.Join(baseNames(res.Files), ",")
	if got != "a.txt,b.txt,c.txt,d.txt" {
		t.Errorf("unexpected files: %s", got)
	}
}

func TestWalk_Directory(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":              "alpha",
		"sub/b.txt":          "bravo",
		".git/config":        "ignored",
		"node_modules/x.txt": "ignored too",
	})

	res, err := Walk(Config{Patterns: []string{root}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	got := strings.Join(baseNames(res.Files), ",")
	if got != "a.txt,b.txt" {
		t.Errorf("unexpected files: %s", got)
	}
}

func TestWalk_FileFields(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "alpha"})

	res, err := Walk(Config{Patterns: []string{filepath.Join(root, "a.txt")}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(res.Files))
	}
	f := res.Files[0]
	if !filepath.IsAbs(f.Path) {
		t.Errorf("expected absolute path, got %s", f.Path)
	}
	if f.Size != 5 {
		t.Errorf("Size = %d, want 5", f.Size)
	}
	if len(f.ContentHash) != 64 {
		t.Errorf("ContentHash should be 64 hex chars, got %d", len(f.ContentHash))
	}
}

func TestWalk_Filters(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.txt":   "keep me",
		"draft.txt":  "a draft",
		"image.png":  "png",
		"binary.txt": "bin\x00ary",
		"big.txt":    strings.Repeat("x", 100),
		"copy.txt":   "keep me",
	})

	res, err := Walk(Config{
		Patterns:    []string{root},
		Exclude:     []string{"draft.*"},
		Extensions:  []string{"txt"},
		MaxFileSize: 50,
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if got := strings.Join(baseNames(res.Files), ","); got != "copy.txt" {
		t.Errorf("unexpected files: %s", got)
	}

	reasons := make(map[string]string)
	for _, s := range res.Skipped {
		reasons[filepath.Base(s.Path)] = s.Reason
	}
	want := map[string]string{
		"draft.txt":  "excluded",
		"image.png":  "unsupported extension",
		"binary.txt": "binary content",
		"big.txt":    "larger than 50 bytes",
	}
	for name, reason := range want {
		if reasons[name] != reason {
			t.Errorf("%s: reason = %q, want %q", name, reasons[name], reason)
		}
	}
	if !strings.HasPrefix(reasons["keep.txt"], "duplicate of ") {
		t.Errorf("keep.txt: expected duplicate skip, got %q", reasons["keep.txt"])
	}
}

func TestWalk_OverlappingPatterns(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "alpha", "b.txt": "bravo"})

	res, err := Walk(Config{Patterns: []string{
		filepath.Join(root, "*.txt"),
		filepath.Join(root, "a.txt"),
		root,
	}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Files) != 2 || len(res.Skipped) != 0 {
		t.Errorf("expected 2 files and no skips, got %d files %+v", len(res.Files), res.Skipped)
	}
}

func TestWalk_NoMatches(t *testing.T) {
	root := t.TempDir()
	if _, err := Walk(Config{Patterns: []string{filepath.Join(root, "*.txt")}}); err == nil {
		t.Error("expected error for a pattern with no matches")
	}
}

func TestMatchesExclude(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"docs/draft.txt", []string{"draft.*"}, true},
		{"docs/final.txt", []string{"draft.*"}, false},
		{"docs/archive/old.txt", []string{"**/archive/**"}, true},
		{"docs/a.txt", nil, false},
	}
	for _, tt := range tests {
		if got := MatchesExclude(tt.path, tt.patterns); got != tt.want {
			t.Errorf("MatchesExclude(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}
