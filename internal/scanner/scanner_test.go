package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates a corpus layout from relative paths; directories
// are created as needed.
func buildTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relPaths(files []*FileInfo) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.ToSlash(f.Path)
	}
	return paths
}

func TestScanAll_MatchesPatternRecursively(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"inbox.md":          "inbox",
		"projects/go.md":    "go notes",
		"projects/plan.txt": "not a note",
		"archive/old.md":    "old",
	})

	files, err := ScanAll(context.Background(), Options{RootDir: root})
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"inbox.md", "projects/go.md", "archive/old.md"},
		relPaths(files))
}

func TestScanAll_CustomPattern(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"a.md":  "md",
		"b.txt": "txt",
	})

	files, err := ScanAll(context.Background(), Options{RootDir: root, Pattern: "*.txt"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.txt"}, relPaths(files))
}

func TestScanAll_SkipsHiddenAndExcludedDirs(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"keep.md":            "keep",
		".notedex/state.md":  "index internals",
		".git/objects/x.md":  "git",
		"drafts/wip.md":      "draft",
		"drafts/deep/one.md": "nested draft",
	})

	files, err := ScanAll(context.Background(), Options{
		RootDir:     root,
		ExcludeDirs: []string{"drafts"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.md"}, relPaths(files))
}

func TestScanAll_DropsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{
		"small.md": "tiny",
		"large.md": string(make([]byte, 512)),
	})

	files, err := ScanAll(context.Background(), Options{RootDir: root, MaxFileSize: 100})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"small.md"}, relPaths(files))
}

func TestScanAll_PopulatesMetadata(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{"note.md": "hello world"})

	files, err := ScanAll(context.Background(), Options{RootDir: root})
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "note.md", f.Path)
	assert.Equal(t, filepath.Join(root, "note.md"), f.AbsPath)
	assert.Equal(t, int64(len("hello world")), f.Size)
	assert.False(t, f.ModTime.IsZero())
}

func TestScan_MissingRootFails(t *testing.T) {
	_, err := Scan(context.Background(), Options{RootDir: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestScan_RootMustBeDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Scan(context.Background(), Options{RootDir: file})
	assert.Error(t, err)
}

func TestScan_CancelledContextStops(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]string{"a.md": "a", "b.md": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := Scan(ctx, Options{RootDir: root})
	require.NoError(t, err)
	for range ch {
	}
}
