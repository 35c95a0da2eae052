package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoinsight/repoinsight/internal/logging"
)

var testAllowed = []string{
	".py", ".go", ".md", ".json", ".yaml",
	"dockerfile", "makefile", "readme", "license",
}

var testExcluded = []string{".git", "node_modules", "dist", "build", "venv", ".venv", "target"}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func collect(t *testing.T, s *Scanner, root string) []FileInfo {
	t.Helper()
	var infos []FileInfo
	for res := range s.Scan(context.Background(), root) {
		require.NoError(t, res.Err)
		infos = append(infos, res.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RelPath < infos[j].RelPath })
	return infos
}

func relPaths(infos []FileInfo) []string {
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.RelPath
	}
	return out
}

func TestScan_FiltersAndClassifies(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":                 "print('hi')\n",
		"pkg/util.go":             "package pkg\n",
		"README.md":               "# readme\n",
		"Dockerfile":              "FROM python:3.11\n",
		"logo.png":                "\x89PNG",
		"notes.xyz":               "unknown ext\n",
		"node_modules/dep/x.py":   "skip\n",
		".git/config":             "skip\n",
		"dist/out.py":             "skip\n",
		".hidden/secret.py":       "skip\n",
		"config/settings.yaml":    "a: 1\n",
		"vendor_data/payload.dat": "binary\n",
	})

	s := New(testAllowed, testExcluded, logging.Discard())
	infos := collect(t, s, root)

	assert.Equal(t, []string{
		"Dockerfile",
		"README.md",
		"config/settings.yaml",
		"main.py",
		"pkg/util.go",
	}, relPaths(infos))

	byPath := map[string]FileInfo{}
	for _, fi := range infos {
		byPath[fi.RelPath] = fi
	}
	assert.Equal(t, FileTypeCode, byPath["main.py"].Type)
	assert.Equal(t, "python", byPath["main.py"].Language)
	assert.Equal(t, FileTypeCode, byPath["pkg/util.go"].Type)
	assert.Equal(t, "go", byPath["pkg/util.go"].Language)
	assert.Equal(t, FileTypeDocument, byPath["README.md"].Type)
	assert.Equal(t, FileTypeConfig, byPath["Dockerfile"].Type)
}

func TestScan_RespectsGitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":      "*.generated.py\nscratch/\n",
		"main.py":         "x\n",
		"api.generated.py": "x\n",
		"scratch/tmp.py":  "x\n",
	})

	s := New(testAllowed, testExcluded, logging.Discard())
	assert.Equal(t, []string{"main.py"}, relPaths(collect(t, s, root)))
}

func TestScan_Cancellation(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "x\n", "b.py": "x\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(testAllowed, testExcluded, logging.Discard())
	var count int
	for range s.Scan(ctx, root) {
		count++
	}
	assert.Equal(t, 0, count)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path     string
		fileType FileType
		language string
	}{
		{"app.py", FileTypeCode, "python"},
		{"index.tsx", FileTypeCode, "typescript"},
		{"Main.java", FileTypeCode, "java"},
		{"lib.rs", FileTypeCode, "rust"},
		{"Program.cs", FileTypeCode, "csharp"},
		{"vec.cpp", FileTypeCode, "cpp"},
		{"vec.h", FileTypeCode, "cpp"},
		{"guide.md", FileTypeDocument, ""},
		{"package.json", FileTypeConfig, ""},
		{"Dockerfile", FileTypeConfig, ""},
		{"Makefile", FileTypeConfig, ""},
		{"README", FileTypeDocument, ""},
		{"LICENSE", FileTypeDocument, ""},
		{"photo.jpg", FileTypeBinary, ""},
		{"mystery.zzz", FileTypeUnknown, ""},
	}
	for _, tt := range tests {
		fileType, language := Classify(tt.path)
		assert.Equal(t, tt.fileType, fileType, tt.path)
		assert.Equal(t, tt.language, language, tt.path)
	}
}

func TestReadFile_EncodingFallback(t *testing.T) {
	dir := t.TempDir()

	utf8Path := filepath.Join(dir, "utf8.py")
	require.NoError(t, os.WriteFile(utf8Path, []byte("x = 'héllo'\n"), 0o644))

	bomPath := filepath.Join(dir, "bom.py")
	require.NoError(t, os.WriteFile(bomPath, append([]byte{0xEF, 0xBB, 0xBF}, []byte("x = 1\n")...), 0o644))

	latinPath := filepath.Join(dir, "latin.py")
	require.NoError(t, os.WriteFile(latinPath, []byte{'c', 'a', 'f', 0xE9, '\n'}, 0o644))

	content, err := ReadFile(utf8Path, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "x = 'héllo'\n", content)

	content, err = ReadFile(bomPath, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", content)

	content, err = ReadFile(latinPath, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "café\n", content)
}

func TestReadFile_SizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.py")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	_, err := ReadFile(path, 1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(""))
	assert.Equal(t, 1, CountLines("one"))
	assert.Equal(t, 1, CountLines("one\n"))
	assert.Equal(t, 2, CountLines("one\ntwo"))
	assert.Equal(t, 3, CountLines("a\nb\nc\n"))
}
