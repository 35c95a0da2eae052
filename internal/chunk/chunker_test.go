package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoinsight/repoinsight/internal/logging"
)

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

const pythonSample = `import os
import sys

MAX_RETRIES = 3

def load(path):
    with open(path) as f:
        return f.read()

class Store:
    def __init__(self, root):
        self.root = root

    def get(self, key):
        return load(os.path.join(self.root, key))
`

func TestChunkPythonFile(t *testing.T) {
	c := NewCodeChunker(DefaultParams(), logging.Discard())
	defer c.Close()

	chunks, err := c.Chunk(t.Context(), &FileInput{
		Path:     "src/store.py",
		Content:  pythonSample,
		Language: "python",
		IsCode:   true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	joined := strings.Join(contents(chunks), "\n")
	assert.Contains(t, joined, "def load")
	assert.Contains(t, joined, "class Store")
	assert.Contains(t, joined, "import os")

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, "src/store.py", chunk.Metadata.FilePath)
		assert.Equal(t, "python", chunk.Metadata.Language)
		assert.LessOrEqual(t, chunk.Size(), DefaultParams().MaxChunkSize)
		assert.False(t, chunk.Metadata.ASTParsingFailed)
		assert.False(t, chunk.Metadata.UnsupportedLanguage)
	}
}

func TestChunkOversizeFunctionSplits(t *testing.T) {
	params := Params{ChunkSize: 200, ChunkOverlap: 40, MinChunkSize: 20, MaxChunkSize: 400, ClassDecomposeThreshold: 2}
	c := NewCodeChunker(params, logging.Discard())
	defer c.Close()

	var b strings.Builder
	b.WriteString("def huge():\n")
	for i := 0; i < 80; i++ {
		b.WriteString("    value = compute_something_expensive(1234567890)\n")
	}

	chunks, err := c.Chunk(t.Context(), &FileInput{
		Path:    "src/huge.py",
		Content: b.String(),
		IsCode:  true,
	})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.Size(), params.MaxChunkSize)
	}
}

func TestChunkUnsupportedLanguageFallsBack(t *testing.T) {
	c := NewCodeChunker(DefaultParams(), logging.Discard())
	defer c.Close()

	chunks, err := c.Chunk(t.Context(), &FileInput{
		Path:    "script.lua",
		Content: "print('hello')\nprint('world')\n",
		IsCode:  true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, ElementText, chunk.Metadata.ElementType)
		assert.True(t, chunk.Metadata.UnsupportedLanguage)
	}
}

func TestChunkMarkdownUsesTextSplitter(t *testing.T) {
	c := NewCodeChunker(Params{ChunkSize: 80, ChunkOverlap: 16, MinChunkSize: 10, MaxChunkSize: 160, ClassDecomposeThreshold: 2}, logging.Discard())
	defer c.Close()

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("This is a paragraph with enough words to matter.\n\n")
	}

	chunks, err := c.Chunk(t.Context(), &FileInput{
		Path:     "README.md",
		Content:  b.String(),
		Language: "markdown",
		IsCode:   false,
	})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, ElementText, chunk.Metadata.ElementType)
		assert.False(t, chunk.Metadata.UnsupportedLanguage)
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 80)
	}
	assert.Equal(t, 1, chunks[0].Metadata.StartLine)
	assert.Greater(t, chunks[len(chunks)-1].Metadata.StartLine, 1)
}

func TestChunkEmptyFile(t *testing.T) {
	c := NewCodeChunker(DefaultParams(), logging.Discard())
	defer c.Close()

	chunks, err := c.Chunk(t.Context(), &FileInput{Path: "empty.py", Content: "   \n", IsCode: true})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestParsePython(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(t.Context(), []byte("def foo():\n    pass\n"), "python")
	require.NoError(t, err)
	assert.Equal(t, "module", tree.Root.Type)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, "function_definition", tree.Root.Children[0].Type)
	assert.Equal(t, 1, tree.Root.Children[0].StartLine())
}

func TestRecursiveTextSplitter(t *testing.T) {
	s := NewRecursiveTextSplitter(50, 10)

	assert.Nil(t, s.Split("  \n "))

	short := "one small paragraph"
	assert.Equal(t, []string{short}, s.Split(short))

	long := strings.Repeat("word ", 60)
	pieces := s.Split(long)
	require.Greater(t, len(pieces), 1)
	for _, piece := range pieces {
		assert.LessOrEqual(t, len([]rune(piece)), 50)
		assert.NotEmpty(t, strings.TrimSpace(piece))
	}
}
