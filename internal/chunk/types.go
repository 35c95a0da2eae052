// Package chunk turns source files into addressable chunks for
// embedding and retrieval. Code files in supported languages are
// chunked along syntax-tree boundaries; everything else falls back to
// recursive character splitting.
package chunk

import (
	"encoding/json"
	"unicode"
)

// Element types carried in chunk metadata.
const (
	ElementClass      = "class"
	ElementFunction   = "function"
	ElementImport     = "import"
	ElementAssignment = "assignment"
	ElementDecorated  = "decorated_definition"
	ElementStatement  = "statement"
	ElementFile       = "file"
	ElementText       = "text"
)

// Metadata describes a chunk. All values flatten to scalars before
// they reach the vector store.
type Metadata struct {
	FilePath    string
	ElementType string
	ElementName string
	StartLine   int
	EndLine     int
	Language    string
	ChunkIndex  int

	// IsChunk marks a piece produced by splitting an oversize element.
	IsChunk bool
	// IsMerged marks a chunk coalesced from several small elements;
	// MergedNames preserves the original element names.
	IsMerged    bool
	MergedNames []string

	// ASTParsingFailed and UnsupportedLanguage mark whole-file
	// fallback chunks.
	ASTParsingFailed    bool
	UnsupportedLanguage bool
}

// Chunk is one unit of indexed text.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// Size returns the chunk's non-whitespace character count, the size
// metric used by all chunking decisions.
func (c *Chunk) Size() int {
	return NonWhitespaceLen(c.Content)
}

// ToMap flattens metadata to scalar values. Slices are JSON-encoded
// strings, absent markers are omitted.
func (m *Metadata) ToMap() map[string]any {
	out := map[string]any{
		"file_path":    m.FilePath,
		"element_type": m.ElementType,
		"element_name": m.ElementName,
		"start_line":   m.StartLine,
		"end_line":     m.EndLine,
		"language":     m.Language,
		"chunk_index":  m.ChunkIndex,
	}
	if m.IsChunk {
		out["is_chunk"] = true
	}
	if m.IsMerged {
		out["is_merged"] = true
		if names, err := json.Marshal(m.MergedNames); err == nil {
			out["merged_names"] = string(names)
		}
	}
	if m.ASTParsingFailed {
		out["ast_parsing_failed"] = true
	}
	if m.UnsupportedLanguage {
		out["unsupported_language"] = true
	}
	return out
}

// FileInput is a file handed to the chunker.
type FileInput struct {
	// Path is the repo-relative path, POSIX separators.
	Path string
	// Content is the decoded file text.
	Content string
	// Language is the language tag from the scanner, may be empty.
	Language string
	// IsCode reports whether the scanner classified the file as code.
	IsCode bool
}

// Params are the chunk sizing parameters. All sizes are
// non-whitespace character counts except for text files, where
// ChunkSize/ChunkOverlap are plain character counts.
type Params struct {
	ChunkSize               int
	ChunkOverlap            int
	MinChunkSize            int
	MaxChunkSize            int
	ClassDecomposeThreshold int
}

// DefaultParams mirror the configuration defaults.
func DefaultParams() Params {
	return Params{
		ChunkSize:               1000,
		ChunkOverlap:            200,
		MinChunkSize:            100,
		MaxChunkSize:            2000,
		ClassDecomposeThreshold: 2,
	}
}

// NonWhitespaceLen counts the non-whitespace runes in s.
func NonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
