package chunk

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// CodeChunker produces chunks for repository files. Supported code
// files are chunked along syntax boundaries, everything else goes
// through the recursive text splitter. A CodeChunker is not safe for
// concurrent use; create one per worker.
type CodeChunker struct {
	params   Params
	parser   *Parser
	splitter *RecursiveTextSplitter
	logger   *slog.Logger
}

// NewCodeChunker creates a chunker with the given sizing parameters.
func NewCodeChunker(params Params, logger *slog.Logger) *CodeChunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeChunker{
		params:   params,
		parser:   NewParser(),
		splitter: NewRecursiveTextSplitter(params.ChunkSize, params.ChunkOverlap),
		logger:   logger,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// Chunk splits one file. Chunk indexes are sequential within the file.
// Parse failures degrade to a single whole-file chunk rather than
// erroring so one broken file cannot sink an ingestion.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]Chunk, error) {
	if strings.TrimSpace(file.Content) == "" {
		return nil, nil
	}

	cfg := c.resolveLanguage(file)
	if !file.IsCode || cfg == nil {
		return c.chunkText(file, cfg)
	}

	tree, err := c.parser.Parse(ctx, []byte(file.Content), cfg.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.ErrCodeTaskCancelled, "chunking cancelled", ctx.Err())
		}
		c.logger.Warn("syntax parse failed, falling back to whole-file chunk",
			"file", file.Path, "language", cfg.Name, "error", err)
		return c.wholeFileChunk(file, cfg.Name, func(m *Metadata) { m.ASTParsingFailed = true }), nil
	}

	units := c.topLevelUnits(tree, cfg)
	if len(units) == 0 {
		return c.wholeFileChunk(file, cfg.Name, nil), nil
	}

	units = c.params.decomposeClasses(units, tree.Source, cfg.Name, cfg)
	units = c.params.splitOversize(units)
	chunks := c.params.aggregate(units, file.Path, cfg.Name)
	chunks = c.params.mergeSmall(chunks)

	for i := range chunks {
		chunks[i].Metadata.ChunkIndex = i
	}
	return chunks, nil
}

// resolveLanguage picks the language config, extension first, then the
// scanner's language tag.
func (c *CodeChunker) resolveLanguage(file *FileInput) *LanguageConfig {
	registry := c.parser.Registry()
	if ext := filepath.Ext(file.Path); ext != "" {
		if cfg, ok := registry.ByExtension(ext); ok {
			return cfg
		}
	}
	if file.Language != "" {
		if cfg, ok := registry.ByName(file.Language); ok {
			return cfg
		}
	}
	return nil
}

// topLevelUnits extracts one unit per root child, giving every byte of
// the file a home. Python wraps top-level assignments in
// expression_statement nodes, so those are unwrapped for naming.
func (c *CodeChunker) topLevelUnits(tree *Tree, cfg *LanguageConfig) []unit {
	var units []unit
	for _, child := range tree.Root.Children {
		content := child.Content(tree.Source)
		if NonWhitespaceLen(content) == 0 {
			continue
		}

		target := child
		if child.Type == "expression_statement" && len(child.Children) == 1 &&
			cfg.IsElementType(child.Children[0].Type) {
			target = child.Children[0]
		}

		kind := ElementStatement
		name := ""
		if cfg.IsElementType(target.Type) {
			kind = elementKind(target.Type)
			name = elementName(target, tree.Source, cfg.Name, kind)
		}
		units = append(units, newUnit(content, kind, name, child.StartLine(), child.EndLine(), target))
	}
	return units
}

func (c *CodeChunker) wholeFileChunk(file *FileInput, language string, mark func(*Metadata)) []Chunk {
	chunk := Chunk{
		Content: file.Content,
		Metadata: Metadata{
			FilePath:    file.Path,
			ElementType: ElementFile,
			StartLine:   1,
			EndLine:     1 + strings.Count(strings.TrimRight(file.Content, "\n"), "\n"),
			Language:    language,
		},
	}
	if mark != nil {
		mark(&chunk.Metadata)
	}
	return []Chunk{chunk}
}

// chunkText splits non-code and unsupported-language files with the
// recursive character splitter. Start lines are recovered by locating
// each chunk in the original text.
func (c *CodeChunker) chunkText(file *FileInput, cfg *LanguageConfig) ([]Chunk, error) {
	language := file.Language
	if cfg != nil {
		language = cfg.Name
	}

	pieces := c.splitter.Split(file.Content)
	if len(pieces) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, 0, len(pieces))
	searchFrom := 0
	for i, piece := range pieces {
		startLine := 1
		if idx := strings.Index(file.Content[searchFrom:], piece); idx >= 0 {
			abs := searchFrom + idx
			startLine = 1 + strings.Count(file.Content[:abs], "\n")
			searchFrom = abs + 1
		}
		endLine := startLine + strings.Count(piece, "\n")

		meta := Metadata{
			FilePath:    file.Path,
			ElementType: ElementText,
			StartLine:   startLine,
			EndLine:     endLine,
			Language:    language,
			ChunkIndex:  i,
		}
		if file.IsCode && cfg == nil {
			meta.UnsupportedLanguage = true
		}
		chunks = append(chunks, Chunk{Content: piece, Metadata: meta})
	}
	return chunks, nil
}
