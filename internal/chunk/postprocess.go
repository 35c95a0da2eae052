package chunk

import (
	"sort"
	"strings"
)

// unit is an intermediate syntax unit flowing through post-processing:
// a top-level element, a promoted class member, or a slice of an
// oversize element.
type unit struct {
	content   string
	kind      string
	name      string
	startLine int
	endLine   int
	size      int
	// major marks a top-level boundary the aggregator prefers to
	// flush at (class, function, decorated definition, import).
	major bool
	// split marks a piece produced by line-splitting.
	split bool
	node  *Node
}

func newUnit(content, kind, name string, startLine, endLine int, node *Node) unit {
	return unit{
		content:   content,
		kind:      kind,
		name:      name,
		startLine: startLine,
		endLine:   endLine,
		size:      NonWhitespaceLen(content),
		major:     kind == ElementClass || kind == ElementFunction || kind == ElementDecorated || kind == ElementImport,
		node:      node,
	}
}

// decomposeClasses replaces class units bigger than
// classDecomposeThreshold * chunkSize with a header unit (declaration
// through the opening of the body) followed by one unit per member.
func (p Params) decomposeClasses(units []unit, source []byte, language string, cfg *LanguageConfig) []unit {
	threshold := p.ClassDecomposeThreshold * p.ChunkSize

	out := make([]unit, 0, len(units))
	for _, u := range units {
		if u.kind != ElementClass || u.size <= threshold || u.node == nil {
			out = append(out, u)
			continue
		}
		body := findBodyNode(u.node)
		if body == nil || len(body.Children) == 0 {
			out = append(out, u)
			continue
		}

		header := string(source[u.node.StartByte:body.StartByte])
		if NonWhitespaceLen(header) > 0 {
			h := newUnit(header, ElementClass, u.name, u.node.StartLine(), body.StartLine(), nil)
			h.split = true
			out = append(out, h)
		}

		for _, member := range body.Children {
			content := member.Content(source)
			if NonWhitespaceLen(content) == 0 {
				continue
			}
			kind := ElementStatement
			if cfg.IsElementType(member.Type) {
				kind = elementKind(member.Type)
			} else if k := elementKind(member.Type); k == ElementFunction || k == ElementClass {
				// Methods count as members even when the language config
				// lists them only at top level.
				kind = k
			}
			name := elementName(member, source, language, kind)
			out = append(out, newUnit(content, kind, name, member.StartLine(), member.EndLine(), member))
		}
	}
	return out
}

// splitOversize line-splits every unit whose size exceeds
// maxChunkSize, carrying a tail overlap of chunkOverlap non-whitespace
// characters into the next piece.
func (p Params) splitOversize(units []unit) []unit {
	out := make([]unit, 0, len(units))
	for _, u := range units {
		if u.size <= p.MaxChunkSize {
			out = append(out, u)
			continue
		}
		out = append(out, p.splitUnitByLines(u)...)
	}
	return out
}

func (p Params) splitUnitByLines(u unit) []unit {
	lines := strings.SplitAfter(u.content, "\n")

	// Hard-split pathological single lines first so every line fits
	// the budget.
	var pieces []string
	for _, line := range lines {
		for NonWhitespaceLen(line) > p.ChunkSize {
			runes := []rune(line)
			cut := p.ChunkSize
			if cut > len(runes) {
				cut = len(runes)
			}
			pieces = append(pieces, string(runes[:cut]))
			line = string(runes[cut:])
		}
		if line != "" {
			pieces = append(pieces, line)
		}
	}

	var out []unit
	var cur []string
	curSize := 0
	curLine := u.startLine

	flush := func() {
		if len(cur) == 0 {
			return
		}
		content := strings.Join(cur, "")
		lineCount := strings.Count(content, "\n")
		part := newUnit(content, u.kind, u.name, curLine, curLine+lineCount, nil)
		part.split = true
		out = append(out, part)

		// Carry complete trailing lines within the overlap budget.
		var tail []string
		tailSize := 0
		for i := len(cur) - 1; i >= 0; i-- {
			sz := NonWhitespaceLen(cur[i])
			if tailSize+sz > p.ChunkOverlap || sz == 0 {
				break
			}
			tail = append([]string{cur[i]}, tail...)
			tailSize += sz
		}
		curLine += lineCount - strings.Count(strings.Join(tail, ""), "\n")
		cur = tail
		curSize = tailSize
	}

	for _, piece := range pieces {
		sz := NonWhitespaceLen(piece)
		if curSize > 0 && curSize+sz > p.ChunkSize {
			flush()
		}
		cur = append(cur, piece)
		curSize += sz
	}
	if curSize > 0 {
		content := strings.Join(cur, "")
		lineCount := strings.Count(content, "\n")
		part := newUnit(content, u.kind, u.name, curLine, curLine+lineCount, nil)
		part.split = true
		out = append(out, part)
	}
	return out
}

// aggregate greedily packs units in source order: append until the
// next unit would push the chunk past ChunkSize and the chunk has
// reached MinChunkSize. Major boundaries flush earlier, once the
// chunk holds 60% of ChunkSize and the next unit would overflow 150%.
// A tail of complete trailing units whose combined size fits the
// overlap budget carries into the next chunk.
func (p Params) aggregate(units []unit, filePath, language string) []Chunk {
	var chunks []Chunk
	var cur []unit
	curSize := 0

	emit := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, buildChunk(cur, filePath, language))

		var tail []unit
		tailSize := 0
		for i := len(cur) - 1; i >= 0; i-- {
			if tailSize+cur[i].size > p.ChunkOverlap || cur[i].size == 0 {
				break
			}
			tail = append([]unit{cur[i]}, tail...)
			tailSize += cur[i].size
		}
		// Never re-emit the whole chunk as overlap.
		if len(tail) == len(cur) {
			tail = nil
			tailSize = 0
		}
		cur = tail
		curSize = tailSize
	}

	for _, u := range units {
		if u.size == 0 {
			continue
		}
		wouldOverflow := curSize+u.size > p.ChunkSize
		if curSize > 0 && wouldOverflow && curSize >= p.MinChunkSize {
			emit()
		} else if curSize > 0 && u.major &&
			curSize*10 >= p.ChunkSize*6 && (curSize+u.size)*10 > p.ChunkSize*15 {
			emit()
		}
		cur = append(cur, u)
		curSize += u.size
	}
	if curSize > 0 {
		chunks = append(chunks, buildChunk(cur, filePath, language))
	}
	return chunks
}

// buildChunk materializes one chunk from consecutive units. A lone
// unit keeps its own identity; grouped units take the plurality
// element type and a merged_<type> name.
func buildChunk(units []unit, filePath, language string) Chunk {
	if len(units) == 1 {
		u := units[0]
		return Chunk{
			Content: u.content,
			Metadata: Metadata{
				FilePath:    filePath,
				ElementType: u.kind,
				ElementName: u.name,
				StartLine:   u.startLine,
				EndLine:     u.endLine,
				Language:    language,
				IsChunk:     u.split,
			},
		}
	}

	parts := make([]string, len(units))
	var names []string
	counts := map[string]int{}
	startLine, endLine := units[0].startLine, units[0].endLine
	for i, u := range units {
		parts[i] = strings.TrimRight(u.content, "\n")
		counts[u.kind]++
		if u.name != "" && u.name != unknownName {
			names = append(names, u.name)
		}
		if u.startLine < startLine {
			startLine = u.startLine
		}
		if u.endLine > endLine {
			endLine = u.endLine
		}
	}

	return Chunk{
		Content: strings.Join(parts, "\n"),
		Metadata: Metadata{
			FilePath:    filePath,
			ElementType: pluralityKind(counts),
			ElementName: "merged_" + pluralityKind(counts),
			StartLine:   startLine,
			EndLine:     endLine,
			Language:    language,
			IsMerged:    true,
			MergedNames: names,
		},
	}
}

func pluralityKind(counts map[string]int) string {
	best, bestCount := ElementStatement, -1
	// Deterministic order so equal counts break the same way.
	for _, kind := range []string{ElementImport, ElementAssignment, ElementFunction, ElementDecorated, ElementClass, ElementStatement, ElementText} {
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	return best
}

// elementPriority orders chunks for small-chunk merging:
// import < assignment < function ~ decorated < class.
func elementPriority(kind string) int {
	switch kind {
	case ElementImport:
		return 0
	case ElementAssignment:
		return 1
	case ElementFunction, ElementDecorated:
		return 2
	case ElementClass:
		return 3
	default:
		return 4
	}
}

// mergeSmall coalesces adjacent mergeable chunks whose combined size
// stays within ChunkSize: two imports, two assignments, or two
// function chunks each below MinChunkSize. Chunks are considered in
// priority order, ties broken by start line.
func (p Params) mergeSmall(chunks []Chunk) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := elementPriority(sorted[i].Metadata.ElementType), elementPriority(sorted[j].Metadata.ElementType)
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Metadata.StartLine < sorted[j].Metadata.StartLine
	})

	var out []Chunk
	for _, c := range sorted {
		if len(out) > 0 && p.canMerge(&out[len(out)-1], &c) {
			out[len(out)-1] = mergeChunkPair(out[len(out)-1], c)
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.StartLine < out[j].Metadata.StartLine
	})
	return out
}

func (p Params) canMerge(a, b *Chunk) bool {
	if a.Size()+b.Size() > p.ChunkSize {
		return false
	}
	ak, bk := a.Metadata.ElementType, b.Metadata.ElementType
	switch {
	case ak == ElementImport && bk == ElementImport:
		return true
	case ak == ElementAssignment && bk == ElementAssignment:
		return true
	case (ak == ElementFunction || ak == ElementDecorated) && (bk == ElementFunction || bk == ElementDecorated):
		return a.Size() < p.MinChunkSize && b.Size() < p.MinChunkSize
	default:
		return false
	}
}

func mergeChunkPair(a, b Chunk) Chunk {
	kind := a.Metadata.ElementType
	names := append([]string{}, a.Metadata.MergedNames...)
	if !a.Metadata.IsMerged && a.Metadata.ElementName != "" {
		names = append(names, a.Metadata.ElementName)
	}
	if b.Metadata.IsMerged {
		names = append(names, b.Metadata.MergedNames...)
	} else if b.Metadata.ElementName != "" {
		names = append(names, b.Metadata.ElementName)
	}

	start, end := a.Metadata.StartLine, a.Metadata.EndLine
	if b.Metadata.StartLine < start {
		start = b.Metadata.StartLine
	}
	if b.Metadata.EndLine > end {
		end = b.Metadata.EndLine
	}

	return Chunk{
		Content: strings.TrimRight(a.Content, "\n") + "\n" + strings.TrimRight(b.Content, "\n"),
		Metadata: Metadata{
			FilePath:    a.Metadata.FilePath,
			ElementType: kind,
			ElementName: "merged_" + kind,
			StartLine:   start,
			EndLine:     end,
			Language:    a.Metadata.Language,
			IsMerged:    true,
			MergedNames: names,
		},
	}
}
