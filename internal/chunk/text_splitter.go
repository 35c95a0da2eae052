package chunk

import "strings"

// textSeparators, tried in order: paragraph break, line break, word
// break, then character split.
var textSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveTextSplitter splits plain text by a separator hierarchy,
// producing chunks of at most chunkSize characters with chunkOverlap
// characters of overlap. Sizes here are plain character counts, not
// the non-whitespace counts used for code.
type RecursiveTextSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewRecursiveTextSplitter returns a splitter with the given character
// budget and overlap.
func NewRecursiveTextSplitter(chunkSize, chunkOverlap int) *RecursiveTextSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &RecursiveTextSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split returns the chunk texts for text.
func (s *RecursiveTextSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, textSeparators)
}

func (s *RecursiveTextSplitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	rest := separators
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = splitRunes(text, s.chunkSize)
	} else {
		splits = strings.Split(text, sep)
	}

	var out []string
	var pending []string
	for _, piece := range splits {
		if len([]rune(piece)) <= s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		// Oversize piece: flush what we have, then recurse with the
		// remaining separators.
		out = append(out, s.merge(pending, sep)...)
		pending = nil
		if len(rest) > 0 {
			out = append(out, s.split(piece, rest)...)
		} else {
			out = append(out, splitRunes(piece, s.chunkSize)...)
		}
	}
	out = append(out, s.merge(pending, sep)...)
	return out
}

// merge packs small splits back together up to the chunk budget,
// carrying trailing splits as overlap into the next chunk.
func (s *RecursiveTextSplitter) merge(splits []string, sep string) []string {
	var out []string
	var cur []string
	curLen := 0
	sepLen := len([]rune(sep))

	join := func(parts []string) string {
		joined := strings.Join(parts, sep)
		return strings.TrimSpace(joined)
	}

	for _, piece := range splits {
		pieceLen := len([]rune(piece))
		if curLen > 0 && curLen+sepLen+pieceLen > s.chunkSize {
			if chunk := join(cur); chunk != "" {
				out = append(out, chunk)
			}
			// Drop leading splits until the carry fits the overlap
			// budget and the next piece fits the chunk budget.
			for curLen > s.chunkOverlap || (curLen > 0 && curLen+sepLen+pieceLen > s.chunkSize) {
				curLen -= len([]rune(cur[0])) + sepLen
				cur = cur[1:]
			}
		}
		cur = append(cur, piece)
		if curLen > 0 {
			curLen += sepLen
		}
		curLen += pieceLen
	}
	if chunk := join(cur); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
