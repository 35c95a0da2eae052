package lexical

import (
	"path"
	"sort"
	"strings"

	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// File-name boost tiers, added to raw BM25 scores before ranking.
const (
	boostExactBasename = 10.0
	boostInBasename    = 5.0
	boostInPath        = 2.0
)

// Result is one lexical search hit.
type Result struct {
	Doc   vectorstore.Document
	Score float64
}

// Index is an immutable BM25 index over one repository's chunks.
// Rebuilt wholesale from the vector store's document dump, never
// mutated in place.
type Index struct {
	docs []vectorstore.Document
	bm25 *BM25
}

// BuildIndex tokenizes every document (content plus file path, so
// path components are searchable) and constructs the BM25 scorer.
func BuildIndex(docs []vectorstore.Document) *Index {
	corpus := make([][]string, len(docs))
	for i, doc := range docs {
		corpus[i] = Tokenize(doc.Content + " " + docFilePath(&doc))
	}
	return &Index{docs: docs, bm25: NewBM25(corpus)}
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docs) }

// Search scores every document against the query, applies the
// file-name boost, and returns the topK hits with positive scores in
// descending score order. Ties break by document id.
func (idx *Index) Search(query string, topK int) []Result {
	if idx.Len() == 0 || topK <= 0 {
		return nil
	}

	tokens := Tokenize(query)
	scores := idx.bm25.Scores(tokens)
	patterns := FilePatterns(tokens)

	results := make([]Result, 0, len(idx.docs))
	for i, doc := range idx.docs {
		score := scores[i] + fileNameBoost(docFilePath(&idx.docs[i]), patterns)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Doc: doc, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Doc.ID < results[j].Doc.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// fileNameBoost returns the best matching tier across all patterns:
// exact basename match (with or without extension) wins over a
// substring match in the basename, which wins over a substring match
// anywhere in the path.
func fileNameBoost(filePath string, patterns []string) float64 {
	if filePath == "" || len(patterns) == 0 {
		return 0
	}

	lowered := strings.ToLower(filePath)
	base := path.Base(lowered)
	stem := strings.TrimSuffix(base, path.Ext(base))

	best := 0.0
	for _, pattern := range patterns {
		var bonus float64
		switch {
		case pattern == base || pattern == stem:
			bonus = boostExactBasename
		case strings.Contains(base, pattern):
			bonus = boostInBasename
		case strings.Contains(lowered, pattern):
			bonus = boostInPath
		}
		if bonus > best {
			best = bonus
		}
	}
	return best
}

func docFilePath(doc *vectorstore.Document) string {
	if fp, ok := doc.Metadata["file_path"].(string); ok {
		return fp
	}
	return ""
}
