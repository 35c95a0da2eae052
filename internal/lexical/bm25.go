package lexical

import "math"

// Okapi BM25 parameters.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25 is an Okapi BM25 scorer over a tokenized corpus. Negative
// IDF values are floored to epsilon times the average IDF, so very
// common terms still contribute a small positive weight.
type BM25 struct {
	docCount  int
	docLens   []int
	avgDocLen float64
	// termFreqs[i] maps token -> occurrences in document i.
	termFreqs []map[string]int
	idf       map[string]float64
}

// NewBM25 builds the scorer from tokenized documents.
func NewBM25(corpus [][]string) *BM25 {
	b := &BM25{
		docCount:  len(corpus),
		docLens:   make([]int, len(corpus)),
		termFreqs: make([]map[string]int, len(corpus)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, doc := range corpus {
		b.docLens[i] = len(doc)
		totalLen += len(doc)

		freqs := make(map[string]int, len(doc))
		for _, tok := range doc {
			freqs[tok]++
		}
		b.termFreqs[i] = freqs
		for tok := range freqs {
			docFreq[tok]++
		}
	}
	if b.docCount > 0 {
		b.avgDocLen = float64(totalLen) / float64(b.docCount)
	}

	// Standard Okapi IDF, then floor negatives at epsilon * average.
	var idfSum float64
	var negative []string
	n := float64(b.docCount)
	for tok, df := range docFreq {
		idf := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		b.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(docFreq) > 0 {
		floor := bm25Epsilon * (idfSum / float64(len(docFreq)))
		for _, tok := range negative {
			b.idf[tok] = floor
		}
	}
	return b
}

// Scores returns the BM25 score of every document for the query
// tokens, indexed by document position.
func (b *BM25) Scores(query []string) []float64 {
	scores := make([]float64, b.docCount)
	if b.docCount == 0 {
		return scores
	}

	for _, tok := range query {
		idf, ok := b.idf[tok]
		if !ok {
			continue
		}
		for i, freqs := range b.termFreqs {
			tf := float64(freqs[tok])
			if tf == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(b.docLens[i])/b.avgDocLen)
			scores[i] += idf * (tf * (bm25K1 + 1)) / (tf + norm)
		}
	}
	return scores
}
