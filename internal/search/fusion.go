// Package search implements hybrid retrieval: dense vector search and
// BM25 executed independently, fused with Reciprocal Rank Fusion.
package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// FusedResult is one document after RRF fusion.
type FusedResult struct {
	ChunkID   string
	RRFScore  float64
	VecScore  float64
	VecRank   int // 1-indexed, 0 if absent
	BM25Score float64
	BM25Rank  int // 1-indexed, 0 if absent
}

// RankedDoc is one entry of a ranked input list.
type RankedDoc struct {
	ID    string
	Score float64
}

// RRFFusion fuses ranked lists with rrf(d) = Σ 1 / (k + rank).
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// Fuse combines the vector and BM25 ranked lists. Each document's
// score is the sum of 1/(k+rank) over the lists it appears in, ranks
// 1-indexed per list. Ties break by ascending vector rank, then
// ascending BM25 rank, then ascending chunk id; documents absent from
// a list sort after present ones for that tie-break.
func (f *RRFFusion) Fuse(vec, bm25 []RankedDoc) []FusedResult {
	if len(vec) == 0 && len(bm25) == 0 {
		return []FusedResult{}
	}

	fused := make(map[string]*FusedResult, len(vec)+len(bm25))
	get := func(id string) *FusedResult {
		if r, ok := fused[id]; ok {
			return r
		}
		r := &FusedResult{ChunkID: id}
		fused[id] = r
		return r
	}

	for i, d := range vec {
		r := get(d.ID)
		r.VecScore = d.Score
		r.VecRank = i + 1
		r.RRFScore += 1 / float64(f.K+i+1)
	}
	for i, d := range bm25 {
		r := get(d.ID)
		r.BM25Score = d.Score
		r.BM25Rank = i + 1
		r.RRFScore += 1 / float64(f.K+i+1)
	}

	results := make([]FusedResult, 0, len(fused))
	for _, r := range fused {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return compare(&results[i], &results[j])
	})
	return results
}

func compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.VecRank != b.VecRank {
		return rankLess(a.VecRank, b.VecRank)
	}
	if a.BM25Rank != b.BM25Rank {
		return rankLess(a.BM25Rank, b.BM25Rank)
	}
	return a.ChunkID < b.ChunkID
}

// rankLess orders 1-indexed ranks ascending, with 0 (absent) last.
func rankLess(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}
