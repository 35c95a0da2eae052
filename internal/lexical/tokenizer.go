// Package lexical implements the BM25 side of hybrid retrieval: a
// code-aware tokenizer, an Okapi BM25 index with file-name boosting,
// and a per-repository index cache.
package lexical

import (
	"regexp"
	"strings"
)

var (
	// fileTokenRE matches file-name shaped tokens such as
	// "query_service.py".
	fileTokenRE = regexp.MustCompile(`[A-Za-z0-9_-]+\.[A-Za-z0-9]+`)
	// wordRE matches general identifier tokens.
	wordRE = regexp.MustCompile(`[A-Za-z0-9_-]+`)
	// cjkRE matches runs of CJK ideographs, kept whole.
	cjkRE = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
)

// Tokenize lowercases text and extracts searchable tokens. File-name
// tokens additionally emit their base name, tokens are deduplicated
// in first-seen order, and single-character tokens are dropped. The
// same pipeline runs at index time and query time.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	seen := make(map[string]struct{})
	add := func(tok string) {
		if len([]rune(tok)) < 2 {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	for _, tok := range fileTokenRE.FindAllString(text, -1) {
		add(tok)
		if dot := strings.LastIndex(tok, "."); dot > 0 {
			add(tok[:dot])
		}
	}
	for _, tok := range wordRE.FindAllString(text, -1) {
		add(tok)
	}
	for _, tok := range cjkRE.FindAllString(text, -1) {
		add(tok)
	}
	return tokens
}

// FilePatterns extracts file-name boost patterns from query tokens:
// every token shaped like "name.ext" contributes both the full token
// and its base name.
func FilePatterns(tokens []string) []string {
	var patterns []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if !fileTokenRE.MatchString(tok) || fileTokenRE.FindString(tok) != tok {
			continue
		}
		for _, p := range []string{tok, tok[:strings.LastIndex(tok, ".")]} {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}
