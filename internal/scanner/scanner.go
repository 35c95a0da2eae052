// Package scanner walks a repository working tree and streams the
// files eligible for ingestion: not gitignored, not binary, and either
// carrying an allow-listed extension or matching a well-known
// extensionless name.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/repoinsight/repoinsight/internal/gitignore"
)

const ignoreCacheSize = 16

// Scanner streams eligible files from repository roots. Safe for
// concurrent use; gitignore matchers are cached per root.
type Scanner struct {
	allowedExts  map[string]struct{}
	specialNames []string
	excludedDirs map[string]struct{}
	ignoreCache  *lru.Cache[string, *gitignore.Matcher]
	logger       *slog.Logger
}

// New creates a Scanner. allowedExtensions entries starting with a dot
// are extension matches; the rest match extensionless basenames by
// prefix (dockerfile, makefile, readme, ...).
func New(allowedExtensions, excludedDirs []string, logger *slog.Logger) *Scanner {
	cache, _ := lru.New[string, *gitignore.Matcher](ignoreCacheSize)

	s := &Scanner{
		allowedExts:  make(map[string]struct{}),
		excludedDirs: make(map[string]struct{}),
		ignoreCache:  cache,
		logger:       logger,
	}
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.HasPrefix(e, ".") {
			s.allowedExts[e] = struct{}{}
		} else {
			s.specialNames = append(s.specialNames, e)
		}
	}
	for _, d := range excludedDirs {
		if d = strings.TrimSpace(d); d != "" {
			s.excludedDirs[d] = struct{}{}
		}
	}
	return s
}

// Scan walks root and sends eligible files on the returned channel.
// The channel closes when the walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) <-chan Result {
	out := make(chan Result, 64)

	go func() {
		defer close(out)

		matcher := s.matcherFor(root)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return nil // unreadable entry, keep walking
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if s.shouldSkipDir(d.Name()) || matcher.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}

			if !s.shouldEmit(rel, d.Name(), matcher) {
				return nil
			}

			info, statErr := d.Info()
			if statErr != nil {
				out <- Result{Err: statErr}
				return nil
			}

			fileType, language := Classify(d.Name())
			out <- Result{Info: FileInfo{
				RelPath:   rel,
				AbsPath:   path,
				Type:      fileType,
				Language:  language,
				Extension: strings.ToLower(filepath.Ext(d.Name())),
				Size:      info.Size(),
			}}
			return nil
		})
		if err != nil && err != ctx.Err() {
			s.logger.Warn("repository walk aborted", "root", root, "error", err)
		}
	}()

	return out
}

func (s *Scanner) shouldSkipDir(name string) bool {
	if _, ok := s.excludedDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".")
}

func (s *Scanner) shouldEmit(relPath, basename string, matcher *gitignore.Matcher) bool {
	if matcher.Match(relPath, false) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(basename))
	if IsBinaryExtension(ext) {
		return false
	}
	if ext != "" {
		_, ok := s.allowedExts[ext]
		return ok
	}

	lower := strings.ToLower(basename)
	for _, name := range s.specialNames {
		if strings.HasPrefix(lower, name) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached gitignore matcher for a repository
// root, loading the root .gitignore on first use.
func (s *Scanner) matcherFor(root string) *gitignore.Matcher {
	if m, ok := s.ignoreCache.Get(root); ok {
		return m
	}
	m, err := gitignore.Load(filepath.Join(root, ".gitignore"))
	if err != nil {
		s.logger.Warn("failed to load .gitignore", "root", root, "error", err)
		m = &gitignore.Matcher{}
	}
	s.ignoreCache.Add(root, m)
	return m
}
