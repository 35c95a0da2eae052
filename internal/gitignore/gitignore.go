// Package gitignore implements the subset of gitignore pattern syntax
// the file scanner needs: glob patterns from a repository root
// .gitignore, matched against POSIX-style repo-relative paths and
// against basenames. See https://git-scm.com/docs/gitignore.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher holds compiled patterns from a single .gitignore file.
// A Matcher is immutable after Load/Parse and safe for concurrent use.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
}

// Load reads a .gitignore file. A missing file yields an empty matcher.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	m := &Matcher{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gitignore: %w", err)
	}
	return m, nil
}

// Parse builds a matcher from gitignore content. Used in tests and
// when the content is already in memory.
func Parse(content string) *Matcher {
	m := &Matcher{}
	for _, line := range strings.Split(content, "\n") {
		m.add(line)
	}
	return m
}

func (m *Matcher) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	r := rule{pattern: line}

	if strings.HasPrefix(line, "!") {
		r.negation = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		// A slash anywhere in the pattern anchors it to the root.
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + globToRegex(line) + "$")
	m.rules = append(m.rules, r)
}

// Match reports whether the repo-relative path is ignored. Later rules
// override earlier ones, so negations work the way git applies them.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" {
		return false
	}

	ignored := false
	for _, r := range m.rules {
		if r.matches(relPath, isDir) {
			ignored = !r.negation
		}
	}
	return ignored
}

func (r rule) matches(path string, isDir bool) bool {
	parts := strings.Split(path, "/")

	if r.anchored {
		if r.regex.MatchString(path) {
			return !r.dirOnly || isDir
		}
		// A directory pattern also ignores everything beneath it.
		for i := 1; i < len(parts); i++ {
			if r.regex.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				return i < len(parts)-1 || isDir
			}
		}
		return false
	}

	// Unanchored file patterns match the basename, any path component,
	// or (for ** patterns) the full path.
	if r.regex.MatchString(parts[len(parts)-1]) || r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts[:len(parts)-1] {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// globToRegex compiles a gitignore glob into a regular expression.
func globToRegex(pattern string) string {
	var b strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 3
			} else if strings.HasPrefix(pattern[i:], "**") {
				b.WriteString(".*")
				i += 2
			} else {
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				b.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
