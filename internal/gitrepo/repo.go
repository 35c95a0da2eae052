// Package gitrepo handles repository URL validation, deterministic
// repository identifiers, and shallow clone management.
package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// queryFallbackRe matches the loose URL shapes the query path accepts
// when a caller passes a repository URL in place of a session id.
var queryFallbackRe = []*regexp.Regexp{
	regexp.MustCompile(`^https?://github\.com/.+/.+`),
	regexp.MustCompile(`^.+/.+\.git$`),
}

// LooksLikeRepoURL reports whether s plausibly names a GitHub
// repository rather than a session id.
func LooksLikeRepoURL(s string) bool {
	s = strings.TrimSpace(s)
	for _, re := range queryFallbackRe {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Validate reports whether url is a usable GitHub repository URL.
func Validate(rawURL string) bool {
	_, _, err := ExtractOwnerRepo(rawURL)
	return err == nil
}

// ExtractOwnerRepo parses owner and repository name out of a GitHub
// URL. Scheme-less URLs are treated as https; trailing ".git" and "#"
// fragments are stripped from the repository name.
func ExtractOwnerRepo(rawURL string) (owner, name string, err error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", "", fmt.Errorf("empty URL")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	parsed, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("parse URL: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("host %q is not github.com", parsed.Host)
	}

	parts := make([]string, 0, 2)
	for _, p := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("URL path missing owner/repo")
	}

	owner = parts[0]
	name = parts[1]
	if i := strings.Index(name, "#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, ".git")
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("URL path missing owner/repo")
	}
	return owner, name, nil
}

// Identifier derives the deterministic repository identifier used to
// key vector collections and clone directories:
//
//	github_{owner}_{name}_{first8(sha256("owner/name"))}
//
// The URL is normalized first (lowercased, scheme stripped, ".git"
// removed) so every URL spelling of the same repository maps to the
// same identifier.
func Identifier(rawURL string) (string, error) {
	owner, name, err := ExtractOwnerRepo(strings.ToLower(strings.TrimSpace(rawURL)))
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(owner + "/" + name))
	suffix := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("github_%s_%s_%s", owner, name, suffix), nil
}
