package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// Cloner manages shallow clones under a fixed base directory. Clones
// are reused across ingests of the same repository unless the caller
// forces an update.
type Cloner struct {
	baseDir string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCloner creates a Cloner that clones into baseDir.
func NewCloner(baseDir string, timeout time.Duration, logger *slog.Logger) *Cloner {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Cloner{baseDir: baseDir, timeout: timeout, logger: logger}
}

// Clone ensures a local checkout of repoURL and returns its path.
// The target directory is {baseDir}/{owner}_{name}. An existing valid
// clone is reused when forceUpdate is false; otherwise it is removed
// and cloned fresh. A file lock serializes concurrent clones of the
// same repository across worker processes.
func (c *Cloner) Clone(ctx context.Context, repoURL string, forceUpdate bool) (string, error) {
	owner, name, err := ExtractOwnerRepo(repoURL)
	if err != nil {
		return "", apperr.InvalidURL(repoURL)
	}

	if err := os.MkdirAll(c.baseDir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.ErrCodeCloneDir, err)
	}

	target := filepath.Join(c.baseDir, fmt.Sprintf("%s_%s", owner, name))

	lock := flock.New(target + ".lock")
	if err := lock.Lock(); err != nil {
		return "", apperr.Wrap(apperr.ErrCodeCloneDir, err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(target); err == nil {
		if !forceUpdate && isGitRepo(target) {
			c.logger.Info("reusing existing clone", "path", target)
			return target, nil
		}
		c.logger.Info("removing stale clone", "path", target, "force_update", forceUpdate)
		if err := os.RemoveAll(target); err != nil {
			return "", apperr.Wrap(apperr.ErrCodeCloneDir, err)
		}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("cloning repository", "url", repoURL, "path", target, "timeout", c.timeout)

	cmd := exec.CommandContext(cloneCtx, "git",
		"-c", "http.version=HTTP/1.1",
		"-c", "http.postBuffer=524288000",
		"-c", "http.lowSpeedLimit=1000",
		"-c", "http.lowSpeedTime=300",
		"clone", "--depth", "1", "--single-branch",
		repoURL, target,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Partial clones are unusable, remove before reporting.
		_ = os.RemoveAll(target)
		if cloneCtx.Err() == context.DeadlineExceeded {
			return "", apperr.CloneFailed(repoURL, fmt.Errorf("clone timed out after %s", c.timeout))
		}
		return "", apperr.CloneFailed(repoURL, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}

	c.logger.Info("clone complete", "url", repoURL, "path", target)
	return target, nil
}

// isGitRepo reports whether dir contains a git checkout.
func isGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}
