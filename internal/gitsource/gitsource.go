package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones the repository at url into localPath, or pulls the
// latest changes when a checkout already exists there.
func Sync(ctx context.Context, url, localPath string, log *slog.Logger) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		log.Info("cloning repository", "url", url, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url})
		if err != nil {
			return fmt.Errorf("clone %s: %w", url, err)
		}
	case err == nil:
		log.Info("pulling repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("open repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("worktree at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("pull %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	return nil
}

// LocalPath maps a git URL to a stable checkout directory under
// baseDir. Handles https URLs and scp-style ssh addresses.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		return filepath.Join(baseDir, parsed.Host, strings.TrimSuffix(parsed.Path, ".git")), nil
	}
	// git@host:user/repo.git
	if strings.Contains(repoURL, "@") {
		if host, repoPath, ok := strings.Cut(repoURL, ":"); ok {
			if _, h, ok := strings.Cut(host, "@"); ok {
				return filepath.Join(baseDir, h, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
	}
	return "", fmt.Errorf("cannot parse git URL %q", repoURL)
}
