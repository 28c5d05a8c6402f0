// Package gitvault owns the working copy of the content repository. Every
// mutation runs under one exclusive lock for the whole add-commit-push or
// pull-append-commit-push sequence, so commits never interleave and the
// remote history reflects a total order.
package gitvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/uuid"

	"ArticleStock/internal/domain"
	"ArticleStock/internal/markdown"
	"ArticleStock/internal/ports"
)

const articlesDir = "articles"

// ErrArticleNotFound reports an append against a file that is missing from
// the working copy after pulling the latest remote state.
var ErrArticleNotFound = errors.New("article file not found")

// ErrPushExhausted reports a push that failed after all retry attempts.
// The local commit and file are retained; a PendingPushBackup records the
// content for manual recovery.
var ErrPushExhausted = errors.New("push retries exhausted")

// Options configures the synchronizer.
type Options struct {
	Path        string // working copy root
	RemoteURL   string // origin URL, set on init when the copy is fresh
	PushToken   string // opaque credential for the remote
	AuthorName  string
	AuthorEmail string
	Retries     int           // push attempts, default 3
	Backoff     time.Duration // fixed wait between attempts, default 2s
}

// Synchronizer serializes all repository mutations behind a single mutex.
type Synchronizer struct {
	mu      sync.Mutex
	repo    *git.Repository
	opts    Options
	backups ports.BackupStore
	logger  *slog.Logger
}

var _ ports.VaultSync = (*Synchronizer)(nil)

// New opens the working copy, initializing a fresh repository (with the
// configured origin) when none exists, and ensures the articles directory.
func New(opts Options, backups ports.BackupStore, logger *slog.Logger) (*Synchronizer, error) {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}

	repo, err := git.PlainOpen(opts.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(opts.Path, false)
		if err == nil && opts.RemoteURL != "" {
			_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
				Name: git.DefaultRemoteName,
				URLs: []string{opts.RemoteURL},
			})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open working copy %s: %w", opts.Path, err)
	}

	if err := os.MkdirAll(filepath.Join(opts.Path, articlesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create articles dir: %w", err)
	}

	return &Synchronizer{repo: repo, opts: opts, backups: backups, logger: logger}, nil
}

// WriteNew writes a document, commits it, and pushes. Push failures are
// retried on the same commit; after the final attempt the content is
// preserved as a PendingPushBackup and the error returned. The local file
// is never deleted on failure.
func (s *Synchronizer) WriteNew(ctx context.Context, filename, content, commitLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullPath := filepath.Join(s.opts.Path, articlesDir, filename)
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	if err := s.commit(filename, commitLabel); err != nil {
		return err
	}

	if err := s.pushWithRetry(ctx); err != nil {
		s.recordBackup(ctx, filename, content, err)
		return fmt.Errorf("sync %s: %w", filename, err)
	}

	s.debug("document synchronized", "filename", filename)
	return nil
}

// AppendComment pulls the latest remote state, appends one comment line
// under the document's comments section, and runs the same
// commit-push-retry sequence as WriteNew. It fails fast, with no partial
// rewrite, when the target file cannot be located or the pull conflicts.
func (s *Synchronizer) AppendComment(ctx context.Context, filename, text string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The remote stays the source of truth for existing content: the
	// repository may be modified by other means than this process.
	if err := s.pull(ctx); err != nil {
		return fmt.Errorf("pull before append: %w", err)
	}

	fullPath := filepath.Join(s.opts.Path, articlesDir, filename)
	existing, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArticleNotFound, filename)
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}

	updated := markdown.AppendComment(string(existing), text, date)
	if err := os.WriteFile(fullPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	if err := s.commit(filename, "Add comment: "+filename); err != nil {
		return err
	}

	if err := s.pushWithRetry(ctx); err != nil {
		s.recordBackup(ctx, filename, updated, err)
		return fmt.Errorf("sync comment on %s: %w", filename, err)
	}

	s.debug("comment synchronized", "filename", filename)
	return nil
}

// FindByURL scans the working copy for the article whose front matter
// carries the given URL. Read-only helper for recovery tooling; it takes
// the same lock so it never observes a mid-mutation tree.
func (s *Synchronizer) FindByURL(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.opts.Path, articlesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read articles dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), markdown.Extension) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		fm, err := markdown.ParseFrontMatter(string(raw))
		if err != nil {
			continue
		}
		if fm.URL == url {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("%w: url %s", ErrArticleNotFound, url)
}

func (s *Synchronizer) commit(filename, message string) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if _, err := worktree.Add(path.Join(articlesDir, filename)); err != nil {
		return fmt.Errorf("stage %s: %w", filename, err)
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.opts.AuthorName,
			Email: s.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", filename, err)
	}

	s.debug("committed", "filename", filename, "message", message)
	return nil
}

// pushWithRetry pushes the existing local commit up to Retries times with
// a fixed backoff. No new commit is created per attempt.
func (s *Synchronizer) pushWithRetry(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= s.opts.Retries; attempt++ {
		err := s.repo.PushContext(ctx, &git.PushOptions{
			RemoteName: git.DefaultRemoteName,
			Auth:       s.auth(),
		})
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			if attempt > 1 {
				s.debug("push succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		s.warn("push failed", "attempt", attempt, "retries", s.opts.Retries, "error", err)

		if attempt < s.opts.Retries {
			select {
			case <-time.After(s.opts.Backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrPushExhausted, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrPushExhausted, s.opts.Retries, lastErr)
}

func (s *Synchronizer) pull(ctx context.Context) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       s.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// recordBackup persists the unpushed content so it is never silently
// discarded. A failing store is logged loudly but does not mask the
// original push error.
func (s *Synchronizer) recordBackup(ctx context.Context, filename, content string, cause error) {
	if s.backups == nil {
		s.warn("no backup store configured, unpushed content only on disk", "filename", filename)
		return
	}

	backup := domain.PendingPushBackup{
		ID:        uuid.NewString(),
		Filename:  filename,
		Content:   content,
		Reason:    cause.Error(),
		CreatedAt: time.Now(),
	}
	if err := s.backups.SaveBackup(ctx, backup); err != nil {
		s.warn("failed to persist push backup", "filename", filename, "error", err)
		return
	}
	s.warn("push exhausted, backup recorded", "filename", filename, "backup_id", backup.ID)
}

func (s *Synchronizer) auth() transport.AuthMethod {
	if s.opts.PushToken == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "git", Password: s.opts.PushToken}
}

func (s *Synchronizer) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Synchronizer) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
