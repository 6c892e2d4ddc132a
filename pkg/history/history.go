// Package history keeps a local Git log of the data directory so account and
// device mutations can be audited and recovered.
package history

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/renlou/orbit/pkg/invoke"
)

// Status represents Git state following a snapshot attempt.
type Status struct {
	Committed bool   `json:"committed"`
	Hash      string `json:"hash,omitempty"`
}

// Repo wraps a local Git repository rooted at the data directory.
type Repo struct {
	path   string
	repo   *git.Repository
	logger invoke.Logger
}

// Socket and log files never belong in the history.
const ignoreRules = "*.sock\n*.log\n*.db-wal\n*.db-shm\n"

// Open opens the repository at path, initializing it on first use.
func Open(path string, logger invoke.Logger) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, err
	}
	ignorePath := filepath.Join(path, ".gitignore")
	if _, statErr := os.Stat(ignorePath); os.IsNotExist(statErr) {
		if writeErr := os.WriteFile(ignorePath, []byte(ignoreRules), 0o600); writeErr != nil && logger != nil {
			logger.Printf("write .gitignore: %v", writeErr)
		}
	}
	return &Repo{path: path, repo: repo, logger: logger}, nil
}

// Snapshot stages everything under the data directory and commits it. A clean
// worktree produces no commit and is not an error.
func (r *Repo) Snapshot(message string) (Status, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return Status{}, err
	}
	status, err := wt.Status()
	if err != nil {
		return Status{}, err
	}
	if status.IsClean() {
		return Status{}, nil
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "orbitd",
			Email: "orbitd@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return Status{}, err
	}
	return Status{Committed: true, Hash: hash.String()}, nil
}

// Log returns the most recent snapshot messages, newest first.
func (r *Repo) Log(limit int) ([]string, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Initialized but never committed: no history yet.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]string, 0, limit)
	for len(out) < limit {
		commit, err := iter.Next()
		if err != nil {
			break
		}
		out = append(out, commit.Message)
	}
	return out, nil
}
