// Package gitcontext resolves the git metadata (commit, branch, dirty
// state) attached to each history run and diagnostics record (spec.md
// §4.15). Grounded on go-git/go-git/v5, the library the wider retrieval
// pack's manifests reach for whenever a repo embeds git plumbing.
package gitcontext

import (
	"github.com/go-git/go-git/v5"

	"github.com/argusci/argus/pkg/apierr"
)

// Info is the git context captured for a single run.
type Info struct {
	Commit  string
	Branch  string
	Dirty   bool
	Remote  string
}

// Resolve opens the repository rooted at dir and extracts its current
// commit, branch, dirty state, and primary remote. A dir that isn't a git
// repository yields a zero Info and no error -- git context is best-effort
// metadata, never a hard dependency of a run.
func Resolve(dir string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return Info{}, nil
		}
		return Info{}, apierr.Wrap(apierr.ConfigError, "opening git repository", err)
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, apierr.Wrap(apierr.ConfigError, "resolving HEAD", err)
	}

	info := Info{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err == nil {
		status, err := wt.Status()
		if err == nil {
			info.Dirty = !status.IsClean()
		}
	}

	remotes, err := repo.Remotes()
	if err == nil && len(remotes) > 0 {
		cfg := remotes[0].Config()
		if len(cfg.URLs) > 0 {
			info.Remote = cfg.URLs[0]
		}
	}

	return info, nil
}
