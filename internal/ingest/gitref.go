package ingest

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DetectGitRef returns the current branch name (or a short commit hash on
// detached HEAD) for root, walking up to parent directories if root itself
// isn't a repository root. Returns "" when root isn't inside a git
// repository at all, so callers can omit the tag rather than store a
// placeholder.
func DetectGitRef(root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		return ""
	}

	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	if head.Type() == plumbing.HashReference {
		hash := head.Hash().String()
		if len(hash) > 8 {
			return hash[:8]
		}
		return hash
	}
	return ""
}
