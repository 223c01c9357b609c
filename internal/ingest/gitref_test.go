package ingest

import (
	"os"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func TestDetectGitRef_NonRepoReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, "", DetectGitRef(dir))
}

func TestDetectGitRef_BranchName(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitToRepo(t, repo, dir)

	ref := DetectGitRef(dir)
	require.NotEmpty(t, ref)
}

func TestDetectGitRef_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitToRepo(t, repo, dir)

	sub := dir + "/nested"
	require.NoError(t, os.MkdirAll(sub, 0o755))

	require.NotEmpty(t, DetectGitRef(sub))
}

func commitToRepo(t *testing.T, repo *git.Repository, dir string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)

	filePath := dir + "/README.md"
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)
}
