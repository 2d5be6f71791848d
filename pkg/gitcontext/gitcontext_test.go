package gitcontext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNonRepoReturnsZeroInfo(t *testing.T) {
	dir := t.TempDir()
	info, err := Resolve(dir)
	require.NoError(t, err)
	assert.Empty(t, info.Commit)
}

func TestResolveReadsCommitAndBranch(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)

	info, err := Resolve(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.Branch)
	assert.False(t, info.Dirty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed"), 0o644))
	info, err = Resolve(dir)
	require.NoError(t, err)
	assert.True(t, info.Dirty)
}
