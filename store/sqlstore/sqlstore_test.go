package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vfsdag.sqlite")
	s, err := sqlstore.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateRepositoryCreatesDefaultBranch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	require.NotNil(t, repo.DefaultBranchID)

	main, err := s.GetBranchByName(ctx, repo.ID, "main")
	require.NoError(t, err)
	require.Equal(t, *repo.DefaultBranchID, main.ID)
}

func TestCreateRepositoryDuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	_, err = s.CreateRepository(ctx, "widgets")
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestUpdateBranchHeadCAS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	main, err := s.GetBranchByName(ctx, repo.ID, "main")
	require.NoError(t, err)

	c1, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)
	c2, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c1.ID, Message: "second"})
	require.NoError(t, err)

	_, err = s.UpdateBranchHead(ctx, main.ID, &c1.ID, c2.ID)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	updated, err := s.UpdateBranchHead(ctx, main.ID, nil, c1.ID)
	require.NoError(t, err)
	require.Equal(t, c1.ID, *updated.HeadCommitID)

	updated, err = s.UpdateBranchHead(ctx, main.ID, &c1.ID, c2.ID)
	require.NoError(t, err)
	require.Equal(t, c2.ID, *updated.HeadCommitID)
}

func TestAddFileEntryUpsertsByCommitAndPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	commit, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)

	first := "v1"
	_, err = s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/a.txt", Content: &first})
	require.NoError(t, err)

	second := "v2"
	entry, err := s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/a.txt", Content: &second})
	require.NoError(t, err)
	require.Equal(t, "v2", *entry.Content)

	all, err := s.ListFileEntries(ctx, commit.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCreateTagRejectsUnknownCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	_, err = s.CreateTag(ctx, store.CreateTagRequest{RepositoryID: repo.ID, Name: "v1", CommitID: repo.ID})
	var invalid *domain.InvalidCommitError
	require.True(t, errors.As(err, &invalid))
}
