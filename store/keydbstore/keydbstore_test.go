package keydbstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/keydbstore"
)

func newTestStore(t *testing.T) *keydbstore.Store {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return keydbstore.NewFromClient(client)
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
	require.Nil(t, main.HeadCommitID)
}

func TestCreateRepositoryDuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	_, err = s.CreateRepository(ctx, "widgets")
	require.Error(t, err)
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

	_, err = s.UpdateBranchHead(ctx, main.ID, nil, c1.ID)
	require.NoError(t, err)

	c2, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c1.ID, Message: "second"})
	require.NoError(t, err)

	// Stale expected head must be rejected.
	_, err = s.UpdateBranchHead(ctx, main.ID, nil, c2.ID)
	require.Error(t, err)

	updated, err := s.UpdateBranchHead(ctx, main.ID, &c1.ID, c2.ID)
	require.NoError(t, err)
	require.Equal(t, c2.ID, *updated.HeadCommitID)
}

func TestAddFileEntryNormalisesAndEnforcesTombstoneInvariant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	commit, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)

	content := "hello"
	entry, err := s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "a//b/../c", Content: &content})
	require.NoError(t, err)
	require.Equal(t, "/a/c", entry.Path)

	_, err = s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/d", Content: &content, IsDeleted: true})
	require.Error(t, err)

	entries, err := s.ListFileEntries(ctx, commit.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestArchiveStoreFetchRemove(t *testing.T) {
	ctx := context.Background()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	archive := keydbstore.NewArchive(client)
	repoID, entryID := uuid.New(), uuid.New()
	require.NoError(t, archive.Store(ctx, repoID, entryID, []byte("cold content")))

	data, err := archive.Fetch(ctx, repoID, entryID)
	require.NoError(t, err)
	require.Equal(t, "cold content", string(data))

	require.NoError(t, archive.Remove(ctx, repoID, entryID))
	_, err = archive.Fetch(ctx, repoID, entryID)
	var notFound *domain.NotFoundError
	require.True(t, errors.As(err, &notFound))
}
