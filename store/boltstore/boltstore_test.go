package boltstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/boltstore"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "vfsdag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateRepositoryAndCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	main, err := s.GetBranchByName(ctx, repo.ID, "main")
	require.NoError(t, err)
	require.Nil(t, main.HeadCommitID)

	commit, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)

	content := "hello world"
	_, err = s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/a.txt", Content: &content})
	require.NoError(t, err)

	_, err = s.UpdateBranchHead(ctx, main.ID, nil, commit.ID)
	require.NoError(t, err)

	entries, err := s.ListFileEntries(ctx, commit.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/a.txt", entries[0].Path)
}

func TestReopenPersistsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vfsdag.db")

	s1, err := boltstore.Open(path)
	require.NoError(t, err)
	repo, err := s1.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	reloaded, err := s2.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	require.Equal(t, "widgets", reloaded.Name)
}

func TestArchiveStoreFetchRemove(t *testing.T) {
	ctx := context.Background()
	archive, err := boltstore.OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

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
