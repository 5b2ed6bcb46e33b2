package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/memory"
)

func TestCreateRepositoryCreatesDefaultMainBranch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

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
	s := memory.New()

	_, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	_, err = s.CreateRepository(ctx, "widgets")
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestCreateBranchDefaultsHeadToRepositoryDefault(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	c1, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)
	_, err = s.UpdateBranchHead(ctx, *repo.DefaultBranchID, nil, c1.ID)
	require.NoError(t, err)

	feature, err := s.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)
	require.Equal(t, c1.ID, *feature.HeadCommitID)
}

func TestUpdateBranchHeadRejectsStaleExpectedHead(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	main, err := s.GetBranchByName(ctx, repo.ID, "main")
	require.NoError(t, err)

	c1, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)
	c2, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c1.ID, Message: "second"})
	require.NoError(t, err)

	_, err = s.UpdateBranchHead(ctx, main.ID, nil, c1.ID)
	require.NoError(t, err)

	_, err = s.UpdateBranchHead(ctx, main.ID, nil, c2.ID)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	_, err = s.UpdateBranchHead(ctx, main.ID, &c1.ID, c2.ID)
	require.NoError(t, err)
}

func TestAddFileEntryNormalisesPathAndEnforcesInvariants(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	commit, err := s.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)

	content := "hello"
	entry, err := s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "a//b/../c", Content: &content})
	require.NoError(t, err)
	require.Equal(t, "/a/c", entry.Path)

	_, err = s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/d", Content: &content, IsDeleted: true})
	var validation *domain.ValidationError
	require.True(t, errors.As(err, &validation))

	_, err = s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/link", IsSymlink: true})
	require.True(t, errors.As(err, &validation))

	target := "../other"
	link, err := s.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: commit.ID, Path: "/nested/link", Content: &target, IsSymlink: true})
	require.NoError(t, err)
	require.Equal(t, "/other", *link.Content)
}

func TestCreateAuthorIsIdempotentPerName(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	a1, err := s.CreateAuthor(ctx, store.CreateAuthorRequest{RepositoryID: repo.ID, Name: "ada"})
	require.NoError(t, err)
	a2, err := s.CreateAuthor(ctx, store.CreateAuthorRequest{RepositoryID: repo.ID, Name: "ada"})
	require.NoError(t, err)
	require.Equal(t, a1.ID, a2.ID)
}

func TestCreateTagRejectsUnknownCommit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	repo, err := s.CreateRepository(ctx, "widgets")
	require.NoError(t, err)

	_, err = s.CreateTag(ctx, store.CreateTagRequest{RepositoryID: repo.ID, Name: "v1", CommitID: repo.ID})
	var invalid *domain.InvalidCommitError
	require.True(t, errors.As(err, &invalid))
}
