package dag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/dag"
	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/memory"
)

func strp(s string) *string { return &s }

func setup(t *testing.T) (*dag.Engine, domain.Repository, domain.Branch) {
	t.Helper()
	ctx := context.Background()
	es := memory.New()
	engine := dag.New(es)

	repo, err := engine.CreateRepository(ctx, "widgets")
	require.NoError(t, err)
	main, err := es.GetBranchByName(ctx, repo.ID, "main")
	require.NoError(t, err)
	return engine, repo, main
}

func TestSnapshotAndHistoryAcrossLinearChain(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	c1, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "add a"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c1.ID, Path: "/a.txt", Content: strp("v1")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, c1.ID, main.ID)
	require.NoError(t, err)

	c2, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c1.ID, Message: "update a, add b"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c2.ID, Path: "/a.txt", Content: strp("v2")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c2.ID, Path: "/b.txt", Content: strp("new")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, c2.ID, main.ID)
	require.NoError(t, err)

	c3, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c2.ID, Message: "delete b"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c3.ID, Path: "/b.txt", IsDeleted: true})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, c3.ID, main.ID)
	require.NoError(t, err)

	snapshot, err := engine.GetCommitSnapshot(ctx, c3.ID)
	require.NoError(t, err)
	byPath := map[string]dag.SnapshotEntry{}
	for _, e := range snapshot {
		byPath[e.Path] = e
	}
	require.Contains(t, byPath, "/a.txt")
	require.NotContains(t, byPath, "/b.txt", "tombstoned path excluded from snapshot")
	require.Equal(t, "v2", *byPath["/a.txt"].Content)

	content, err := engine.ReadFile(ctx, c3.ID, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, "v2", *content)

	deleted, err := engine.ReadFile(ctx, c3.ID, "/b.txt")
	require.NoError(t, err)
	require.Nil(t, deleted)

	history, err := engine.GetFileHistory(ctx, c3.ID, "/a.txt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "v2", *history[0].Content)
	require.Equal(t, "v1", *history[1].Content)
}

func TestGetMergeBaseDivergentBranches(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	base, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "base"})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, base.ID, main.ID)
	require.NoError(t, err)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)

	left, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "left"})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, left.ID, main.ID)
	require.NoError(t, err)

	right, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "right"})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, right.ID, feature.ID)
	require.NoError(t, err)

	mergeBase, found, err := engine.GetMergeBase(ctx, left.ID, right.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, base.ID, mergeBase)

	sameBase, found, err := engine.GetMergeBase(ctx, left.ID, left.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, left.ID, sameBase)
}

func TestGetConflictsClassifiesEachKind(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	base, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "base"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: base.ID, Path: "/modify.txt", Content: strp("base")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: base.ID, Path: "/delete.txt", Content: strp("base")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: base.ID, Path: "/onesided.txt", Content: strp("base")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, base.ID, main.ID)
	require.NoError(t, err)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)

	left, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "left"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: left.ID, Path: "/modify.txt", Content: strp("left")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: left.ID, Path: "/delete.txt", IsDeleted: true})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: left.ID, Path: "/addadd.txt", Content: strp("left-new")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, left.ID, main.ID)
	require.NoError(t, err)

	right, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "right"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: right.ID, Path: "/modify.txt", Content: strp("right")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: right.ID, Path: "/delete.txt", Content: strp("right-edit")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: right.ID, Path: "/addadd.txt", Content: strp("right-new")})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: right.ID, Path: "/onesided.txt", Content: strp("right-only")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, right.ID, feature.ID)
	require.NoError(t, err)

	_, rows, err := engine.GetConflicts(ctx, left.ID, right.ID)
	require.NoError(t, err)

	kinds := map[string]dag.ConflictKind{}
	for _, row := range rows {
		kinds[row.Path] = row.ConflictKind
	}
	require.Equal(t, dag.ConflictModifyModify, kinds["/modify.txt"])
	require.Equal(t, dag.ConflictDeleteModify, kinds["/delete.txt"])
	require.Equal(t, dag.ConflictAddAdd, kinds["/addadd.txt"])
	require.NotContains(t, kinds, "/onesided.txt", "only one side changed: not a conflict")
}

func TestFinalizeCommitFastForwardRequired(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	c1, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "first"})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, c1.ID, main.ID)
	require.NoError(t, err)

	stray, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "stray, no parent set to main head"})
	require.NoError(t, err)

	_, err = engine.FinalizeCommit(ctx, stray.ID, main.ID)
	require.Error(t, err)
	var ffErr *domain.FastForwardRequiredError
	require.True(t, errors.As(err, &ffErr))
}

func TestFinalizeCommitMergeRequiresResolutions(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	base, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "base"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: base.ID, Path: "/f.txt", Content: strp("base")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, base.ID, main.ID)
	require.NoError(t, err)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)

	mainChange, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "main change"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: mainChange.ID, Path: "/f.txt", Content: strp("main")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, mainChange.ID, main.ID)
	require.NoError(t, err)

	featureChange, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "feature change"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: featureChange.ID, Path: "/f.txt", Content: strp("feature")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, featureChange.ID, feature.ID)
	require.NoError(t, err)

	mergeNoResolution, err := engine.CreateCommit(ctx, store.CreateCommitRequest{
		RepositoryID:       repo.ID,
		ParentCommitID:     &mainChange.ID,
		MergedFromCommitID: &featureChange.ID,
		Message:            "merge feature",
	})
	require.NoError(t, err)

	_, err = engine.FinalizeCommit(ctx, mergeNoResolution.ID, main.ID)
	require.Error(t, err)
	var resErr *domain.MergeRequiresResolutionsError
	require.True(t, errors.As(err, &resErr))
	require.Contains(t, resErr.Paths, "/f.txt")

	mergeResolved, err := engine.CreateCommit(ctx, store.CreateCommitRequest{
		RepositoryID:       repo.ID,
		ParentCommitID:     &mainChange.ID,
		MergedFromCommitID: &featureChange.ID,
		Message:            "merge feature, resolved",
	})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: mergeResolved.ID, Path: "/f.txt", Content: strp("resolved")})
	require.NoError(t, err)

	result, err := engine.FinalizeCommit(ctx, mergeResolved.ID, main.ID)
	require.NoError(t, err)
	require.Equal(t, dag.OperationMergedWithConflictsResolved, result.Operation)

	content, err := engine.ReadFile(ctx, result.NewTargetHeadCommitID, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, "resolved", *content)
}

func TestRebaseBranchNoopFastForwardAndRebased(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	base, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "base"})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, base.ID, main.ID)
	require.NoError(t, err)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)

	// Noop: feature is already at main's head.
	result, err := engine.RebaseBranch(ctx, feature.ID, main.ID, "rebase noop")
	require.NoError(t, err)
	require.Equal(t, dag.RebaseAlreadyUpToDate, result.Operation)

	featureCommit, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "feature work"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: featureCommit.ID, Path: "/feature.txt", Content: strp("feature")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, featureCommit.ID, feature.ID)
	require.NoError(t, err)

	// Fast-forward: main has not moved since base, feature is strictly ahead.
	ffResult, err := engine.RebaseBranch(ctx, main.ID, feature.ID, "ff main onto feature")
	require.NoError(t, err)
	require.Equal(t, dag.RebaseFastForward, ffResult.Operation)
	require.Equal(t, featureCommit.ID, ffResult.NewBranchHeadCommitID)

	mainOnlyBranch, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "main-only", HeadCommitID: &base.ID})
	require.NoError(t, err)
	mainOnlyCommit, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "main-only work"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: mainOnlyCommit.ID, Path: "/other.txt", Content: strp("other")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, mainOnlyCommit.ID, mainOnlyBranch.ID)
	require.NoError(t, err)

	// Diverged, non-conflicting: rebase main-only onto main (now at featureCommit after the fast-forward).
	rebaseResult, err := engine.RebaseBranch(ctx, mainOnlyBranch.ID, main.ID, "rebase main-only onto main")
	require.NoError(t, err)
	require.Equal(t, dag.RebaseRebased, rebaseResult.Operation)
	require.NotNil(t, rebaseResult.RebasedCommitID)
	require.Equal(t, 1, rebaseResult.AppliedFileCount)

	snapshot, err := engine.GetCommitSnapshot(ctx, rebaseResult.NewBranchHeadCommitID)
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, e := range snapshot {
		paths[e.Path] = true
	}
	require.True(t, paths["/feature.txt"])
	require.True(t, paths["/other.txt"])
}

func TestRebaseBranchBlockedByConflict(t *testing.T) {
	ctx := context.Background()
	engine, repo, main := setup(t)

	base, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "base"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: base.ID, Path: "/f.txt", Content: strp("base")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, base.ID, main.ID)
	require.NoError(t, err)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	require.NoError(t, err)

	mainCommit, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "main edit"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: mainCommit.ID, Path: "/f.txt", Content: strp("main")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, mainCommit.ID, main.ID)
	require.NoError(t, err)

	featureCommit, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &base.ID, Message: "feature edit"})
	require.NoError(t, err)
	_, err = engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: featureCommit.ID, Path: "/f.txt", Content: strp("feature")})
	require.NoError(t, err)
	_, err = engine.FinalizeCommit(ctx, featureCommit.ID, feature.ID)
	require.NoError(t, err)

	_, err = engine.RebaseBranch(ctx, feature.ID, main.ID, "rebase feature onto main")
	require.Error(t, err)
	var blocked *domain.RebaseBlockedError
	require.True(t, errors.As(err, &blocked))
	require.Contains(t, blocked.Paths, "/f.txt")
}

func TestRenderContentDiff(t *testing.T) {
	diff := dag.RenderContentDiff(strp("line one\n"), strp("line one\nline two\n"))
	require.Contains(t, diff, "+line two")

	require.Empty(t, dag.RenderContentDiff(strp("same"), strp("same")))
}
