// Package dag implements the commit DAG engine (components C3 through C8):
// snapshot resolution, history reads, merge-base discovery, conflict
// detection, finalize/merge, and rebase. It is built entirely against the
// store.EntityStore contract (C2) and domain.NormalisePath (C1); it owns no
// persistence of its own.
package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// Engine wires an EntityStore into the named operations a caller drives a
// repository through. It holds no state of its own beyond the store, so the
// zero value is unusable but a *Engine is safe for concurrent use to the
// extent its EntityStore is.
type Engine struct {
	Store store.EntityStore
}

// New returns an Engine backed by es.
func New(es store.EntityStore) *Engine {
	return &Engine{Store: es}
}

// CreateRepository creates a repository and its initial default branch.
func (e *Engine) CreateRepository(ctx context.Context, name string) (domain.Repository, error) {
	return e.Store.CreateRepository(ctx, name)
}

// CreateBranch creates a branch within a repository, defaulting its head to
// the repository's default branch head when req.HeadCommitID is nil.
func (e *Engine) CreateBranch(ctx context.Context, req store.CreateBranchRequest) (domain.Branch, error) {
	return e.Store.CreateBranch(ctx, req)
}

// CreateCommit records a new commit node. Use MergedFromCommitID to record a
// merge commit (spec §3); leave it nil for an ordinary commit.
func (e *Engine) CreateCommit(ctx context.Context, req store.CreateCommitRequest) (domain.Commit, error) {
	return e.Store.CreateCommit(ctx, req)
}

// AddFileEntry records one path's state at a commit.
func (e *Engine) AddFileEntry(ctx context.Context, req store.AddFileEntryRequest) (domain.FileEntry, error) {
	return e.Store.AddFileEntry(ctx, req)
}

// CreateTag anchors a commit to an immutable label.
func (e *Engine) CreateTag(ctx context.Context, req store.CreateTagRequest) (domain.Tag, error) {
	return e.Store.CreateTag(ctx, req)
}

// GetCommitDelta is C3's get_commit_delta.
func (e *Engine) GetCommitDelta(ctx context.Context, commitID uuid.UUID) ([]DeltaRow, error) {
	return GetCommitDelta(ctx, e.Store, commitID)
}

// GetCommitSnapshot is C3's get_commit_snapshot.
func (e *Engine) GetCommitSnapshot(ctx context.Context, commitID uuid.UUID) ([]SnapshotEntry, error) {
	return GetCommitSnapshot(ctx, e.Store, commitID)
}

// ReadFile is C4's read_file.
func (e *Engine) ReadFile(ctx context.Context, commitID uuid.UUID, path string) (*string, error) {
	return ReadFile(ctx, e.Store, commitID, path)
}

// GetFileHistory is C4's get_file_history.
func (e *Engine) GetFileHistory(ctx context.Context, commitID uuid.UUID, path string) ([]HistoryRow, error) {
	return GetFileHistory(ctx, e.Store, commitID, path)
}

// GetMergeBase is C5's get_merge_base.
func (e *Engine) GetMergeBase(ctx context.Context, a, b uuid.UUID) (uuid.UUID, bool, error) {
	return GetMergeBase(ctx, e.Store, a, b)
}

// GetConflicts is C6's get_conflicts.
func (e *Engine) GetConflicts(ctx context.Context, left, right uuid.UUID) (uuid.UUID, []ConflictRow, error) {
	return GetConflicts(ctx, e.Store, left, right)
}

// FinalizeCommit is C7's finalize_commit.
func (e *Engine) FinalizeCommit(ctx context.Context, commitID, targetBranchID uuid.UUID) (FinalizeResult, error) {
	return FinalizeCommit(ctx, e.Store, commitID, targetBranchID)
}

// RebaseBranch is C8's rebase_branch.
func (e *Engine) RebaseBranch(ctx context.Context, branchID, ontoBranchID uuid.UUID, message string) (RebaseResult, error) {
	return RebaseBranch(ctx, e.Store, branchID, ontoBranchID, message)
}

// RenderContentDiff renders a unified diff between two file content blobs,
// typically a pair of HistoryRow or ConflictRow sides.
func (e *Engine) RenderContentDiff(previous, current *string) string {
	return RenderContentDiff(previous, current)
}
