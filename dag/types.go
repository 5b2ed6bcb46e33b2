package dag

import (
	"time"

	"github.com/google/uuid"
)

// DeltaRow is one row of get_commit_delta: spec.md §4.3 literally, no
// ancestry resolution applied.
type DeltaRow struct {
	RepositoryID     uuid.UUID
	RepositoryName   string
	CommitID         uuid.UUID
	Path             string
	IsDeleted        bool
	IsSymlink        bool
	Content          *string
	CommitCreatedAt  time.Time
	CommitMessage    string
}

// SnapshotEntry is one row of get_commit_snapshot: the effective file at a
// path as of a commit, after walking parent ancestry and excluding
// tombstoned paths (spec §4.3).
type SnapshotEntry struct {
	Path      string
	IsSymlink bool
	Content   *string
	// OriginCommitID is the commit at which this path's winning entry was
	// recorded (the nearest ancestor that wrote it).
	OriginCommitID uuid.UUID
}

// HistoryRow is one row of get_file_history: every entry recorded for a
// path across a commit's ancestry, tombstones and symlinks included
// verbatim (spec §4.4).
type HistoryRow struct {
	CommitID  uuid.UUID
	Content   *string
	IsDeleted bool
	IsSymlink bool
	CreatedAt time.Time
}

// ConflictKind classifies a three-way divergence between base, left, and
// right (spec §4.6).
type ConflictKind string

const (
	ConflictAddAdd       ConflictKind = "add/add"
	ConflictModifyModify ConflictKind = "modify/modify"
	ConflictDeleteModify ConflictKind = "delete/modify"
	ConflictModifyDelete ConflictKind = "modify/delete"
)

// ConflictRow is one row of get_conflicts (spec §4.6).
type ConflictRow struct {
	MergeBaseCommitID uuid.UUID
	Path              string
	BaseExists        bool
	LeftExists        bool
	RightExists       bool
	BaseContent       *string
	LeftContent       *string
	RightContent      *string
	BaseIsSymlink     bool
	LeftIsSymlink     bool
	RightIsSymlink    bool
	ConflictKind      ConflictKind
}

// FinalizeOperation is the operation tag returned by finalize_commit
// (spec §4.7).
type FinalizeOperation string

const (
	OperationCommitted                  FinalizeOperation = "committed"
	OperationAlreadyUpToDate            FinalizeOperation = "already_up_to_date"
	OperationMerged                     FinalizeOperation = "merged"
	OperationMergedWithConflictsResolved FinalizeOperation = "merged_with_conflicts_resolved"
)

// FinalizeResult is returned by finalize_commit (spec §4.7).
type FinalizeResult struct {
	Operation           FinalizeOperation
	MergeCommitID        *uuid.UUID
	NewTargetHeadCommitID uuid.UUID
	AppliedFileCount      int
}

// RebaseOperation is the operation tag returned by rebase_branch
// (spec §4.8).
type RebaseOperation string

const (
	RebaseAlreadyUpToDate RebaseOperation = "already_up_to_date"
	RebaseFastForward     RebaseOperation = "fast_forward"
	RebaseRebased         RebaseOperation = "rebased"
)

// RebaseResult is returned by rebase_branch (spec §4.8).
type RebaseResult struct {
	Operation             RebaseOperation
	RebasedCommitID       *uuid.UUID
	NewBranchHeadCommitID uuid.UUID
	AppliedFileCount      int
}
