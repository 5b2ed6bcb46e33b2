package dag

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// FinalizeCommit implements C7's finalize_commit (spec §4.7): it validates
// commitID against targetBranchID's current head and advances the branch,
// dispatching on whether commitID is a merge commit.
func FinalizeCommit(ctx context.Context, es store.EntityStore, commitID, targetBranchID uuid.UUID) (FinalizeResult, error) {
	commit, err := es.GetCommit(ctx, commitID)
	if err != nil {
		return FinalizeResult{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: commitID.String()}
	}
	branch, err := es.GetBranch(ctx, targetBranchID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if commit.RepositoryID != branch.RepositoryID {
		return FinalizeResult{}, &domain.CrossRepositoryError{Left: commitID.String(), Right: targetBranchID.String()}
	}

	if !commit.IsMerge() {
		return finalizeNonMerge(ctx, es, commit, branch)
	}
	return finalizeMerge(ctx, es, commit, branch)
}

func finalizeNonMerge(ctx context.Context, es store.EntityStore, commit domain.Commit, branch domain.Branch) (FinalizeResult, error) {
	if !sameCommitPtr(branch.HeadCommitID, commit.ParentCommitID) {
		return FinalizeResult{}, &domain.FastForwardRequiredError{
			BranchHead: uuidPtrString(branch.HeadCommitID),
			Parent:     uuidPtrString(commit.ParentCommitID),
		}
	}

	if _, err := es.UpdateBranchHead(ctx, branch.ID, branch.HeadCommitID, commit.ID); err != nil {
		return FinalizeResult{}, err
	}

	entries, err := es.ListFileEntries(ctx, commit.ID)
	if err != nil {
		return FinalizeResult{}, err
	}

	return FinalizeResult{
		Operation:             OperationCommitted,
		NewTargetHeadCommitID: commit.ID,
		AppliedFileCount:      len(entries),
	}, nil
}

func finalizeMerge(ctx context.Context, es store.EntityStore, commit domain.Commit, branch domain.Branch) (FinalizeResult, error) {
	source := *commit.MergedFromCommitID
	preHead := branch.HeadCommitID

	if preHead != nil {
		sourceIsAncestor, err := isAncestor(ctx, es, source, *preHead)
		if err != nil {
			return FinalizeResult{}, err
		}
		if sourceIsAncestor {
			if _, err := es.UpdateBranchHead(ctx, branch.ID, preHead, commit.ID); err != nil {
				return FinalizeResult{}, err
			}
			mergeID := commit.ID
			return FinalizeResult{
				Operation:             OperationAlreadyUpToDate,
				MergeCommitID:         &mergeID,
				NewTargetHeadCommitID: commit.ID,
				AppliedFileCount:      0,
			}, nil
		}
	}

	if commit.ParentCommitID == nil {
		return FinalizeResult{}, &domain.ValidationError{Message: "merge commit has no parent to represent the target side"}
	}

	_, _, diffs, err := threeWayDiff(ctx, es, *commit.ParentCommitID, source)
	if err != nil {
		return FinalizeResult{}, err
	}

	var unresolved []string
	hadConflicts := false
	for path, d := range diffs {
		if !d.leftChanged || !d.rightChanged || statesEqual(d.left, d.right) {
			continue
		}
		hadConflicts = true
		_, found, err := es.GetFileEntry(ctx, commit.ID, path)
		if err != nil {
			return FinalizeResult{}, err
		}
		if !found {
			unresolved = append(unresolved, path)
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return FinalizeResult{}, &domain.MergeRequiresResolutionsError{Paths: unresolved}
	}

	applied := 0
	for path, d := range diffs {
		isConflict := d.leftChanged && d.rightChanged && !statesEqual(d.left, d.right)
		if isConflict {
			continue // caller's resolution already verified present above
		}
		if d.leftChanged || !d.rightChanged {
			continue // not a one-sided incoming change
		}

		_, found, err := es.GetFileEntry(ctx, commit.ID, path)
		if err != nil {
			return FinalizeResult{}, err
		}
		if found {
			continue // merge commit already overrides this path
		}

		req := store.AddFileEntryRequest{CommitID: commit.ID, Path: path}
		if d.right.exists {
			req.Content = d.right.content
			req.IsSymlink = d.right.isSymlink
		} else {
			req.IsDeleted = true
		}
		if _, err := es.AddFileEntry(ctx, req); err != nil {
			return FinalizeResult{}, err
		}
		applied++
	}

	if _, err := es.UpdateBranchHead(ctx, branch.ID, preHead, commit.ID); err != nil {
		return FinalizeResult{}, err
	}

	operation := OperationMerged
	if hadConflicts {
		operation = OperationMergedWithConflictsResolved
	}

	mergeID := commit.ID
	return FinalizeResult{
		Operation:             operation,
		MergeCommitID:         &mergeID,
		NewTargetHeadCommitID: commit.ID,
		AppliedFileCount:      applied,
	}, nil
}

func sameCommitPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return "<none>"
	}
	return id.String()
}
