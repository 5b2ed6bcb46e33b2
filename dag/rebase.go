package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// RebaseBranch implements C8's rebase_branch (spec §4.8): it reparents
// branch's tip linearly onto ontoBranch's tip, collapsing branch's
// divergent history into a single new commit.
func RebaseBranch(ctx context.Context, es store.EntityStore, branchID, ontoBranchID uuid.UUID, message string) (RebaseResult, error) {
	branch, err := es.GetBranch(ctx, branchID)
	if err != nil {
		return RebaseResult{}, err
	}
	onto, err := es.GetBranch(ctx, ontoBranchID)
	if err != nil {
		return RebaseResult{}, err
	}
	if branch.RepositoryID != onto.RepositoryID {
		return RebaseResult{}, &domain.CrossRepositoryError{Left: branchID.String(), Right: ontoBranchID.String()}
	}

	b := branch.HeadCommitID
	o := onto.HeadCommitID

	if o == nil {
		// onto has nothing to contribute; branch is trivially up to date.
		return RebaseResult{Operation: RebaseAlreadyUpToDate, NewBranchHeadCommitID: zeroOr(b)}, nil
	}
	if b == nil {
		// branch has no commits yet: fast-forward onto onto's tip.
		if _, err := es.UpdateBranchHead(ctx, branch.ID, b, *o); err != nil {
			return RebaseResult{}, err
		}
		return RebaseResult{Operation: RebaseFastForward, NewBranchHeadCommitID: *o}, nil
	}

	ontoIsAncestorOfBranch, err := isAncestor(ctx, es, *o, *b)
	if err != nil {
		return RebaseResult{}, err
	}
	if ontoIsAncestorOfBranch {
		return RebaseResult{Operation: RebaseAlreadyUpToDate, NewBranchHeadCommitID: *b}, nil
	}

	branchIsAncestorOfOnto, err := isAncestor(ctx, es, *b, *o)
	if err != nil {
		return RebaseResult{}, err
	}
	if branchIsAncestorOfOnto {
		if _, err := es.UpdateBranchHead(ctx, branch.ID, b, *o); err != nil {
			return RebaseResult{}, err
		}
		return RebaseResult{Operation: RebaseFastForward, NewBranchHeadCommitID: *o}, nil
	}

	base, hasBase, err := GetMergeBase(ctx, es, *b, *o)
	if err != nil {
		return RebaseResult{}, err
	}

	changes, err := branchEffectiveChanges(ctx, es, base, hasBase, *b)
	if err != nil {
		return RebaseResult{}, err
	}

	_, conflicts, err := GetConflicts(ctx, es, *o, *b)
	if err != nil {
		return RebaseResult{}, err
	}
	if len(conflicts) > 0 {
		paths := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			paths = append(paths, c.Path)
		}
		return RebaseResult{}, &domain.RebaseBlockedError{Paths: paths}
	}

	newCommit, err := es.CreateCommit(ctx, store.CreateCommitRequest{
		RepositoryID:   branch.RepositoryID,
		ParentCommitID: o,
		Message:        message,
	})
	if err != nil {
		return RebaseResult{}, err
	}

	applied := 0
	for path, state := range changes {
		req := store.AddFileEntryRequest{CommitID: newCommit.ID, Path: path}
		if state.exists {
			req.Content = state.content
			req.IsSymlink = state.isSymlink
		} else {
			req.IsDeleted = true
		}
		if _, err := es.AddFileEntry(ctx, req); err != nil {
			return RebaseResult{}, err
		}
		applied++
	}

	if _, err := es.UpdateBranchHead(ctx, branch.ID, b, newCommit.ID); err != nil {
		return RebaseResult{}, err
	}

	rebasedID := newCommit.ID
	return RebaseResult{
		Operation:             RebaseRebased,
		RebasedCommitID:       &rebasedID,
		NewBranchHeadCommitID: newCommit.ID,
		AppliedFileCount:      applied,
	}, nil
}

// branchEffectiveChanges computes the difference between the snapshot at
// head and the snapshot at base (or an empty snapshot, if the two commits
// share no common ancestor), i.e. the effective changes the branch
// introduced since diverging (spec §4.8 step 3).
func branchEffectiveChanges(ctx context.Context, es store.EntityStore, base uuid.UUID, hasBase bool, head uuid.UUID) (map[string]sideState, error) {
	baseStates := map[string]sideState{}
	if hasBase {
		resolved, err := resolveSnapshot(ctx, es, base)
		if err != nil {
			return nil, err
		}
		baseStates = toSideStates(resolved)
	}

	headResolved, err := resolveSnapshot(ctx, es, head)
	if err != nil {
		return nil, err
	}
	headStates := toSideStates(headResolved)

	changes := map[string]sideState{}
	for path, headState := range headStates {
		if !statesEqual(baseStates[path], headState) {
			changes[path] = headState
		}
	}
	for path, baseState := range baseStates {
		if _, ok := headStates[path]; ok {
			continue
		}
		if baseState.exists {
			changes[path] = sideState{exists: false}
		}
	}
	return changes, nil
}

func zeroOr(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
