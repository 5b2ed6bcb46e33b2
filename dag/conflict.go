package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// sideState is a path's derived (exists, content, is_symlink) tuple on one
// side of a three-way comparison (spec §4.6 step 3).
type sideState struct {
	exists    bool
	content   *string
	isSymlink bool
}

// threeWayPath holds one path's base/left/right states plus whether each
// side changed relative to base.
type threeWayPath struct {
	base, left, right         sideState
	leftChanged, rightChanged bool
}

// threeWayDiff computes, for every path touched in base/left/right
// snapshots, the derived states and whether each non-base side changed.
// It underlies both get_conflicts (C6) and finalize_commit's one-sided
// incoming-change copy step (C7).
func threeWayDiff(ctx context.Context, es store.EntityStore, left, right uuid.UUID) (base uuid.UUID, hasBase bool, diffs map[string]threeWayPath, err error) {
	base, hasBase, err = GetMergeBase(ctx, es, left, right)
	if err != nil {
		return uuid.Nil, false, nil, err
	}

	baseStates := map[string]sideState{}
	if hasBase {
		resolved, err := resolveSnapshot(ctx, es, base)
		if err != nil {
			return uuid.Nil, false, nil, err
		}
		baseStates = toSideStates(resolved)
	}

	leftResolved, err := resolveSnapshot(ctx, es, left)
	if err != nil {
		return uuid.Nil, false, nil, err
	}
	rightResolved, err := resolveSnapshot(ctx, es, right)
	if err != nil {
		return uuid.Nil, false, nil, err
	}
	leftStates := toSideStates(leftResolved)
	rightStates := toSideStates(rightResolved)

	paths := map[string]struct{}{}
	for p := range baseStates {
		paths[p] = struct{}{}
	}
	for p := range leftStates {
		paths[p] = struct{}{}
	}
	for p := range rightStates {
		paths[p] = struct{}{}
	}

	diffs = make(map[string]threeWayPath, len(paths))
	for path := range paths {
		b := baseStates[path]
		l := leftStates[path]
		r := rightStates[path]
		diffs[path] = threeWayPath{
			base:         b,
			left:         l,
			right:        r,
			leftChanged:  !statesEqual(b, l),
			rightChanged: !statesEqual(b, r),
		}
	}
	return base, hasBase, diffs, nil
}

// GetConflicts implements C6's get_conflicts (spec §4.6): a three-way diff
// of base/left/right classifying every path that is not trivially
// resolvable. It returns the merge base used (uuid.Nil if left and right
// share no ancestor, in which case the comparison treats base as empty).
func GetConflicts(ctx context.Context, es store.EntityStore, left, right uuid.UUID) (uuid.UUID, []ConflictRow, error) {
	leftCommit, err := es.GetCommit(ctx, left)
	if err != nil {
		return uuid.Nil, nil, &domain.InvalidCommitError{Side: domain.SideLeft, ID: left.String()}
	}
	rightCommit, err := es.GetCommit(ctx, right)
	if err != nil {
		return uuid.Nil, nil, &domain.InvalidCommitError{Side: domain.SideRight, ID: right.String()}
	}
	if leftCommit.RepositoryID != rightCommit.RepositoryID {
		return uuid.Nil, nil, &domain.CrossRepositoryError{Left: left.String(), Right: right.String()}
	}

	base, _, diffs, err := threeWayDiff(ctx, es, left, right)
	if err != nil {
		return uuid.Nil, nil, err
	}

	var rows []ConflictRow
	for path, d := range diffs {
		if !d.leftChanged || !d.rightChanged {
			continue // only one side changed: not a conflict
		}
		if statesEqual(d.left, d.right) {
			continue // identical change on both sides: not a conflict
		}

		kind := ConflictModifyModify
		switch {
		case !d.base.exists:
			kind = ConflictAddAdd
		case !d.left.exists && d.right.exists:
			kind = ConflictDeleteModify
		case d.left.exists && !d.right.exists:
			kind = ConflictModifyDelete
		}

		rows = append(rows, ConflictRow{
			MergeBaseCommitID: base,
			Path:              path,
			BaseExists:        d.base.exists,
			LeftExists:        d.left.exists,
			RightExists:       d.right.exists,
			BaseContent:       d.base.content,
			LeftContent:       d.left.content,
			RightContent:      d.right.content,
			BaseIsSymlink:     d.base.isSymlink,
			LeftIsSymlink:     d.left.isSymlink,
			RightIsSymlink:    d.right.isSymlink,
			ConflictKind:      kind,
		})
	}

	return base, rows, nil
}

func toSideStates(resolved map[string]resolvedEntry) map[string]sideState {
	states := make(map[string]sideState, len(resolved))
	for path, entry := range resolved {
		if entry.winner.IsDeleted {
			states[path] = sideState{exists: false}
			continue
		}
		states[path] = sideState{exists: true, content: entry.winner.Content, isSymlink: entry.winner.IsSymlink}
	}
	return states
}

func statesEqual(a, b sideState) bool {
	if a.exists != b.exists {
		return false
	}
	if !a.exists {
		return true
	}
	return a.isSymlink == b.isSymlink && contentEqual(a.content, b.content)
}

func contentEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
