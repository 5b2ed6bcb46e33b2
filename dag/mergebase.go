package dag

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// GetMergeBase implements C5's get_merge_base (spec §4.5): the lowest
// common ancestor of a and b over both parent_commit_id and
// merged_from_commit_id edges. Ties between candidate common ancestors
// are broken by lowest distance from a, then by lexicographically smallest
// commit id. Returns (uuid.Nil, false, nil) if the two commits share no
// ancestor (disjoint histories within the same repository).
func GetMergeBase(ctx context.Context, es store.EntityStore, a, b uuid.UUID) (uuid.UUID, bool, error) {
	commitA, err := es.GetCommit(ctx, a)
	if err != nil {
		return uuid.Nil, false, &domain.InvalidCommitError{Side: domain.SideLeft, ID: a.String()}
	}
	commitB, err := es.GetCommit(ctx, b)
	if err != nil {
		return uuid.Nil, false, &domain.InvalidCommitError{Side: domain.SideRight, ID: b.String()}
	}
	if commitA.RepositoryID != commitB.RepositoryID {
		return uuid.Nil, false, &domain.CrossRepositoryError{Left: a.String(), Right: b.String()}
	}

	if a == b {
		return a, true, nil
	}

	distA, err := ancestorDistances(ctx, es, a)
	if err != nil {
		return uuid.Nil, false, err
	}
	distB, err := ancestorDistances(ctx, es, b)
	if err != nil {
		return uuid.Nil, false, err
	}

	type candidate struct {
		id  uuid.UUID
		sum int
		da  int
	}
	var candidates []candidate
	for id, da := range distA {
		if db, ok := distB[id]; ok {
			candidates = append(candidates, candidate{id: id, sum: da + db, da: da})
		}
	}
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sum != candidates[j].sum {
			return candidates[i].sum < candidates[j].sum
		}
		if candidates[i].da != candidates[j].da {
			return candidates[i].da < candidates[j].da
		}
		return candidates[i].id.String() < candidates[j].id.String()
	})

	return candidates[0].id, true, nil
}
