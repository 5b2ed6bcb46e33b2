package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// walkParentChain returns the commits reachable from start by following only
// parent_commit_id (spec §4.3, §4.4, §9: "For snapshot resolution ...
// only parent_commit_id is walked"), ordered from nearest (start itself,
// distance 0) to farthest. A visited set guards against corrupt cyclic data
// even though the append-only discipline is supposed to prevent it
// (spec §9).
func walkParentChain(ctx context.Context, es store.EntityStore, start uuid.UUID) ([]domain.Commit, error) {
	var chain []domain.Commit
	visited := make(map[uuid.UUID]bool)

	current := &start
	for current != nil {
		if visited[*current] {
			break
		}
		visited[*current] = true

		commit, err := es.GetCommit(ctx, *current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, commit)
		current = commit.ParentCommitID
	}
	return chain, nil
}

// ancestorDistances computes, for every commit reachable from start by
// following parent_commit_id AND merged_from_commit_id (spec §4.5:
// "walking both ... edges"), the minimum number of edge hops from start.
// start itself has distance 0. A visited-set-driven BFS keeps this safe
// against corrupt cycles.
func ancestorDistances(ctx context.Context, es store.EntityStore, start uuid.UUID) (map[uuid.UUID]int, error) {
	distances := map[uuid.UUID]int{start: 0}
	queue := []uuid.UUID{start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		dist := distances[id]

		commit, err := es.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}

		for _, next := range []*uuid.UUID{commit.ParentCommitID, commit.MergedFromCommitID} {
			if next == nil {
				continue
			}
			if existing, seen := distances[*next]; seen && existing <= dist+1 {
				continue
			}
			distances[*next] = dist + 1
			queue = append(queue, *next)
		}
	}

	return distances, nil
}

// isAncestor reports whether candidate is in Ancestors(of) (candidate == of
// counts, per spec §4.5's "get_merge_base(x, x) = x").
func isAncestor(ctx context.Context, es store.EntityStore, candidate, of uuid.UUID) (bool, error) {
	distances, err := ancestorDistances(ctx, es, of)
	if err != nil {
		return false, err
	}
	_, ok := distances[candidate]
	return ok, nil
}
