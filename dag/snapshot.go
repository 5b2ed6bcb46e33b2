package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// GetCommitDelta implements C3's get_commit_delta: the file entries
// literally recorded at commitID, with no ancestry resolution (spec §4.3).
func GetCommitDelta(ctx context.Context, es store.EntityStore, commitID uuid.UUID) ([]DeltaRow, error) {
	commit, err := es.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	repo, err := es.GetRepository(ctx, commit.RepositoryID)
	if err != nil {
		return nil, err
	}
	entries, err := es.ListFileEntries(ctx, commitID)
	if err != nil {
		return nil, err
	}

	rows := make([]DeltaRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, DeltaRow{
			RepositoryID:    repo.ID,
			RepositoryName:  repo.Name,
			CommitID:        commitID,
			Path:            e.Path,
			IsDeleted:       e.IsDeleted,
			IsSymlink:       e.IsSymlink,
			Content:         e.Content,
			CommitCreatedAt: commit.CreatedAt,
			CommitMessage:   commit.Message,
		})
	}
	return rows, nil
}

// GetCommitSnapshot implements C3's get_commit_snapshot: the effective set
// of files visible at commitID, computed by walking parent-only ancestry
// to the root and, at each path, keeping the nearest entry. Paths whose
// winning entry is a tombstone are excluded (spec §4.3).
func GetCommitSnapshot(ctx context.Context, es store.EntityStore, commitID uuid.UUID) ([]SnapshotEntry, error) {
	resolved, err := resolveSnapshot(ctx, es, commitID)
	if err != nil {
		return nil, err
	}

	result := make([]SnapshotEntry, 0, len(resolved))
	for _, entry := range resolved {
		if entry.winner.IsDeleted {
			continue
		}
		result = append(result, SnapshotEntry{
			Path:           entry.winner.Path,
			IsSymlink:      entry.winner.IsSymlink,
			Content:        entry.winner.Content,
			OriginCommitID: entry.winner.CommitID,
		})
	}
	return result, nil
}

type resolvedEntry struct {
	winner   domain.FileEntry
	distance int
}

// resolveSnapshot walks commitID's parent-only ancestry (nearest first) and
// returns, for every path ever written in that ancestry, the nearest entry
// — including tombstones, which callers filter out as needed. This is the
// shared core beneath get_commit_snapshot, read_file, and conflict
// detection's three-way snapshots.
func resolveSnapshot(ctx context.Context, es store.EntityStore, commitID uuid.UUID) (map[string]resolvedEntry, error) {
	chain, err := walkParentChain(ctx, es, commitID)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]resolvedEntry)
	for distance, commit := range chain {
		entries, err := es.ListFileEntries(ctx, commit.ID)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if existing, ok := resolved[entry.Path]; ok && existing.distance <= distance {
				continue
			}
			resolved[entry.Path] = resolvedEntry{winner: entry, distance: distance}
		}
	}
	return resolved, nil
}
