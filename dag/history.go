package dag

import (
	"context"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// ReadFile implements C4's read_file: the content of the nearest ancestor
// entry for path, or nil if no such entry exists or the nearest one is a
// tombstone (spec §4.4). For a symlink entry, the stored normalised target
// path is returned verbatim — resolving the link to its target's content
// is explicitly not done here (spec §4.4 point 4).
func ReadFile(ctx context.Context, es store.EntityStore, commitID uuid.UUID, path string) (*string, error) {
	normalised, err := domain.NormalisePath(path)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveSnapshot(ctx, es, commitID)
	if err != nil {
		return nil, err
	}

	entry, ok := resolved[normalised]
	if !ok || entry.winner.IsDeleted {
		return nil, nil
	}
	return entry.winner.Content, nil
}

// GetFileHistory implements C4's get_file_history: every entry recorded for
// path across commitID's ancestry, in ancestry order (nearest first),
// tombstones and symlinks included verbatim (spec §4.4).
func GetFileHistory(ctx context.Context, es store.EntityStore, commitID uuid.UUID, path string) ([]HistoryRow, error) {
	normalised, err := domain.NormalisePath(path)
	if err != nil {
		return nil, err
	}

	chain, err := walkParentChain(ctx, es, commitID)
	if err != nil {
		return nil, err
	}

	var rows []HistoryRow
	for _, commit := range chain {
		entry, found, err := es.GetFileEntry(ctx, commit.ID, normalised)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		rows = append(rows, HistoryRow{
			CommitID:  commit.ID,
			Content:   entry.Content,
			IsDeleted: entry.IsDeleted,
			IsSymlink: entry.IsSymlink,
			CreatedAt: entry.CreatedAt,
		})
	}
	return rows, nil
}
