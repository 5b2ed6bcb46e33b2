package keydbstore

import (
	"context"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

// Archive is a store.ContentArchive backed by a Redis/KeyDB client,
// following the same key-per-payload shape the teacher's KeyDBStore uses
// for its own entities, with content keyed by repository and file entry id
// rather than a content hash.
type Archive struct {
	client *redis.Client
}

var _ store.ContentArchive = (*Archive)(nil)

// NewArchive wraps client for archival use; it does not own the
// connection's lifecycle beyond Close.
func NewArchive(client *redis.Client) *Archive {
	return &Archive{client: client}
}

func archiveKey(repositoryID, entryID uuid.UUID) string {
	return "archive:" + repositoryID.String() + ":" + entryID.String()
}

func (a *Archive) Store(ctx context.Context, repositoryID, entryID uuid.UUID, data []byte) error {
	return a.client.Set(ctx, archiveKey(repositoryID, entryID), data, 0).Err()
}

func (a *Archive) Fetch(ctx context.Context, repositoryID, entryID uuid.UUID) ([]byte, error) {
	data, err := a.client.Get(ctx, archiveKey(repositoryID, entryID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, &domain.NotFoundError{Resource: "archive", Key: entryID.String()}
		}
		return nil, err
	}
	return data, nil
}

func (a *Archive) Remove(ctx context.Context, repositoryID, entryID uuid.UUID) error {
	return a.client.Del(ctx, archiveKey(repositoryID, entryID)).Err()
}

func (a *Archive) Close() error {
	return a.client.Close()
}
