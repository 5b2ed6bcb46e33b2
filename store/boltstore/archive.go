package boltstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

var bucketArchiveRoot = []byte("content_archive")

// Archive is a store.ContentArchive backed by its own bbolt file, one
// sub-bucket per repository keyed by file entry id, following the
// teacher's BoltArchive repo/hash layout (here repo/entryID, since this
// module identifies content by the owning FileEntry's id rather than a
// content hash).
type Archive struct {
	db   *bolt.DB
	once sync.Once
}

var _ store.ContentArchive = (*Archive)(nil)

// OpenArchive opens (or creates) a bbolt-backed content archive at path.
func OpenArchive(path string) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive path is required")
	}
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(cleaned, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketArchiveRoot)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Store(ctx context.Context, repositoryID, entryID uuid.UUID, data []byte) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		root := tx.Bucket(bucketArchiveRoot)
		repoBucket, err := root.CreateBucketIfNotExists([]byte(repositoryID.String()))
		if err != nil {
			return err
		}
		return repoBucket.Put([]byte(entryID.String()), data)
	})
}

func (a *Archive) Fetch(ctx context.Context, repositoryID, entryID uuid.UUID) ([]byte, error) {
	var result []byte
	err := a.db.View(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		root := tx.Bucket(bucketArchiveRoot)
		repoBucket := root.Bucket([]byte(repositoryID.String()))
		if repoBucket == nil {
			return &domain.NotFoundError{Resource: "archive", Key: entryID.String()}
		}
		data := repoBucket.Get([]byte(entryID.String()))
		if data == nil {
			return &domain.NotFoundError{Resource: "archive", Key: entryID.String()}
		}
		result = append([]byte{}, data...)
		return nil
	})
	return result, err
}

func (a *Archive) Remove(ctx context.Context, repositoryID, entryID uuid.UUID) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		root := tx.Bucket(bucketArchiveRoot)
		repoBucket := root.Bucket([]byte(repositoryID.String()))
		if repoBucket == nil {
			return nil
		}
		return repoBucket.Delete([]byte(entryID.String()))
	})
}

func (a *Archive) Close() error {
	a.once.Do(func() { _ = a.db.Close() })
	return nil
}
