// Package boltstore is the embedded, single-process EntityStore backend:
// every entity is a JSON-encoded value in a bbolt bucket, the way the
// teacher's storage.BoltArchive keeps blob payloads in a single file, just
// generalised from one flat bucket to the full repository/branch/commit/
// file/author/tag entity graph.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

var (
	bucketRepositories = []byte("repositories")
	bucketRepoNames    = []byte("repo_names")
	bucketBranches     = []byte("branches")
	bucketBranchNames  = []byte("branch_names")
	bucketCommits      = []byte("commits")
	bucketFiles        = []byte("files")
	bucketAuthors      = []byte("authors")
	bucketAuthorNames  = []byte("author_names")
	bucketTags         = []byte("tags")
	bucketTagNames     = []byte("tag_names")
)

var topBuckets = [][]byte{
	bucketRepositories, bucketRepoNames,
	bucketBranches, bucketBranchNames,
	bucketCommits, bucketFiles,
	bucketAuthors, bucketAuthorNames,
	bucketTags, bucketTagNames,
}

type Store struct {
	db    *bolt.DB
	once  sync.Once
	clock func() time.Time
}

var _ store.EntityStore = (*Store)(nil)

// Open opens (or creates) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
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
		for _, name := range topBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, clock: time.Now}, nil
}

func (s *Store) Close() error {
	s.once.Do(func() { _ = s.db.Close() })
	return nil
}

func branchNameKey(repositoryID uuid.UUID, name string) []byte {
	return []byte(repositoryID.String() + "/" + name)
}

func authorNameKey(repositoryID uuid.UUID, name string) []byte {
	return []byte(repositoryID.String() + "/" + name)
}

func tagNameKey(repositoryID uuid.UUID, name string) []byte {
	return []byte(repositoryID.String() + "/" + name)
}

func fileEntryKey(path string) []byte { return []byte(path) }

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

func getJSON[T any](b *bolt.Bucket, key []byte) (T, bool, error) {
	var zero T
	raw := b.Get(key)
	if raw == nil {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store) CreateRepository(ctx context.Context, name string) (domain.Repository, error) {
	if name == "" {
		return domain.Repository{}, &domain.ValidationError{Message: "repository name is required"}
	}

	var repo domain.Repository
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketRepoNames)
		if names.Get([]byte(name)) != nil {
			return &domain.ConflictError{Resource: "repository", Key: name}
		}

		now := s.clock().UTC()
		repo = domain.Repository{ID: uuid.New(), Name: name, CreatedAt: now}
		mainBranch := domain.Branch{ID: uuid.New(), RepositoryID: repo.ID, Name: "main", CreatedAt: now}
		repo.DefaultBranchID = &mainBranch.ID

		repos := tx.Bucket(bucketRepositories)
		if err := putJSON(repos, []byte(repo.ID.String()), repo); err != nil {
			return err
		}
		if err := names.Put([]byte(name), []byte(repo.ID.String())); err != nil {
			return err
		}

		branches := tx.Bucket(bucketBranches)
		if err := putJSON(branches, []byte(mainBranch.ID.String()), mainBranch); err != nil {
			return err
		}
		branchNames := tx.Bucket(bucketBranchNames)
		return branchNames.Put(branchNameKey(repo.ID, "main"), []byte(mainBranch.ID.String()))
	})
	if err != nil {
		return domain.Repository{}, err
	}
	return repo, nil
}

func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (domain.Repository, error) {
	var repo domain.Repository
	err := s.db.View(func(tx *bolt.Tx) error {
		found, ok, err := getJSON[domain.Repository](tx.Bucket(bucketRepositories), []byte(id.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "repository", Key: id.String()}
		}
		repo = found
		return nil
	})
	return repo, err
}

func (s *Store) GetRepositoryByName(ctx context.Context, name string) (domain.Repository, error) {
	var repo domain.Repository
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRepoNames).Get([]byte(name))
		if raw == nil {
			return &domain.NotFoundError{Resource: "repository", Key: name}
		}
		found, ok, err := getJSON[domain.Repository](tx.Bucket(bucketRepositories), raw)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "repository", Key: name}
		}
		repo = found
		return nil
	})
	return repo, err
}

func (s *Store) CreateBranch(ctx context.Context, req store.CreateBranchRequest) (domain.Branch, error) {
	if req.Name == "" {
		return domain.Branch{}, &domain.ValidationError{Message: "branch name is required"}
	}

	var branch domain.Branch
	err := s.db.Update(func(tx *bolt.Tx) error {
		repos := tx.Bucket(bucketRepositories)
		repo, ok, err := getJSON[domain.Repository](repos, []byte(req.RepositoryID.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "repository", Key: req.RepositoryID.String()}
		}

		branchNames := tx.Bucket(bucketBranchNames)
		if branchNames.Get(branchNameKey(req.RepositoryID, req.Name)) != nil {
			return &domain.ConflictError{Resource: "branch", Key: req.Name}
		}

		branches := tx.Bucket(bucketBranches)
		head := req.HeadCommitID
		if head == nil && repo.DefaultBranchID != nil {
			if defaultBranch, ok, _ := getJSON[domain.Branch](branches, []byte(repo.DefaultBranchID.String())); ok {
				head = defaultBranch.HeadCommitID
			}
		}
		if head != nil {
			commit, ok, err := getJSON[domain.Commit](tx.Bucket(bucketCommits), []byte(head.String()))
			if err != nil {
				return err
			}
			if !ok || commit.RepositoryID != req.RepositoryID {
				return &domain.InvalidCommitError{Side: domain.SideSingle, ID: head.String()}
			}
		}

		branch = domain.Branch{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, HeadCommitID: head, CreatedAt: s.clock().UTC()}
		if err := putJSON(branches, []byte(branch.ID.String()), branch); err != nil {
			return err
		}
		return branchNames.Put(branchNameKey(req.RepositoryID, req.Name), []byte(branch.ID.String()))
	})
	if err != nil {
		return domain.Branch{}, err
	}
	return branch, nil
}

func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	var branch domain.Branch
	err := s.db.View(func(tx *bolt.Tx) error {
		found, ok, err := getJSON[domain.Branch](tx.Bucket(bucketBranches), []byte(id.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "branch", Key: id.String()}
		}
		branch = found
		return nil
	})
	return branch, err
}

func (s *Store) GetBranchByName(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Branch, error) {
	var branch domain.Branch
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBranchNames).Get(branchNameKey(repositoryID, name))
		if raw == nil {
			return &domain.NotFoundError{Resource: "branch", Key: name}
		}
		found, ok, err := getJSON[domain.Branch](tx.Bucket(bucketBranches), raw)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "branch", Key: name}
		}
		branch = found
		return nil
	})
	return branch, err
}

func (s *Store) ListBranches(ctx context.Context, repositoryID uuid.UUID) ([]domain.Branch, error) {
	var result []domain.Branch
	err := s.db.View(func(tx *bolt.Tx) error {
		branches := tx.Bucket(bucketBranches)
		return branches.ForEach(func(_, v []byte) error {
			var branch domain.Branch
			if err := json.Unmarshal(v, &branch); err != nil {
				return err
			}
			if branch.RepositoryID == repositoryID {
				result = append(result, branch)
			}
			return nil
		})
	})
	if result == nil {
		result = []domain.Branch{}
	}
	return result, err
}

// UpdateBranchHead performs the CAS head advance of spec §5 inside a single
// bbolt write transaction, which is already exclusive: no retry loop is
// needed the way the Redis WATCH path requires one.
func (s *Store) UpdateBranchHead(ctx context.Context, branchID uuid.UUID, expectedCurrentHead *uuid.UUID, newHead uuid.UUID) (domain.Branch, error) {
	var branch domain.Branch
	err := s.db.Update(func(tx *bolt.Tx) error {
		branches := tx.Bucket(bucketBranches)
		found, ok, err := getJSON[domain.Branch](branches, []byte(branchID.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "branch", Key: branchID.String()}
		}

		commit, ok, err := getJSON[domain.Commit](tx.Bucket(bucketCommits), []byte(newHead.String()))
		if err != nil {
			return err
		}
		if !ok || commit.RepositoryID != found.RepositoryID {
			return &domain.InvalidCommitError{Side: domain.SideSingle, ID: newHead.String()}
		}
		if !sameCommitPtr(found.HeadCommitID, expectedCurrentHead) {
			return &domain.ConflictError{Resource: "branch", Key: branchID.String()}
		}

		found.HeadCommitID = &newHead
		if err := putJSON(branches, []byte(branchID.String()), found); err != nil {
			return err
		}
		branch = found
		return nil
	})
	return branch, err
}

func sameCommitPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) CreateCommit(ctx context.Context, req store.CreateCommitRequest) (domain.Commit, error) {
	var commit domain.Commit
	err := s.db.Update(func(tx *bolt.Tx) error {
		repos := tx.Bucket(bucketRepositories)
		if repos.Get([]byte(req.RepositoryID.String())) == nil {
			return &domain.NotFoundError{Resource: "repository", Key: req.RepositoryID.String()}
		}

		commits := tx.Bucket(bucketCommits)
		if req.ParentCommitID != nil {
			parent, ok, err := getJSON[domain.Commit](commits, []byte(req.ParentCommitID.String()))
			if err != nil {
				return err
			}
			if !ok || parent.RepositoryID != req.RepositoryID {
				return &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.ParentCommitID.String()}
			}
		}
		if req.MergedFromCommitID != nil {
			source, ok, err := getJSON[domain.Commit](commits, []byte(req.MergedFromCommitID.String()))
			if err != nil {
				return err
			}
			if !ok || source.RepositoryID != req.RepositoryID {
				return &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.MergedFromCommitID.String()}
			}
		}
		if req.AuthorID != nil {
			author, ok, err := getJSON[domain.Author](tx.Bucket(bucketAuthors), []byte(req.AuthorID.String()))
			if err != nil {
				return err
			}
			if !ok || author.RepositoryID != req.RepositoryID {
				return &domain.NotFoundError{Resource: "author", Key: req.AuthorID.String()}
			}
		}

		commit = domain.Commit{
			ID:                 uuid.New(),
			RepositoryID:       req.RepositoryID,
			ParentCommitID:     req.ParentCommitID,
			MergedFromCommitID: req.MergedFromCommitID,
			AuthorID:           req.AuthorID,
			Message:            req.Message,
			CreatedAt:          s.clock().UTC(),
		}
		if err := putJSON(commits, []byte(commit.ID.String()), commit); err != nil {
			return err
		}
		_, err := tx.Bucket(bucketFiles).CreateBucketIfNotExists([]byte(commit.ID.String()))
		return err
	})
	if err != nil {
		return domain.Commit{}, err
	}
	return commit, nil
}

func (s *Store) GetCommit(ctx context.Context, id uuid.UUID) (domain.Commit, error) {
	var commit domain.Commit
	err := s.db.View(func(tx *bolt.Tx) error {
		found, ok, err := getJSON[domain.Commit](tx.Bucket(bucketCommits), []byte(id.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "commit", Key: id.String()}
		}
		commit = found
		return nil
	})
	return commit, err
}

func (s *Store) AddFileEntry(ctx context.Context, req store.AddFileEntryRequest) (domain.FileEntry, error) {
	normalised, err := domain.NormalisePath(req.Path)
	if err != nil {
		return domain.FileEntry{}, err
	}
	if req.IsDeleted {
		if req.Content != nil {
			return domain.FileEntry{}, &domain.ValidationError{Message: "tombstone entries must not carry content"}
		}
		if req.IsSymlink {
			return domain.FileEntry{}, &domain.ValidationError{Message: "tombstone entries cannot be symlinks"}
		}
	}
	var normalisedContent *string
	if req.IsSymlink && !req.IsDeleted {
		if req.Content == nil {
			return domain.FileEntry{}, &domain.ValidationError{Message: "symlink entries require a target path"}
		}
		target, err := domain.NormalisePath(*req.Content)
		if err != nil {
			return domain.FileEntry{}, err
		}
		normalisedContent = &target
	} else {
		normalisedContent = req.Content
	}

	var entry domain.FileEntry
	err = s.db.Update(func(tx *bolt.Tx) error {
		commitBucket := tx.Bucket(bucketFiles).Bucket([]byte(req.CommitID.String()))
		if commitBucket == nil {
			return &domain.NotFoundError{Resource: "commit", Key: req.CommitID.String()}
		}

		existing, found, err := getJSON[domain.FileEntry](commitBucket, fileEntryKey(normalised))
		if err != nil {
			return err
		}

		entry = existing
		if !found {
			entry = domain.FileEntry{ID: uuid.New(), CommitID: req.CommitID, Path: normalised, CreatedAt: s.clock().UTC()}
		}
		entry.Content = normalisedContent
		entry.IsDeleted = req.IsDeleted
		entry.IsSymlink = req.IsSymlink

		return putJSON(commitBucket, fileEntryKey(normalised), entry)
	})
	if err != nil {
		return domain.FileEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListFileEntries(ctx context.Context, commitID uuid.UUID) ([]domain.FileEntry, error) {
	var result []domain.FileEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		commitBucket := tx.Bucket(bucketFiles).Bucket([]byte(commitID.String()))
		if commitBucket == nil {
			return nil
		}
		return commitBucket.ForEach(func(_, v []byte) error {
			var entry domain.FileEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			result = append(result, entry)
			return nil
		})
	})
	if result == nil {
		result = []domain.FileEntry{}
	}
	return result, err
}

func (s *Store) GetFileEntry(ctx context.Context, commitID uuid.UUID, path string) (domain.FileEntry, bool, error) {
	normalised, err := domain.NormalisePath(path)
	if err != nil {
		return domain.FileEntry{}, false, err
	}

	var entry domain.FileEntry
	var found bool
	err = s.db.View(func(tx *bolt.Tx) error {
		commitBucket := tx.Bucket(bucketFiles).Bucket([]byte(commitID.String()))
		if commitBucket == nil {
			return nil
		}
		e, ok, err := getJSON[domain.FileEntry](commitBucket, fileEntryKey(normalised))
		if err != nil {
			return err
		}
		entry, found = e, ok
		return nil
	})
	return entry, found, err
}

func (s *Store) CreateAuthor(ctx context.Context, req store.CreateAuthorRequest) (domain.Author, error) {
	if req.Name == "" {
		return domain.Author{}, &domain.ValidationError{Message: "author name is required"}
	}

	var author domain.Author
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketAuthorNames)
		if raw := names.Get(authorNameKey(req.RepositoryID, req.Name)); raw != nil {
			found, ok, err := getJSON[domain.Author](tx.Bucket(bucketAuthors), raw)
			if err != nil {
				return err
			}
			if ok {
				author = found
				return nil
			}
		}

		author = domain.Author{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, CreatedAt: s.clock().UTC()}
		if err := putJSON(tx.Bucket(bucketAuthors), []byte(author.ID.String()), author); err != nil {
			return err
		}
		return names.Put(authorNameKey(req.RepositoryID, req.Name), []byte(author.ID.String()))
	})
	if err != nil {
		return domain.Author{}, err
	}
	return author, nil
}

func (s *Store) GetAuthor(ctx context.Context, id uuid.UUID) (domain.Author, error) {
	var author domain.Author
	err := s.db.View(func(tx *bolt.Tx) error {
		found, ok, err := getJSON[domain.Author](tx.Bucket(bucketAuthors), []byte(id.String()))
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "author", Key: id.String()}
		}
		author = found
		return nil
	})
	return author, err
}

func (s *Store) CreateTag(ctx context.Context, req store.CreateTagRequest) (domain.Tag, error) {
	if req.Name == "" {
		return domain.Tag{}, &domain.ValidationError{Message: "tag name is required"}
	}

	var tag domain.Tag
	err := s.db.Update(func(tx *bolt.Tx) error {
		commit, ok, err := getJSON[domain.Commit](tx.Bucket(bucketCommits), []byte(req.CommitID.String()))
		if err != nil {
			return err
		}
		if !ok || commit.RepositoryID != req.RepositoryID {
			return &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.CommitID.String()}
		}

		names := tx.Bucket(bucketTagNames)
		if names.Get(tagNameKey(req.RepositoryID, req.Name)) != nil {
			return &domain.ConflictError{Resource: "tag", Key: req.Name}
		}

		tag = domain.Tag{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, CommitID: req.CommitID, Note: req.Note, CreatedAt: s.clock().UTC()}
		if err := putJSON(tx.Bucket(bucketTags), []byte(tag.ID.String()), tag); err != nil {
			return err
		}
		return names.Put(tagNameKey(req.RepositoryID, req.Name), []byte(tag.ID.String()))
	})
	if err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

func (s *Store) GetTag(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Tag, error) {
	var tag domain.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTagNames).Get(tagNameKey(repositoryID, name))
		if raw == nil {
			return &domain.NotFoundError{Resource: "tag", Key: name}
		}
		found, ok, err := getJSON[domain.Tag](tx.Bucket(bucketTags), raw)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Resource: "tag", Key: name}
		}
		tag = found
		return nil
	})
	return tag, err
}

func (s *Store) ListTags(ctx context.Context, repositoryID uuid.UUID) ([]domain.Tag, error) {
	var result []domain.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTags).ForEach(func(_, v []byte) error {
			var tag domain.Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			if tag.RepositoryID == repositoryID {
				result = append(result, tag)
			}
			return nil
		})
	})
	if result == nil {
		result = []domain.Tag{}
	}
	return result, err
}
