// Package keydbstore is the Redis/KeyDB-backed EntityStore: entities are
// JSON blobs under id-keyed strings with name/repo indices held in
// supporting keys, and UpdateBranchHead's compare-and-swap is implemented
// with WATCH/TxPipeline exactly the way the teacher's
// internal/storage.keydbStore does its optimistic-locking commit path.
package keydbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

type Store struct {
	client *redis.Client
	clock  func() time.Time
}

var _ store.EntityStore = (*Store)(nil)

// Config mirrors the teacher's storage.Config connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	Database int
}

// New dials addr and returns a Store, mirroring the teacher's
// NewKeyDBStore connectivity check.
func New(cfg Config) (*Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to keydb: %w", err)
	}

	return &Store{client: client, clock: time.Now}, nil
}

// NewFromClient wraps an already-configured client, used by tests against
// miniredis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client, clock: time.Now}
}

func (s *Store) Close() error { return s.client.Close() }

func repoKey(id uuid.UUID) string        { return "repo:" + id.String() }
func repoNameKey(name string) string     { return "repo:byname:" + name }
func branchKey(id uuid.UUID) string      { return "branch:" + id.String() }
func branchNameKey(repositoryID uuid.UUID, name string) string {
	return "branch:byname:" + repositoryID.String() + ":" + name
}
func branchSetKey(repositoryID uuid.UUID) string { return "branch:byrepo:" + repositoryID.String() }
func commitKey(id uuid.UUID) string              { return "commit:" + id.String() }
func fileKey(commitID uuid.UUID, path string) string {
	return "file:" + commitID.String() + ":" + path
}
func fileSetKey(commitID uuid.UUID) string { return "files:bycommit:" + commitID.String() }
func authorKey(id uuid.UUID) string        { return "author:" + id.String() }
func authorNameKey(repositoryID uuid.UUID, name string) string {
	return "author:byname:" + repositoryID.String() + ":" + name
}
func tagKey(id uuid.UUID) string { return "tag:" + id.String() }
func tagNameKey(repositoryID uuid.UUID, name string) string {
	return "tag:byname:" + repositoryID.String() + ":" + name
}
func tagSetKey(repositoryID uuid.UUID) string { return "tag:byrepo:" + repositoryID.String() }

func getJSON[T any](ctx context.Context, client *redis.Client, key string) (T, bool, error) {
	var zero T
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func setJSON(ctx context.Context, pipe redis.Pipeliner, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return pipe.Set(ctx, key, raw, 0).Err()
}

func (s *Store) CreateRepository(ctx context.Context, name string) (domain.Repository, error) {
	if name == "" {
		return domain.Repository{}, &domain.ValidationError{Message: "repository name is required"}
	}
	if exists, err := s.client.Exists(ctx, repoNameKey(name)).Result(); err != nil {
		return domain.Repository{}, err
	} else if exists == 1 {
		return domain.Repository{}, &domain.ConflictError{Resource: "repository", Key: name}
	}

	now := s.clock().UTC()
	repo := domain.Repository{ID: uuid.New(), Name: name, CreatedAt: now}
	mainBranch := domain.Branch{ID: uuid.New(), RepositoryID: repo.ID, Name: "main", CreatedAt: now}
	repo.DefaultBranchID = &mainBranch.ID

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, repoKey(repo.ID), repo); err != nil {
			return err
		}
		if err := pipe.Set(ctx, repoNameKey(name), repo.ID.String(), 0).Err(); err != nil {
			return err
		}
		if err := setJSON(ctx, pipe, branchKey(mainBranch.ID), mainBranch); err != nil {
			return err
		}
		if err := pipe.Set(ctx, branchNameKey(repo.ID, "main"), mainBranch.ID.String(), 0).Err(); err != nil {
			return err
		}
		return pipe.SAdd(ctx, branchSetKey(repo.ID), mainBranch.ID.String()).Err()
	})
	if err != nil {
		return domain.Repository{}, err
	}
	return repo, nil
}

func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (domain.Repository, error) {
	repo, ok, err := getJSON[domain.Repository](ctx, s.client, repoKey(id))
	if err != nil {
		return domain.Repository{}, err
	}
	if !ok {
		return domain.Repository{}, &domain.NotFoundError{Resource: "repository", Key: id.String()}
	}
	return repo, nil
}

func (s *Store) GetRepositoryByName(ctx context.Context, name string) (domain.Repository, error) {
	id, err := s.client.Get(ctx, repoNameKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Repository{}, &domain.NotFoundError{Resource: "repository", Key: name}
	}
	if err != nil {
		return domain.Repository{}, err
	}
	repoID, err := uuid.Parse(id)
	if err != nil {
		return domain.Repository{}, err
	}
	return s.GetRepository(ctx, repoID)
}

func (s *Store) CreateBranch(ctx context.Context, req store.CreateBranchRequest) (domain.Branch, error) {
	if req.Name == "" {
		return domain.Branch{}, &domain.ValidationError{Message: "branch name is required"}
	}
	repo, err := s.GetRepository(ctx, req.RepositoryID)
	if err != nil {
		return domain.Branch{}, err
	}
	if exists, err := s.client.Exists(ctx, branchNameKey(req.RepositoryID, req.Name)).Result(); err != nil {
		return domain.Branch{}, err
	} else if exists == 1 {
		return domain.Branch{}, &domain.ConflictError{Resource: "branch", Key: req.Name}
	}

	head := req.HeadCommitID
	if head == nil && repo.DefaultBranchID != nil {
		if defaultBranch, err := s.GetBranch(ctx, *repo.DefaultBranchID); err == nil {
			head = defaultBranch.HeadCommitID
		}
	}
	if head != nil {
		commit, err := s.GetCommit(ctx, *head)
		if err != nil || commit.RepositoryID != req.RepositoryID {
			return domain.Branch{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: head.String()}
		}
	}

	branch := domain.Branch{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, HeadCommitID: head, CreatedAt: s.clock().UTC()}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, branchKey(branch.ID), branch); err != nil {
			return err
		}
		if err := pipe.Set(ctx, branchNameKey(req.RepositoryID, req.Name), branch.ID.String(), 0).Err(); err != nil {
			return err
		}
		return pipe.SAdd(ctx, branchSetKey(req.RepositoryID), branch.ID.String()).Err()
	})
	if err != nil {
		return domain.Branch{}, err
	}
	return branch, nil
}

func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	branch, ok, err := getJSON[domain.Branch](ctx, s.client, branchKey(id))
	if err != nil {
		return domain.Branch{}, err
	}
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: id.String()}
	}
	return branch, nil
}

func (s *Store) GetBranchByName(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Branch, error) {
	id, err := s.client.Get(ctx, branchNameKey(repositoryID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: name}
	}
	if err != nil {
		return domain.Branch{}, err
	}
	branchID, err := uuid.Parse(id)
	if err != nil {
		return domain.Branch{}, err
	}
	return s.GetBranch(ctx, branchID)
}

func (s *Store) ListBranches(ctx context.Context, repositoryID uuid.UUID) ([]domain.Branch, error) {
	ids, err := s.client.SMembers(ctx, branchSetKey(repositoryID)).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.Branch, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		branch, err := s.GetBranch(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, branch)
	}
	return result, nil
}

// UpdateBranchHead reproduces the teacher's WATCH-then-TxPipeline
// optimistic-locking loop: the branch key is watched, the compare against
// expectedCurrentHead happens inside the transaction closure, and a
// redis.TxFailedErr (another writer won the race) retries from scratch.
func (s *Store) UpdateBranchHead(ctx context.Context, branchID uuid.UUID, expectedCurrentHead *uuid.UUID, newHead uuid.UUID) (domain.Branch, error) {
	commit, err := s.GetCommit(ctx, newHead)
	if err != nil {
		return domain.Branch{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: newHead.String()}
	}

	key := branchKey(branchID)
	var result domain.Branch

	for {
		txErr := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return &domain.NotFoundError{Resource: "branch", Key: branchID.String()}
			}
			if err != nil {
				return err
			}
			var branch domain.Branch
			if err := json.Unmarshal([]byte(raw), &branch); err != nil {
				return err
			}
			if commit.RepositoryID != branch.RepositoryID {
				return &domain.InvalidCommitError{Side: domain.SideSingle, ID: newHead.String()}
			}
			if !sameCommitPtr(branch.HeadCommitID, expectedCurrentHead) {
				return &domain.ConflictError{Resource: "branch", Key: branchID.String()}
			}

			branch.HeadCommitID = &newHead
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return setJSON(ctx, pipe, key, branch)
			})
			if err != nil {
				return err
			}
			result = branch
			return nil
		}, key)

		if txErr == nil {
			return result, nil
		}
		if errors.Is(txErr, redis.TxFailedErr) {
			continue
		}
		return domain.Branch{}, txErr
	}
}

func sameCommitPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) CreateCommit(ctx context.Context, req store.CreateCommitRequest) (domain.Commit, error) {
	if _, err := s.GetRepository(ctx, req.RepositoryID); err != nil {
		return domain.Commit{}, &domain.NotFoundError{Resource: "repository", Key: req.RepositoryID.String()}
	}
	if req.ParentCommitID != nil {
		parent, err := s.GetCommit(ctx, *req.ParentCommitID)
		if err != nil || parent.RepositoryID != req.RepositoryID {
			return domain.Commit{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.ParentCommitID.String()}
		}
	}
	if req.MergedFromCommitID != nil {
		source, err := s.GetCommit(ctx, *req.MergedFromCommitID)
		if err != nil || source.RepositoryID != req.RepositoryID {
			return domain.Commit{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.MergedFromCommitID.String()}
		}
	}
	if req.AuthorID != nil {
		author, err := s.GetAuthor(ctx, *req.AuthorID)
		if err != nil || author.RepositoryID != req.RepositoryID {
			return domain.Commit{}, &domain.NotFoundError{Resource: "author", Key: req.AuthorID.String()}
		}
	}

	commit := domain.Commit{
		ID:                 uuid.New(),
		RepositoryID:       req.RepositoryID,
		ParentCommitID:     req.ParentCommitID,
		MergedFromCommitID: req.MergedFromCommitID,
		AuthorID:           req.AuthorID,
		Message:            req.Message,
		CreatedAt:          s.clock().UTC(),
	}
	if err := s.client.Set(ctx, commitKey(commit.ID), mustJSON(commit), 0).Err(); err != nil {
		return domain.Commit{}, err
	}
	return commit, nil
}

func (s *Store) GetCommit(ctx context.Context, id uuid.UUID) (domain.Commit, error) {
	commit, ok, err := getJSON[domain.Commit](ctx, s.client, commitKey(id))
	if err != nil {
		return domain.Commit{}, err
	}
	if !ok {
		return domain.Commit{}, &domain.NotFoundError{Resource: "commit", Key: id.String()}
	}
	return commit, nil
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

	if _, err := s.GetCommit(ctx, req.CommitID); err != nil {
		return domain.FileEntry{}, &domain.NotFoundError{Resource: "commit", Key: req.CommitID.String()}
	}

	key := fileKey(req.CommitID, normalised)
	existing, found, err := getJSON[domain.FileEntry](ctx, s.client, key)
	if err != nil {
		return domain.FileEntry{}, err
	}

	entry := existing
	if !found {
		entry = domain.FileEntry{ID: uuid.New(), CommitID: req.CommitID, Path: normalised, CreatedAt: s.clock().UTC()}
	}
	entry.Content = normalisedContent
	entry.IsDeleted = req.IsDeleted
	entry.IsSymlink = req.IsSymlink

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, key, entry); err != nil {
			return err
		}
		return pipe.SAdd(ctx, fileSetKey(req.CommitID), normalised).Err()
	})
	if err != nil {
		return domain.FileEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListFileEntries(ctx context.Context, commitID uuid.UUID) ([]domain.FileEntry, error) {
	paths, err := s.client.SMembers(ctx, fileSetKey(commitID)).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.FileEntry, 0, len(paths))
	for _, path := range paths {
		entry, ok, err := getJSON[domain.FileEntry](ctx, s.client, fileKey(commitID, path))
		if err != nil || !ok {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) GetFileEntry(ctx context.Context, commitID uuid.UUID, path string) (domain.FileEntry, bool, error) {
	normalised, err := domain.NormalisePath(path)
	if err != nil {
		return domain.FileEntry{}, false, err
	}
	return getJSON[domain.FileEntry](ctx, s.client, fileKey(commitID, normalised))
}

func (s *Store) CreateAuthor(ctx context.Context, req store.CreateAuthorRequest) (domain.Author, error) {
	if req.Name == "" {
		return domain.Author{}, &domain.ValidationError{Message: "author name is required"}
	}
	if id, err := s.client.Get(ctx, authorNameKey(req.RepositoryID, req.Name)).Result(); err == nil {
		authorID, parseErr := uuid.Parse(id)
		if parseErr == nil {
			return s.GetAuthor(ctx, authorID)
		}
	}

	author := domain.Author{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, CreatedAt: s.clock().UTC()}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, authorKey(author.ID), author); err != nil {
			return err
		}
		return pipe.Set(ctx, authorNameKey(req.RepositoryID, req.Name), author.ID.String(), 0).Err()
	})
	if err != nil {
		return domain.Author{}, err
	}
	return author, nil
}

func (s *Store) GetAuthor(ctx context.Context, id uuid.UUID) (domain.Author, error) {
	author, ok, err := getJSON[domain.Author](ctx, s.client, authorKey(id))
	if err != nil {
		return domain.Author{}, err
	}
	if !ok {
		return domain.Author{}, &domain.NotFoundError{Resource: "author", Key: id.String()}
	}
	return author, nil
}

func (s *Store) CreateTag(ctx context.Context, req store.CreateTagRequest) (domain.Tag, error) {
	if req.Name == "" {
		return domain.Tag{}, &domain.ValidationError{Message: "tag name is required"}
	}
	commit, err := s.GetCommit(ctx, req.CommitID)
	if err != nil || commit.RepositoryID != req.RepositoryID {
		return domain.Tag{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.CommitID.String()}
	}
	if exists, err := s.client.Exists(ctx, tagNameKey(req.RepositoryID, req.Name)).Result(); err != nil {
		return domain.Tag{}, err
	} else if exists == 1 {
		return domain.Tag{}, &domain.ConflictError{Resource: "tag", Key: req.Name}
	}

	tag := domain.Tag{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, CommitID: req.CommitID, Note: req.Note, CreatedAt: s.clock().UTC()}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, tagKey(tag.ID), tag); err != nil {
			return err
		}
		if err := pipe.Set(ctx, tagNameKey(req.RepositoryID, req.Name), tag.ID.String(), 0).Err(); err != nil {
			return err
		}
		return pipe.SAdd(ctx, tagSetKey(req.RepositoryID), tag.ID.String()).Err()
	})
	if err != nil {
		return domain.Tag{}, err
	}
	return tag, nil
}

func (s *Store) GetTag(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Tag, error) {
	id, err := s.client.Get(ctx, tagNameKey(repositoryID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Tag{}, &domain.NotFoundError{Resource: "tag", Key: name}
	}
	if err != nil {
		return domain.Tag{}, err
	}
	tagID, err := uuid.Parse(id)
	if err != nil {
		return domain.Tag{}, err
	}
	tag, ok, err := getJSON[domain.Tag](ctx, s.client, tagKey(tagID))
	if err != nil {
		return domain.Tag{}, err
	}
	if !ok {
		return domain.Tag{}, &domain.NotFoundError{Resource: "tag", Key: name}
	}
	return tag, nil
}

func (s *Store) ListTags(ctx context.Context, repositoryID uuid.UUID) ([]domain.Tag, error) {
	ids, err := s.client.SMembers(ctx, tagSetKey(repositoryID)).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.Tag, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		tag, ok, err := getJSON[domain.Tag](ctx, s.client, tagKey(id))
		if err != nil || !ok {
			continue
		}
		result = append(result, tag)
	}
	return result, nil
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
