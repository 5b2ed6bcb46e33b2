// Package memory is the in-memory EntityStore backend: the default used by
// tests and by callers that do not need cross-process durability. It
// mirrors the concurrency and validation shape of the teacher's
// internal/storage.memoryStore (a single mutex guarding plain Go maps),
// generalised from a single blob-per-repo model to the full
// repository/branch/commit/file entity graph of spec §3.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
	"github.com/onexay/vfsdag/store"
)

type Store struct {
	mu sync.RWMutex

	clock func() time.Time

	repositories map[uuid.UUID]domain.Repository
	repoNames    map[string]uuid.UUID

	branches      map[uuid.UUID]domain.Branch
	branchByName  map[uuid.UUID]map[string]uuid.UUID // repositoryID -> name -> branchID

	commits map[uuid.UUID]domain.Commit

	files       map[uuid.UUID]domain.FileEntry
	filesByPath map[uuid.UUID]map[string]uuid.UUID // commitID -> path -> fileID

	authors     map[uuid.UUID]domain.Author
	authorNames map[uuid.UUID]map[string]uuid.UUID // repositoryID -> name -> authorID

	tags       map[uuid.UUID]domain.Tag
	tagByName  map[uuid.UUID]map[string]uuid.UUID // repositoryID -> name -> tagID
}

// New constructs an empty in-memory EntityStore.
func New() *Store {
	return &Store{
		clock:        time.Now,
		repositories: make(map[uuid.UUID]domain.Repository),
		repoNames:    make(map[string]uuid.UUID),
		branches:     make(map[uuid.UUID]domain.Branch),
		branchByName: make(map[uuid.UUID]map[string]uuid.UUID),
		commits:      make(map[uuid.UUID]domain.Commit),
		files:        make(map[uuid.UUID]domain.FileEntry),
		filesByPath:  make(map[uuid.UUID]map[string]uuid.UUID),
		authors:      make(map[uuid.UUID]domain.Author),
		authorNames:  make(map[uuid.UUID]map[string]uuid.UUID),
		tags:         make(map[uuid.UUID]domain.Tag),
		tagByName:    make(map[uuid.UUID]map[string]uuid.UUID),
	}
}

var _ store.EntityStore = (*Store)(nil)

// CreateRepository inserts a repository and, per spec §4.2, auto-creates
// its "main" branch with a null head and wires default_branch_id to it.
func (s *Store) CreateRepository(ctx context.Context, name string) (domain.Repository, error) {
	if name == "" {
		return domain.Repository{}, &domain.ValidationError{Message: "repository name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.repoNames[name]; exists {
		return domain.Repository{}, &domain.ConflictError{Resource: "repository", Key: name}
	}

	now := s.clock().UTC()
	repo := domain.Repository{ID: uuid.New(), Name: name, CreatedAt: now}

	mainBranch := domain.Branch{ID: uuid.New(), RepositoryID: repo.ID, Name: "main", HeadCommitID: nil, CreatedAt: now}
	repo.DefaultBranchID = &mainBranch.ID

	s.repositories[repo.ID] = repo
	s.repoNames[name] = repo.ID
	s.branches[mainBranch.ID] = mainBranch
	s.branchByName[repo.ID] = map[string]uuid.UUID{"main": mainBranch.ID}

	return repo, nil
}

func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (domain.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repositories[id]
	if !ok {
		return domain.Repository{}, &domain.NotFoundError{Resource: "repository", Key: id.String()}
	}
	return repo, nil
}

func (s *Store) GetRepositoryByName(ctx context.Context, name string) (domain.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.repoNames[name]
	if !ok {
		return domain.Repository{}, &domain.NotFoundError{Resource: "repository", Key: name}
	}
	return s.repositories[id], nil
}

// CreateBranch inserts a branch. Per spec §4.2, a nil HeadCommitID in the
// request defaults to the repository's current default-branch head.
func (s *Store) CreateBranch(ctx context.Context, req store.CreateBranchRequest) (domain.Branch, error) {
	if req.Name == "" {
		return domain.Branch{}, &domain.ValidationError{Message: "branch name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repositories[req.RepositoryID]
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "repository", Key: req.RepositoryID.String()}
	}

	names, ok := s.branchByName[req.RepositoryID]
	if !ok {
		names = make(map[string]uuid.UUID)
		s.branchByName[req.RepositoryID] = names
	}
	if _, exists := names[req.Name]; exists {
		return domain.Branch{}, &domain.ConflictError{Resource: "branch", Key: req.Name}
	}

	head := req.HeadCommitID
	if head == nil && repo.DefaultBranchID != nil {
		if defaultBranch, ok := s.branches[*repo.DefaultBranchID]; ok {
			head = defaultBranch.HeadCommitID
		}
	}
	if head != nil {
		if commit, ok := s.commits[*head]; !ok || commit.RepositoryID != req.RepositoryID {
			return domain.Branch{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: head.String()}
		}
	}

	branch := domain.Branch{
		ID:           uuid.New(),
		RepositoryID: req.RepositoryID,
		Name:         req.Name,
		HeadCommitID: head,
		CreatedAt:    s.clock().UTC(),
	}
	s.branches[branch.ID] = branch
	names[branch.Name] = branch.ID

	return branch, nil
}

func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	branch, ok := s.branches[id]
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: id.String()}
	}
	return branch, nil
}

func (s *Store) GetBranchByName(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.branchByName[repositoryID]
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: name}
	}
	id, ok := names[name]
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: name}
	}
	return s.branches[id], nil
}

func (s *Store) ListBranches(ctx context.Context, repositoryID uuid.UUID) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.branchByName[repositoryID]
	if !ok {
		return []domain.Branch{}, nil
	}
	result := make([]domain.Branch, 0, len(names))
	for _, id := range names {
		result = append(result, s.branches[id])
	}
	return result, nil
}

// UpdateBranchHead performs the compare-and-swap head advance described in
// spec §5: the caller's expectedCurrentHead must match what is currently
// stored, or a ConflictError is returned and the branch is left untouched.
func (s *Store) UpdateBranchHead(ctx context.Context, branchID uuid.UUID, expectedCurrentHead *uuid.UUID, newHead uuid.UUID) (domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[branchID]
	if !ok {
		return domain.Branch{}, &domain.NotFoundError{Resource: "branch", Key: branchID.String()}
	}
	if !sameCommitPtr(branch.HeadCommitID, expectedCurrentHead) {
		return domain.Branch{}, &domain.ConflictError{Resource: "branch", Key: branchID.String()}
	}
	commit, ok := s.commits[newHead]
	if !ok || commit.RepositoryID != branch.RepositoryID {
		return domain.Branch{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: newHead.String()}
	}

	branch.HeadCommitID = &newHead
	s.branches[branchID] = branch
	return branch, nil
}

func sameCommitPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateCommit inserts a commit. Referential integrity (spec §4.2) is
// enforced here: parent, merge-from, and author must belong to the same
// repository.
func (s *Store) CreateCommit(ctx context.Context, req store.CreateCommitRequest) (domain.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.repositories[req.RepositoryID]; !ok {
		return domain.Commit{}, &domain.NotFoundError{Resource: "repository", Key: req.RepositoryID.String()}
	}
	if req.ParentCommitID != nil {
		parent, ok := s.commits[*req.ParentCommitID]
		if !ok || parent.RepositoryID != req.RepositoryID {
			return domain.Commit{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.ParentCommitID.String()}
		}
	}
	if req.MergedFromCommitID != nil {
		source, ok := s.commits[*req.MergedFromCommitID]
		if !ok || source.RepositoryID != req.RepositoryID {
			return domain.Commit{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.MergedFromCommitID.String()}
		}
	}
	if req.AuthorID != nil {
		author, ok := s.authors[*req.AuthorID]
		if !ok || author.RepositoryID != req.RepositoryID {
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
	s.commits[commit.ID] = commit
	s.filesByPath[commit.ID] = make(map[string]uuid.UUID)

	return commit, nil
}

func (s *Store) GetCommit(ctx context.Context, id uuid.UUID) (domain.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	commit, ok := s.commits[id]
	if !ok {
		return domain.Commit{}, &domain.NotFoundError{Resource: "commit", Key: id.String()}
	}
	return commit, nil
}

// AddFileEntry inserts or updates a file entry. This is where the C1
// normalisation trigger and the tombstone/symlink invariants of spec §3
// are enforced, standing in for the reference implementation's database
// trigger (spec §9).
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.commits[req.CommitID]; !ok {
		return domain.FileEntry{}, &domain.NotFoundError{Resource: "commit", Key: req.CommitID.String()}
	}

	byPath, ok := s.filesByPath[req.CommitID]
	if !ok {
		byPath = make(map[string]uuid.UUID)
		s.filesByPath[req.CommitID] = byPath
	}

	now := s.clock().UTC()
	if existingID, exists := byPath[normalised]; exists {
		entry := s.files[existingID]
		entry.Content = normalisedContent
		entry.IsDeleted = req.IsDeleted
		entry.IsSymlink = req.IsSymlink
		s.files[existingID] = entry
		return entry, nil
	}

	entry := domain.FileEntry{
		ID:        uuid.New(),
		CommitID:  req.CommitID,
		Path:      normalised,
		Content:   normalisedContent,
		IsDeleted: req.IsDeleted,
		IsSymlink: req.IsSymlink,
		CreatedAt: now,
	}
	s.files[entry.ID] = entry
	byPath[normalised] = entry.ID

	return entry, nil
}

func (s *Store) ListFileEntries(ctx context.Context, commitID uuid.UUID) ([]domain.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPath, ok := s.filesByPath[commitID]
	if !ok {
		return []domain.FileEntry{}, nil
	}
	result := make([]domain.FileEntry, 0, len(byPath))
	for _, id := range byPath {
		result = append(result, s.files[id])
	}
	return result, nil
}

func (s *Store) GetFileEntry(ctx context.Context, commitID uuid.UUID, path string) (domain.FileEntry, bool, error) {
	normalised, err := domain.NormalisePath(path)
	if err != nil {
		return domain.FileEntry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPath, ok := s.filesByPath[commitID]
	if !ok {
		return domain.FileEntry{}, false, nil
	}
	id, ok := byPath[normalised]
	if !ok {
		return domain.FileEntry{}, false, nil
	}
	return s.files[id], true, nil
}

func (s *Store) CreateAuthor(ctx context.Context, req store.CreateAuthorRequest) (domain.Author, error) {
	if req.Name == "" {
		return domain.Author{}, &domain.ValidationError{Message: "author name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, ok := s.authorNames[req.RepositoryID]
	if !ok {
		names = make(map[string]uuid.UUID)
		s.authorNames[req.RepositoryID] = names
	}
	if existingID, exists := names[req.Name]; exists {
		return s.authors[existingID], nil
	}

	author := domain.Author{ID: uuid.New(), RepositoryID: req.RepositoryID, Name: req.Name, CreatedAt: s.clock().UTC()}
	s.authors[author.ID] = author
	names[author.Name] = author.ID
	return author, nil
}

func (s *Store) GetAuthor(ctx context.Context, id uuid.UUID) (domain.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	author, ok := s.authors[id]
	if !ok {
		return domain.Author{}, &domain.NotFoundError{Resource: "author", Key: id.String()}
	}
	return author, nil
}

func (s *Store) CreateTag(ctx context.Context, req store.CreateTagRequest) (domain.Tag, error) {
	if req.Name == "" {
		return domain.Tag{}, &domain.ValidationError{Message: "tag name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	commit, ok := s.commits[req.CommitID]
	if !ok || commit.RepositoryID != req.RepositoryID {
		return domain.Tag{}, &domain.InvalidCommitError{Side: domain.SideSingle, ID: req.CommitID.String()}
	}

	names, ok := s.tagByName[req.RepositoryID]
	if !ok {
		names = make(map[string]uuid.UUID)
		s.tagByName[req.RepositoryID] = names
	}
	if _, exists := names[req.Name]; exists {
		return domain.Tag{}, &domain.ConflictError{Resource: "tag", Key: req.Name}
	}

	tag := domain.Tag{
		ID:           uuid.New(),
		RepositoryID: req.RepositoryID,
		Name:         req.Name,
		CommitID:     req.CommitID,
		Note:         req.Note,
		CreatedAt:    s.clock().UTC(),
	}
	s.tags[tag.ID] = tag
	names[tag.Name] = tag.ID
	return tag, nil
}

func (s *Store) GetTag(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.tagByName[repositoryID]
	if !ok {
		return domain.Tag{}, &domain.NotFoundError{Resource: "tag", Key: name}
	}
	id, ok := names[name]
	if !ok {
		return domain.Tag{}, &domain.NotFoundError{Resource: "tag", Key: name}
	}
	return s.tags[id], nil
}

func (s *Store) ListTags(ctx context.Context, repositoryID uuid.UUID) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, ok := s.tagByName[repositoryID]
	if !ok {
		return []domain.Tag{}, nil
	}
	result := make([]domain.Tag, 0, len(names))
	for _, id := range names {
		result = append(result, s.tags[id])
	}
	return result, nil
}
