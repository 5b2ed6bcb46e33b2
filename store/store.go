// Package store defines the persistence contract for the commit DAG engine
// (component C2, spec §4.2 and §6) and the request/result shapes its
// operations use. Concrete backends live in store/memory, store/sqlstore,
// store/keydbstore, and store/boltstore.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/domain"
)

// CreateBranchRequest describes a branch insert. A nil HeadCommitID defers
// to the entity store's default-head wiring (spec §4.2).
type CreateBranchRequest struct {
	RepositoryID uuid.UUID
	Name         string
	HeadCommitID *uuid.UUID
}

// CreateCommitRequest describes a commit insert.
type CreateCommitRequest struct {
	RepositoryID       uuid.UUID
	ParentCommitID     *uuid.UUID
	MergedFromCommitID *uuid.UUID
	AuthorID           *uuid.UUID
	Message            string
}

// AddFileEntryRequest describes a file entry insert or update. Path and,
// when IsSymlink is set, Content are normalised by the store before
// persisting (spec §4.1, §4.2).
type AddFileEntryRequest struct {
	CommitID  uuid.UUID
	Path      string
	Content   *string
	IsDeleted bool
	IsSymlink bool
}

// CreateAuthorRequest describes an author insert. Authors are unique per
// (repository, name): a request for a name that already exists in the
// repository returns the existing author instead of creating a new one.
type CreateAuthorRequest struct {
	RepositoryID uuid.UUID
	Name         string
}

// CreateTagRequest describes a tag insert.
type CreateTagRequest struct {
	RepositoryID uuid.UUID
	Name         string
	CommitID     uuid.UUID
	Note         string
}

// EntityStore is the persistence substrate the DAG engine is built
// against (spec §1 lists it as an external collaborator; this interface
// is the boundary). Every method below executes as a single atomic
// operation: callers never observe partial effects of a failed call.
// UpdateBranchHead is a compare-and-swap on the branch head, which is what
// keeps concurrent finalize_commit/rebase_branch calls from overwriting
// each other; no lock is held across the caller's earlier reads and
// validation, so a caller whose view of the head went stale gets a
// domain.ConflictError at write time.
type EntityStore interface {
	CreateRepository(ctx context.Context, name string) (domain.Repository, error)
	GetRepository(ctx context.Context, id uuid.UUID) (domain.Repository, error)
	GetRepositoryByName(ctx context.Context, name string) (domain.Repository, error)

	CreateBranch(ctx context.Context, req CreateBranchRequest) (domain.Branch, error)
	GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error)
	GetBranchByName(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Branch, error)
	ListBranches(ctx context.Context, repositoryID uuid.UUID) ([]domain.Branch, error)
	// UpdateBranchHead advances branch's head, but only if its current head
	// equals expectedCurrentHead (nil meaning "no commits yet"). It returns
	// domain.ConflictError if the branch moved since the caller observed it.
	UpdateBranchHead(ctx context.Context, branchID uuid.UUID, expectedCurrentHead *uuid.UUID, newHead uuid.UUID) (domain.Branch, error)

	CreateCommit(ctx context.Context, req CreateCommitRequest) (domain.Commit, error)
	GetCommit(ctx context.Context, id uuid.UUID) (domain.Commit, error)

	AddFileEntry(ctx context.Context, req AddFileEntryRequest) (domain.FileEntry, error)
	ListFileEntries(ctx context.Context, commitID uuid.UUID) ([]domain.FileEntry, error)
	GetFileEntry(ctx context.Context, commitID uuid.UUID, path string) (domain.FileEntry, bool, error)

	CreateAuthor(ctx context.Context, req CreateAuthorRequest) (domain.Author, error)
	GetAuthor(ctx context.Context, id uuid.UUID) (domain.Author, error)

	CreateTag(ctx context.Context, req CreateTagRequest) (domain.Tag, error)
	GetTag(ctx context.Context, repositoryID uuid.UUID, name string) (domain.Tag, error)
	ListTags(ctx context.Context, repositoryID uuid.UUID) ([]domain.Tag, error)
}

// ContentArchive persists file content payloads outside of the primary
// EntityStore, mirroring the teacher's storage.Archive interface. It is
// optional and standalone: no EntityStore backend reads from or writes to
// an archive, so file entry rows keep their content unless a caller
// changes them.
type ContentArchive interface {
	Store(ctx context.Context, repositoryID, entryID uuid.UUID, data []byte) error
	Fetch(ctx context.Context, repositoryID, entryID uuid.UUID) ([]byte, error)
	Remove(ctx context.Context, repositoryID, entryID uuid.UUID) error
	Close() error
}

// RetentionPolicy controls how long file content stays in the primary
// store before a caller may archive it (supplemental, see SPEC_FULL.md).
type RetentionPolicy struct {
	RepositoryID   uuid.UUID
	HotCommitLimit int
	HotDuration    time.Duration
	Locked         bool
}
