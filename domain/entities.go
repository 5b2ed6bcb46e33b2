package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the top-level container for branches and commits (spec §3).
type Repository struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name            string     `json:"name" gorm:"uniqueIndex;not null"`
	DefaultBranchID *uuid.UUID `json:"default_branch_id" gorm:"type:uuid"`
	CreatedAt       time.Time  `json:"created_at" gorm:""`
}

func (Repository) TableName() string { return "repositories" }

// BeforeCreate assigns an ID when the backing store cannot default one
// itself (e.g. sqlite, which has no gen_random_uuid()), standing in for the
// reference implementation's insert trigger (spec §9).
func (r *Repository) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Branch is a mutable pointer to a commit within a repository (spec §3).
type Branch struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RepositoryID   uuid.UUID  `json:"repository_id" gorm:"type:uuid;not null;index:idx_branches_repo_name,unique"`
	Name           string     `json:"name" gorm:"not null;index:idx_branches_repo_name,unique"`
	HeadCommitID   *uuid.UUID `json:"head_commit_id" gorm:"type:uuid"`
	CreatedAt      time.Time  `json:"created_at" gorm:""`
}

func (Branch) TableName() string { return "branches" }

func (b *Branch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Commit is an immutable (once referenced) node of the commit DAG (spec §3).
type Commit struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RepositoryID       uuid.UUID  `json:"repository_id" gorm:"type:uuid;not null;index"`
	ParentCommitID     *uuid.UUID `json:"parent_commit_id" gorm:"type:uuid;index"`
	MergedFromCommitID *uuid.UUID `json:"merged_from_commit_id" gorm:"type:uuid;index"`
	AuthorID           *uuid.UUID `json:"author_id" gorm:"type:uuid"`
	Message            string     `json:"message" gorm:""`
	CreatedAt          time.Time  `json:"created_at" gorm:""`
}

func (Commit) TableName() string { return "commits" }

// IsMerge reports whether c records a merge (has a second, merged-from parent).
func (c Commit) IsMerge() bool { return c.MergedFromCommitID != nil }

func (c *Commit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FileEntry is a single path's recorded state at a commit (spec §3).
type FileEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CommitID  uuid.UUID `json:"commit_id" gorm:"type:uuid;not null;index:idx_files_commit_path,unique;index:idx_files_path"`
	Path      string    `json:"path" gorm:"not null;index:idx_files_commit_path,unique;index:idx_files_path"`
	Content   *string   `json:"content" gorm:""`
	IsDeleted bool      `json:"is_deleted" gorm:"not null;default:false"`
	IsSymlink bool      `json:"is_symlink" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:""`
}

func (FileEntry) TableName() string { return "files" }

func (f *FileEntry) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// BeforeSave runs C1's path normaliser and the tombstone/symlink invariants
// of spec §3 on every insert or update, standing in for the reference
// implementation's database trigger (spec §9).
func (f *FileEntry) BeforeSave(tx *gorm.DB) error {
	normalised, err := NormalisePath(f.Path)
	if err != nil {
		return err
	}
	f.Path = normalised

	if f.IsDeleted {
		if f.Content != nil {
			return &ValidationError{Message: "tombstone entries must not carry content"}
		}
		if f.IsSymlink {
			return &ValidationError{Message: "tombstone entries cannot be symlinks"}
		}
		return nil
	}

	if f.IsSymlink {
		if f.Content == nil {
			return &ValidationError{Message: "symlink entries require a target path"}
		}
		target, err := NormalisePath(*f.Content)
		if err != nil {
			return err
		}
		f.Content = &target
	}
	return nil
}

// Author identifies the writer of a commit, bound to a repository the way
// the teacher's per-repo authorID->authorName table is (spec-adjacent,
// supplemental — see SPEC_FULL.md).
type Author struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RepositoryID uuid.UUID `json:"repository_id" gorm:"type:uuid;not null;index:idx_authors_repo_name,unique"`
	Name         string    `json:"name" gorm:"not null;index:idx_authors_repo_name,unique"`
	CreatedAt    time.Time `json:"created_at" gorm:""`
}

func (Author) TableName() string { return "authors" }

func (a *Author) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Tag anchors a commit to an immutable, friendly label (supplemental — see
// SPEC_FULL.md).
type Tag struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RepositoryID uuid.UUID `json:"repository_id" gorm:"type:uuid;not null;index:idx_tags_repo_name,unique"`
	Name         string    `json:"name" gorm:"not null;index:idx_tags_repo_name,unique"`
	CommitID     uuid.UUID `json:"commit_id" gorm:"type:uuid;not null"`
	Note         string    `json:"note" gorm:""`
	CreatedAt    time.Time `json:"created_at" gorm:""`
}

func (Tag) TableName() string { return "tags" }

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
