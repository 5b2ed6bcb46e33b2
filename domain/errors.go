package domain

import (
	"fmt"
	"strings"
)

// NotFoundError signals a missing entity.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.Key + " not found"
}

// ConflictError signals a uniqueness or concurrent-modification violation.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return e.Resource + " " + e.Key + " conflicts with existing state"
}

// ValidationError represents invalid input supplied by a caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PathErrorKind enumerates the path-validator rejection reasons from spec §4.1.
type PathErrorKind string

const (
	PathNull           PathErrorKind = "PathNull"
	PathTooLong        PathErrorKind = "PathTooLong"
	PathControlChars   PathErrorKind = "PathControlChars"
	PathNullByte       PathErrorKind = "PathNullByte"
	PathWindowsInvalid PathErrorKind = "PathWindowsInvalid"
)

// PathError is raised by the path normaliser/validator (C1).
type PathError struct {
	Kind PathErrorKind
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %q", e.Kind, e.Path)
}

// CrossRepositoryError is raised when an operation receives commits or
// branches that do not share a repository.
type CrossRepositoryError struct {
	Left  string
	Right string
}

func (e *CrossRepositoryError) Error() string {
	return fmt.Sprintf("cross-repository operation: %s and %s belong to different repositories", e.Left, e.Right)
}

// InvalidCommitSide identifies which operand of a two-commit operation was invalid.
type InvalidCommitSide string

const (
	SideLeft   InvalidCommitSide = "left"
	SideRight  InvalidCommitSide = "right"
	SideSingle InvalidCommitSide = "commit"
)

// InvalidCommitError is raised when a referenced commit id does not exist.
type InvalidCommitError struct {
	Side InvalidCommitSide
	ID   string
}

func (e *InvalidCommitError) Error() string {
	return fmt.Sprintf("invalid commit (%s): %s", e.Side, e.ID)
}

// MergeRequiresResolutionsError is raised by finalize_commit when a merge
// commit leaves conflicting paths unresolved.
type MergeRequiresResolutionsError struct {
	Paths []string
}

func (e *MergeRequiresResolutionsError) Error() string {
	return "merge requires resolutions for paths: " + strings.Join(e.Paths, ", ")
}

// RebaseBlockedError is raised by rebase_branch when the diverged branch
// conflicts with the target it is being rebased onto.
type RebaseBlockedError struct {
	Paths []string
}

func (e *RebaseBlockedError) Error() string {
	return "rebase blocked by conflicting paths: " + strings.Join(e.Paths, ", ")
}

// FastForwardRequiredError is raised when a non-merge commit's parent does
// not match the target branch's current head.
type FastForwardRequiredError struct {
	BranchHead string
	Parent     string
}

func (e *FastForwardRequiredError) Error() string {
	return fmt.Sprintf("fast-forward required: branch head %s does not match commit parent %s", e.BranchHead, e.Parent)
}
