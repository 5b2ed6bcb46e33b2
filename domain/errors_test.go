package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onexay/vfsdag/domain"
)

func TestErrorMessagesNameTheOffendingResource(t *testing.T) {
	require.Contains(t, (&domain.NotFoundError{Resource: "branch", Key: "feature"}).Error(), "branch feature")
	require.Contains(t, (&domain.ConflictError{Resource: "repository", Key: "widgets"}).Error(), "repository widgets")
	require.Equal(t, "message required", (&domain.ValidationError{Message: "message required"}).Error())
	require.Contains(t, (&domain.CrossRepositoryError{Left: "a", Right: "b"}).Error(), "a and b")
	require.Contains(t, (&domain.InvalidCommitError{Side: domain.SideLeft, ID: "c1"}).Error(), "left")
}

func TestMergeRequiresResolutionsErrorListsPaths(t *testing.T) {
	err := &domain.MergeRequiresResolutionsError{Paths: []string{"/a", "/b"}}
	require.Contains(t, err.Error(), "/a")
	require.Contains(t, err.Error(), "/b")
}

func TestRebaseBlockedErrorListsPaths(t *testing.T) {
	err := &domain.RebaseBlockedError{Paths: []string{"/conflict.txt"}}
	require.Contains(t, err.Error(), "/conflict.txt")
}

func TestFastForwardRequiredErrorNamesBothSides(t *testing.T) {
	err := &domain.FastForwardRequiredError{BranchHead: "h1", Parent: "p1"}
	require.Contains(t, err.Error(), "h1")
	require.Contains(t, err.Error(), "p1")
}
