// Command vfsdemo drives the commit DAG engine through a small scripted
// session against whichever EntityStore backend STORAGE_BACKEND selects,
// printing each operation's result. It replaces the teacher's HTTP-facing
// cmd/api and cmd/admin: this module exposes its operations as a library,
// not a service, so the demo talks to the Engine in-process.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/onexay/vfsdag/dag"
	"github.com/onexay/vfsdag/internal/config"
	"github.com/onexay/vfsdag/store"
	"github.com/onexay/vfsdag/store/boltstore"
	"github.com/onexay/vfsdag/store/keydbstore"
	"github.com/onexay/vfsdag/store/memory"
	"github.com/onexay/vfsdag/store/sqlstore"
)

func main() {
	cfg := config.Load()

	es, closer, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closer()

	engine := dag.New(es)
	if err := run(context.Background(), engine); err != nil {
		log.Fatalf("demo session: %v", err)
	}

	if cfg.Retention.HotCommitLimit > 0 {
		if err := demoArchival(context.Background(), cfg.Retention); err != nil {
			log.Fatalf("archival demo: %v", err)
		}
	}
}

// demoArchival exercises a store.ContentArchive outside the primary
// EntityStore: it stores and fetches a sample payload under fresh
// repository and entry IDs in a bolt archive. Nothing is moved out of the
// EntityStore, and the DAG engine never reads from the archive.
func demoArchival(ctx context.Context, retention config.RetentionConfig) error {
	archive, err := boltstore.OpenArchive(retention.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	repoID, entryID := uuid.New(), uuid.New()
	if err := archive.Store(ctx, repoID, entryID, []byte("archived content")); err != nil {
		return err
	}
	data, err := archive.Fetch(ctx, repoID, entryID)
	if err != nil {
		return err
	}
	log.Printf("archived %d bytes for entry %s, retained beyond hot commit limit %d", len(data), entryID, retention.HotCommitLimit)
	return nil
}

func openStore(cfg config.StorageConfig) (store.EntityStore, func(), error) {
	switch cfg.Backend {
	case config.StorageBackendSQLite:
		s, err := sqlstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorageBackendPostgres:
		s, err := sqlstore.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorageBackendKeyDB:
		s, err := keydbstore.New(cfg.KeyDB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorageBackendBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func run(ctx context.Context, engine *dag.Engine) error {
	repo, err := engine.CreateRepository(ctx, "docs")
	if err != nil {
		return err
	}
	log.Printf("created repository %s (%s)", repo.Name, repo.ID)

	main, err := engine.Store.GetBranchByName(ctx, repo.ID, "main")
	if err != nil {
		return err
	}

	readme := "# docs\n"
	c1, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, Message: "initial import"})
	if err != nil {
		return err
	}
	if _, err := engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c1.ID, Path: "/README.md", Content: &readme}); err != nil {
		return err
	}
	if _, err := engine.FinalizeCommit(ctx, c1.ID, main.ID); err != nil {
		return err
	}
	log.Printf("committed %s to main", c1.ID)

	feature, err := engine.CreateBranch(ctx, store.CreateBranchRequest{RepositoryID: repo.ID, Name: "feature"})
	if err != nil {
		return err
	}

	featureReadme := "# docs\n\nNow with a feature section.\n"
	c2, err := engine.CreateCommit(ctx, store.CreateCommitRequest{RepositoryID: repo.ID, ParentCommitID: &c1.ID, Message: "document the feature"})
	if err != nil {
		return err
	}
	if _, err := engine.AddFileEntry(ctx, store.AddFileEntryRequest{CommitID: c2.ID, Path: "/README.md", Content: &featureReadme}); err != nil {
		return err
	}
	if _, err := engine.FinalizeCommit(ctx, c2.ID, feature.ID); err != nil {
		return err
	}
	log.Printf("committed %s to feature", c2.ID)

	base, found, err := engine.GetMergeBase(ctx, c2.ID, c1.ID)
	if err != nil {
		return err
	}
	log.Printf("merge base of feature and main: %s (found=%v)", base, found)

	mergeCommit, err := engine.CreateCommit(ctx, store.CreateCommitRequest{
		RepositoryID:       repo.ID,
		ParentCommitID:     &c1.ID,
		MergedFromCommitID: &c2.ID,
		Message:            "merge feature into main",
	})
	if err != nil {
		return err
	}
	result, err := engine.FinalizeCommit(ctx, mergeCommit.ID, main.ID)
	if err != nil {
		return err
	}
	fmt.Printf("finalize result: operation=%s applied_file_count=%d\n", result.Operation, result.AppliedFileCount)

	snapshot, err := engine.GetCommitSnapshot(ctx, result.NewTargetHeadCommitID)
	if err != nil {
		return err
	}
	for _, entry := range snapshot {
		fmt.Printf("%s (origin %s)\n", entry.Path, entry.OriginCommitID)
	}
	return nil
}
