package coverage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/catalog"
)

// ScanRecords validates previously recorded boundary-object files against the
// index: every capability a record's context references must still exist in
// the catalog. Files are scanned concurrently; the index is read-only and
// safe to share.
func ScanRecords(ctx context.Context, index *catalog.Index, paths []string) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	for _, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return scanFile(index, path)
		})
	}
	return group.Wait()
}

func scanFile(index *catalog.Index, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open record file %s: %w", path, err)
	}
	defer file.Close()

	objects, err := boundary.ParseStream(file)
	if err != nil {
		return fmt.Errorf("record file %s: %w", path, err)
	}

	for i, obj := range objects {
		for _, snapshot := range obj.Context {
			if _, ok := index.Capability(snapshot.ID); !ok {
				return fmt.Errorf("record file %s: object %d references capability %q not present in the catalog",
					path, i+1, snapshot.ID)
			}
		}
	}
	return nil
}
