package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalFetcher reads checkpoints from the local filesystem.
type LocalFetcher struct{}

// Fetch implements Fetcher.
func (LocalFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bs, err := os.ReadFile(filepath.Clean(loc.Key))
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %s", loc.Key)
	}
	return bs, nil
}
