package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/determined-ai/taskrank/pkg/checkpoint"
)

// DefaultCacheSize is the number of decoded checkpoints a Loader keeps.
const DefaultCacheSize = 8

// Loader decodes checkpoints and keeps the most recently used ones in memory. Analyses reload
// the same ground truth checkpoints many times.
type Loader struct {
	fetcher Fetcher
	cache   *lru.Cache[string, *checkpoint.Checkpoint]
}

// NewLoader returns a Loader caching up to size checkpoints.
func NewLoader(f Fetcher, size int) (*Loader, error) {
	cache, err := lru.New[string, *checkpoint.Checkpoint](size)
	if err != nil {
		return nil, errors.Wrapf(err, "creating checkpoint cache of size %d", size)
	}
	return &Loader{fetcher: f, cache: cache}, nil
}

// Load returns the checkpoint stored at location.
func (l *Loader) Load(ctx context.Context, location string) (*checkpoint.Checkpoint, error) {
	if ckpt, ok := l.cache.Get(location); ok {
		return ckpt, nil
	}

	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	bs, err := l.fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"checkpoint": location,
		"size":       units.HumanSize(float64(len(bs))),
	}).Debug("fetched checkpoint")

	ckpt, err := checkpoint.Decode(bytes.NewReader(bs))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", location)
	}
	l.cache.Add(location, ckpt)
	return ckpt, nil
}

// Result is a loaded checkpoint together with the provenance recovered from its location.
type Result struct {
	Location   string
	Checkpoint *checkpoint.Checkpoint
	Params     checkpoint.Params
	Domain     string
	Iterations int
}

// LoadResult loads a checkpoint and resolves its domain and iteration count, preferring the
// values encoded in the file name. When export is set the <export>/<domain> directory is
// created.
func (l *Loader) LoadResult(ctx context.Context, location, export string) (*Result, error) {
	ckpt, err := l.Load(ctx, location)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Location:   location,
		Checkpoint: ckpt,
		Domain:     ckpt.Domain,
	}
	if ckpt.Iterations != nil {
		res.Iterations = *ckpt.Iterations
	}

	params, err := checkpoint.ParseResultsPath(location)
	switch {
	case err == nil:
		res.Params = params
		res.Domain = params.Domain()
		if it, ok := params.Int("iterations"); ok {
			res.Iterations = int(it)
		}
	case res.Domain == "":
		return nil, errors.Wrapf(err, "no domain recorded for %s", location)
	default:
		res.Params = checkpoint.Params{}
	}

	if export != "" {
		if err := os.MkdirAll(filepath.Join(export, res.Domain), 0o750); err != nil {
			return nil, errors.Wrapf(err, "creating export directory for %s", res.Domain)
		}
	}
	return res, nil
}

// ExportDir is the directory plots for this result are written to.
func (r *Result) ExportDir(export string) string {
	return filepath.Join(export, r.Domain)
}
