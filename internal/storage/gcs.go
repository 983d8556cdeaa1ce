package storage

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// GCSFetcher downloads checkpoints from Google Cloud Storage using application default
// credentials.
type GCSFetcher struct {
	endpoint string
}

// NewGCSFetcher returns a GCSFetcher. A non-empty endpoint targets an unauthenticated emulator.
func NewGCSFetcher(endpoint string) *GCSFetcher {
	return &GCSFetcher{endpoint: endpoint}
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	var opts []option.ClientOption
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating gcs client")
	}
	defer func() {
		_ = client.Close()
	}()

	r, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", loc)
	}
	defer func() {
		_ = r.Close()
	}()
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", loc)
	}
	return bs, nil
}
