// Package storage fetches checkpoint documents from local disk and object stores.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownScheme is returned for checkpoint locations with an unsupported URL scheme.
var ErrUnknownScheme = errors.New("unknown checkpoint location scheme")

// Scheme values of a Location.
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
	SchemeGCS  = "gs"
)

// Fetcher reads the raw bytes stored at a checkpoint location.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// Location identifies a checkpoint document. Local files have an empty Bucket.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// ParseLocation parses plain paths, file:// URLs, s3://bucket/key and gs://bucket/object.
func ParseLocation(raw string) (Location, error) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return Location{}, errors.New("empty checkpoint location")
		}
		return Location{Scheme: SchemeFile, Key: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Wrapf(err, "parsing checkpoint location %q", raw)
	}
	switch u.Scheme {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Key: u.Host + u.Path}, nil
	case SchemeS3, SchemeGCS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.Errorf("checkpoint location %q needs a bucket and a key", raw)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
	default:
		return Location{}, errors.Wrapf(ErrUnknownScheme, "%q", raw)
	}
}

// Config configures the object store clients.
type Config struct {
	S3Region    string
	S3Endpoint  string
	GCSEndpoint string
}

// Router dispatches to a Fetcher by location scheme.
type Router struct {
	fetchers map[string]Fetcher
}

// NewRouter returns a Router that reads local files, S3 objects and GCS objects.
func NewRouter(c Config) *Router {
	return &Router{fetchers: map[string]Fetcher{
		SchemeFile: LocalFetcher{},
		SchemeS3:   NewS3Fetcher(c.S3Region, c.S3Endpoint),
		SchemeGCS:  NewGCSFetcher(c.GCSEndpoint),
	}}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	f, ok := r.fetchers[loc.Scheme]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownScheme, "%q", loc.Scheme)
	}
	return f.Fetch(ctx, loc)
}
