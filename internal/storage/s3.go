package storage

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

// S3Fetcher downloads checkpoints from S3. Credentials come from the environment.
type S3Fetcher struct {
	region   string
	endpoint string

	once       sync.Once
	downloader *s3manager.Downloader
	err        error
}

// NewS3Fetcher returns an S3Fetcher for region. A non-empty endpoint targets an S3 compatible
// store with path-style addressing.
func NewS3Fetcher(region, endpoint string) *S3Fetcher {
	return &S3Fetcher{region: region, endpoint: endpoint}
}

func (f *S3Fetcher) init() {
	cfg := &aws.Config{Region: aws.String(f.region)}
	if f.endpoint != "" {
		cfg.Endpoint = aws.String(f.endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		f.err = errors.Wrap(err, "creating aws session")
		return
	}
	f.downloader = s3manager.NewDownloader(sess)
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	f.once.Do(f.init)
	if f.err != nil {
		return nil, f.err
	}
	buf := aws.NewWriteAtBuffer(nil)
	_, err := f.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "downloading %s", loc)
	}
	return buf.Bytes(), nil
}
