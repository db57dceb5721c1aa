// Package s3 stores outgoing documents in a bucket and reads documents given
// as s3:// URIs.
package s3

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

// DocumentStore is a S3-compatible storage interface.
type DocumentStore interface {
	// Upload stores body under key in the document bucket and returns the
	// URI of the object.
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// Download writes the contents of a remote file into the given writer.
	Download(ctx context.Context, w io.WriterAt, URI string) (int64, error)
}

// ObjectStorage is our implementation of the DocumentStore interface.
type ObjectStorage struct {
	client     s3iface.S3API
	bucket     string
	downloader *s3manager.Downloader
}

var _ DocumentStore = (*ObjectStorage)(nil)

// New returns a pointer to a new ObjectStorage that uploads to bucket.
func New(sess *session.Session, bucket string) *ObjectStorage {
	return NewWithClient(s3.New(sess), bucket)
}

func NewWithClient(client s3iface.S3API, bucket string) *ObjectStorage {
	return &ObjectStorage{
		client:     client,
		bucket:     bucket,
		downloader: s3manager.NewDownloaderWithClient(client),
	}
}

func (s *ObjectStorage) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if s.bucket == "" {
		return "", errors.New("document bucket is not configured")
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *ObjectStorage) Download(ctx context.Context, w io.WriterAt, URI string) (n int64, err error) {
	bucket, key, err := getBucketAndKey(URI)
	if err != nil {
		return -1, err
	}
	req := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	return s.downloader.DownloadWithContext(ctx, w, req)
}

// IsURI reports whether name points to an object in S3.
func IsURI(name string) bool {
	return strings.HasPrefix(name, "s3://")
}

func getBucketAndKey(URI string) (bucket string, key string, err error) {
	u, err := url.Parse(URI)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", errors.Errorf("%s is not a s3 URI", URI)
	}
	return u.Hostname(), strings.TrimPrefix(u.Path, "/"), nil
}
