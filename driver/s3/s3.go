package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gobeaver/nodekit"
)

// API is the subset of *s3.Client the store needs
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is a nodekit.ObjectStore over an S3 bucket
type Store struct {
	client   API
	bucket   string
	prefix   string
	pageSize int32
}

// StoreOption is a function that configures a Store
type StoreOption func(*Store)

// WithPrefix keeps every key of the store below prefix
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		prefix = nodekit.Strip(prefix)
		if prefix != "" {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// WithPageSize sets MaxKeys for listings
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = int32(n)
		}
	}
}

// NewStore creates an S3 object store
func NewStore(client API, bucket string, options ...StoreOption) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// New creates a flat nodekit backend over an S3 bucket
func New(client API, bucket string, storeOpts []StoreOption, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewStore(client, bucket, storeOpts...), opts...)
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

// HeadObject implements nodekit.ObjectStore
func (s *Store) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nodekit.ObjectSummary{}, mapS3Error("head", key, err)
	}
	return nodekit.ObjectSummary{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

// GetObject implements nodekit.ObjectStore
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, mapS3Error("get", key, err)
	}
	return resp.Body, nil
}

// PutObject implements nodekit.ObjectStore. S3 needs a content length, so
// readers of unknown size that cannot seek are buffered first.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	body, contentLength, err := sizedBody(r, size)
	if err != nil {
		return nodekit.NewPathError("put", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(key)),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return mapS3Error("put", key, err)
	}
	return nil
}

// DeleteObject implements nodekit.ObjectStore. S3 reports success for
// missing keys.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return mapS3Error("delete", key, err)
	}
	return nil
}

// CopyObject implements nodekit.ObjectCopier with a server-side copy
func (s *Store) CopyObject(ctx context.Context, from, to string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(copySource(s.bucket, s.key(from))),
		Key:        aws.String(s.key(to)),
	})
	if err != nil {
		return mapS3Error("copy", from, err)
	}
	return nil
}

// ListObjects implements nodekit.ObjectStore
func (s *Store) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if s.pageSize > 0 {
		input.MaxKeys = aws.Int32(s.pageSize)
	}

	resp, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nodekit.ObjectPage{}, mapS3Error("list", prefix, err)
	}

	page := nodekit.ObjectPage{
		Objects:   make([]nodekit.ObjectSummary, 0, len(resp.Contents)),
		NextToken: aws.ToString(resp.NextContinuationToken),
		Truncated: aws.ToBool(resp.IsTruncated),
	}
	for _, obj := range resp.Contents {
		page.Objects = append(page.Objects, nodekit.ObjectSummary{
			Key:          strings.TrimPrefix(aws.ToString(obj.Key), s.prefix),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return page, nil
}

// sizedBody returns a body with a known length
func sizedBody(r io.Reader, size int64) (io.Reader, int64, error) {
	if size >= 0 {
		return r, size, nil
	}
	switch v := r.(type) {
	case *bytes.Reader:
		return v, int64(v.Len()), nil
	case *strings.Reader:
		return v, int64(v.Len()), nil
	case *os.File:
		if info, err := v.Stat(); err == nil {
			pos, _ := v.Seek(0, io.SeekCurrent)
			return v, info.Size() - pos, nil
		}
	case io.ReadSeeker:
		pos, err := v.Seek(0, io.SeekCurrent)
		if err == nil {
			if end, err := v.Seek(0, io.SeekEnd); err == nil {
				if _, err := v.Seek(pos, io.SeekStart); err == nil {
					return v, end - pos, nil
				}
			}
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// copySource builds the URL-encoded "bucket/key" CopyObject expects
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s", bucket, strings.Join(segments, "/"))
}

// mapS3Error maps S3 errors to nodekit errors
func mapS3Error(op, key string, err error) error {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return nodekit.NewPathError(op, key, nodekit.ErrNotExist)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return nodekit.NewPathError(op, key, nodekit.ErrNotExist)
		case "AccessDenied", "Forbidden":
			return nodekit.NewPathError(op, key, nodekit.ErrPermission)
		}
	}
	return nodekit.BackendError(op, key, err)
}

var (
	_ nodekit.ObjectStore  = (*Store)(nil)
	_ nodekit.ObjectCopier = (*Store)(nil)
	_ API                  = (*s3.Client)(nil)
)
