// Package objectstore wraps an S3-compatible bucket behind list, put, get
// and delete verbs. All keys are namespaced under a fixed root prefix;
// callers pass paths relative to that root.
//
// Folders are simulated: an empty folder is made visible by a zero-byte
// marker object, and listing collapses nested content into common prefixes.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault/internal/logging"
	"github.com/cloudvault/cloudvault/internal/metrics"
	"github.com/cloudvault/cloudvault/internal/protocol"
)

// MarkerName is the zero-byte object that makes an empty folder visible.
const MarkerName = ".keep"

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Config holds object store connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// RootPrefix namespaces every key. Must end with "/".
	RootPrefix string

	// DeleteMissingOK makes Delete of a non-existent key a no-op success.
	DeleteMissingOK bool
}

// Store issues object store calls against one bucket.
type Store struct {
	client          *s3.Client
	bucket          string
	root            string
	deleteMissingOK bool
}

// New creates a new object store adapter and verifies the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	store := &Store{
		client:          client,
		bucket:          cfg.Bucket,
		root:            cfg.RootPrefix,
		deleteMissingOK: cfg.DeleteMissingOK,
	}

	if err := store.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}

	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		_, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(s.bucket),
		})
		if createErr != nil {
			metrics.RecordStorageOperation("create_bucket", time.Since(start), false)
			return fmt.Errorf("bucket %s does not exist and cannot create: %w", s.bucket, createErr)
		}
		metrics.RecordStorageOperation("create_bucket", time.Since(start), true)
		logging.Info("created bucket", zap.String("bucket", s.bucket))
	}
	return nil
}

// RootPrefix returns the configured root prefix.
func (s *Store) RootPrefix() string { return s.root }

// List returns the immediate children of a path: leaf objects as files and
// common prefixes as folders. Marker objects and anything nested deeper than
// one level are filtered out.
func (s *Store) List(ctx context.Context, path string) ([]protocol.StoredObject, error) {
	start := time.Now()
	prefix := s.root + path

	var objects []protocol.StoredObject
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			metrics.RecordStorageOperation("list_objects", time.Since(start), false)
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}

		for _, cp := range out.CommonPrefixes {
			full := aws.ToString(cp.Prefix)
			objects = append(objects, folderEntry(full, s.root))
		}

		for _, obj := range out.Contents {
			var modTime time.Time
			if obj.LastModified != nil {
				modTime = *obj.LastModified
			}
			entry, ok := fileEntry(aws.ToString(obj.Key), prefix, s.root, aws.ToInt64(obj.Size), modTime)
			if !ok {
				continue
			}
			objects = append(objects, entry)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	metrics.RecordStorageOperation("list_objects", time.Since(start), true)
	return objects, nil
}

// ListAll returns every key under a path, without delimiter collapsing.
// Used for recursive folder deletes.
func (s *Store) ListAll(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	prefix := s.root + path

	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			metrics.RecordStorageOperation("list_objects", time.Since(start), false)
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.root))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	metrics.RecordStorageOperation("list_objects", time.Since(start), true)
	return keys, nil
}

// Put uploads bytes under the root prefix.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.root + key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		metrics.RecordStorageOperation("put_object", time.Since(start), false)
		return fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("put_object", time.Since(start), true)
	logging.Debug("put object", zap.String("key", key), zap.Int("size", len(body)))
	return nil
}

// Delete removes a single object by exact key. Whether a missing key is an
// error depends on the configured policy.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	if !s.deleteMissingOK {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		if !exists {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.root + key),
	})
	if err != nil {
		metrics.RecordStorageOperation("delete_object", time.Since(start), false)
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("delete_object", time.Since(start), true)
	logging.Debug("delete object", zap.String("key", key))
	return nil
}

// Get fetches an object's full content and content type.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	start := time.Now()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.root + key),
	})
	if err != nil {
		metrics.RecordStorageOperation("get_object", time.Since(start), false)
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("get object %s: %w", key, ErrNotFound)
		}
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		metrics.RecordStorageOperation("get_object", time.Since(start), false)
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("get_object", time.Since(start), true)
	return body, aws.ToString(out.ContentType), nil
}

// Exists checks whether an object exists. Only a definitive not-found
// answer yields false; transport and server failures are returned so
// callers never mistake an outage for a missing object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.root + key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			metrics.RecordStorageOperation("head_object", time.Since(start), true)
			return false, nil
		}
		metrics.RecordStorageOperation("head_object", time.Since(start), false)
		return false, fmt.Errorf("head object %s: %w", key, err)
	}

	metrics.RecordStorageOperation("head_object", time.Since(start), true)
	return true, nil
}

// fileEntry maps a listed key to a visible file entry. It drops the listing
// prefix itself, anything nested deeper than one level, and folder markers.
func fileEntry(key, prefix, root string, size int64, modTime time.Time) (protocol.StoredObject, bool) {
	rest := strings.TrimPrefix(key, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return protocol.StoredObject{}, false
	}
	if rest == MarkerName {
		return protocol.StoredObject{}, false
	}
	return protocol.StoredObject{
		Key:          key,
		Name:         rest,
		Size:         size,
		LastModified: modTime,
		Path:         strings.TrimPrefix(key, root),
	}, true
}

func folderEntry(fullPrefix, root string) protocol.StoredObject {
	rel := strings.TrimPrefix(fullPrefix, root)
	trimmed := strings.TrimSuffix(rel, "/")
	name := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		name = trimmed[idx+1:]
	}
	return protocol.StoredObject{
		Key:      fullPrefix,
		Name:     name,
		IsFolder: true,
		Path:     rel,
	}
}
