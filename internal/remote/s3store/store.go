// Package s3store keeps documents as objects in an S3 compatible bucket.
// The bucket is the store identity; identity and content hash travel as
// user metadata on each object.
package s3store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/openmined/docsync/internal/remote"
)

const (
	MetaIdentity    = "original-identity"
	MetaContentHash = "content-sha256"

	defaultHeadConcurrency = 16
)

// API is the subset of the S3 client used by the store.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Region    string
	Endpoint  string // custom endpoint for minio and friends, enables path style
	AccessKey string // static credentials, the default chain is used when empty
	SecretKey string
	Prefix    string // key prefix inside the bucket
	// HeadConcurrency bounds the metadata lookups made while listing.
	HeadConcurrency int
}

type Store struct {
	api             API
	prefix          string
	headConcurrency int
}

var _ remote.Store = (*Store)(nil)

// New builds a store with an S3 client from the default AWS config chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	// buildable so a custom CA bundle from the environment or profile can
	// still be applied to the transport
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(t *http.Transport) {
		t.Proxy = http.ProxyFromEnvironment
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 64
		t.IdleConnTimeout = 90 * time.Second
		t.TLSHandshakeTimeout = 10 * time.Second
		t.ExpectContinueTimeout = 1 * time.Second
	})

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		// the executor owns retries
		config.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, cfg Config) *Store {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	head := cfg.HeadConcurrency
	if head <= 0 {
		head = defaultHeadConcurrency
	}
	return &Store{api: api, prefix: prefix, headConcurrency: head}
}

func (s *Store) key(identity string) string {
	return s.prefix + identity
}

func (s *Store) ListFiles(ctx context.Context, bucket string) ([]remote.RemoteFile, error) {
	if bucket == "" {
		return nil, remote.Client("list", "", remote.ErrInvalidStore)
	}

	var files []remote.RemoteFile
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "list", bucket)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // folder placeholder
			}
			files = append(files, remote.RemoteFile{
				ID:          key,
				DisplayName: strings.TrimPrefix(key, s.prefix),
				Identity:    strings.TrimPrefix(key, s.prefix),
				State:       remote.StateActive,
				Size:        aws.ToInt64(obj.Size),
			})
		}
	}

	if err := s.loadMetadata(ctx, bucket, files); err != nil {
		return nil, err
	}
	return files, nil
}

// loadMetadata fills identity and hash from each object's user metadata.
func (s *Store) loadMetadata(ctx context.Context, bucket string, files []remote.RemoteFile) error {
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.headConcurrency)

	for i := range files {
		eg.Go(func() error {
			out, err := s.api.HeadObject(egCtx, &s3.HeadObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(files[i].ID),
			})
			if err != nil {
				if isNotFound(err) {
					// deleted between list and head
					mu.Lock()
					files[i].State = remote.StateUnknown
					mu.Unlock()
					return nil
				}
				return classify(err, "list", files[i].ID)
			}

			mu.Lock()
			defer mu.Unlock()
			if id := out.Metadata[MetaIdentity]; id != "" {
				files[i].Identity = id
			}
			files[i].ContentHash = out.Metadata[MetaContentHash]
			return nil
		})
	}
	return eg.Wait()
}

func (s *Store) UploadFile(ctx context.Context, bucket string, req remote.UploadRequest) (*remote.RemoteFile, error) {
	if bucket == "" {
		return nil, remote.Client("upload", req.Identity, remote.ErrInvalidStore)
	}

	file, err := os.Open(req.Path)
	if err != nil {
		return nil, remote.Client("upload", req.Identity, fmt.Errorf("open content: %w", err))
	}
	defer file.Close()

	key := s.key(req.Identity)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(req.Size),
		Metadata: map[string]string{
			MetaIdentity:    req.Identity,
			MetaContentHash: req.ContentHash,
		},
	})
	if err != nil {
		return nil, classify(err, "upload", req.Identity)
	}

	// put overwrites in place; only an entry stored under another key needs removal
	if req.Replaces != nil && req.Replaces.ID != "" && req.Replaces.ID != key {
		if err := s.DeleteFile(ctx, bucket, *req.Replaces); err != nil {
			slog.Warn("superseded object not removed", "path", req.Identity, "key", req.Replaces.ID, "error", err)
		}
	}

	return &remote.RemoteFile{
		ID:          key,
		DisplayName: req.DisplayName,
		Identity:    req.Identity,
		ContentHash: req.ContentHash,
		State:       remote.StateActive,
		Size:        req.Size,
	}, nil
}

func (s *Store) DeleteFile(ctx context.Context, bucket string, file remote.RemoteFile) error {
	if bucket == "" {
		return remote.Client("delete", file.Identity, remote.ErrInvalidStore)
	}

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(file.ID),
	})
	if err != nil && !isNotFound(err) {
		return classify(err, "delete", file.Identity)
	}
	return nil
}
