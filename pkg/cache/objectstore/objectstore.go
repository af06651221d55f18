// Package objectstore implements C5 ObjectStore: the authoritative
// originals container. Unlike the cache levels, it is never evicted from
// by this service — it is the thing the cache chain ultimately falls
// through to.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/identity"
	"github.com/ashgrove/imaged/pkg/transform"
)

// Method names an HTTP verb a presigned URL is valid for.
type Method string

const (
	MethodGet Method = "GET"
	MethodPut Method = "PUT"
)

// Config configures the ObjectStore's S3 client.
type Config struct {
	Client    *s3.Client
	Bucket    string
	KeyPrefix string
}

// Store is the C5 ObjectStore implementation: it satisfies cache.Level
// (Next() always nil — nothing sits below it) so the coordinator can
// treat it uniformly with the cache tiers, and additionally exposes
// Presign/List/Healthcheck, which spec.md scopes to this level alone.
type Store struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	keyPrefix string

	mu     sync.Mutex
	cached map[presignCacheKey]cachedURL
}

type presignCacheKey struct {
	key    string
	method Method
}

type cachedURL struct {
	url      string
	issuedAt time.Time
	lifetime time.Duration
	slack    time.Duration
}

var _ cache.Level = (*Store)(nil)

// Open verifies bucket access and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil || cfg.Bucket == "" {
		return nil, cache.ConfigErr("object store requires client and bucket", nil)
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, cache.Unavailable("object-store", "", err)
	}

	return &Store{
		client: cfg.Client, presign: s3.NewPresignClient(cfg.Client),
		bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix,
		cached: make(map[presignCacheKey]cachedURL),
	}, nil
}

func (s *Store) Name() string { return "object-store" }

func (s *Store) setNext(_ cache.Level) {}

func (s *Store) Next() cache.Level { return nil }

func (s *Store) objectKey(key string) string { return s.keyPrefix + key }

func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, cache.NotFound(s.Name(), key)
		}
		return nil, cache.Unavailable(s.Name(), key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, cache.StoreErr(s.Name(), key, "read object body", err)
	}

	createdAt := time.Time{}
	if out.LastModified != nil {
		createdAt = *out.LastModified
	}
	return &cache.Entry{Key: key, Data: data, Size: int64(len(data)), CreatedAt: createdAt, AccessedAt: time.Now()}, nil
}

// Put writes an original under identity key (spec.md's upload path).
// Overlapping uploads to the same identity are unserialised — last
// writer wins — per DESIGN.md's Open Question #1.
func (s *Store) Put(ctx context.Context, ent *cache.Entry) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(ent.Key)), Body: bytes.NewReader(ent.Data),
	})
	if err != nil {
		return cache.StoreErr(s.Name(), ent.Key, "put original", err)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key)),
	})
	if err != nil {
		return cache.StoreErr(s.Name(), key, "delete original", err)
	}
	return nil
}

// InvalidatePrefix lists objects under keyPrefix and deletes every one
// whose key matches idPrefix per transform.MatchesIdentity. The
// coordinator's upload path does not call this on the origin (it writes
// the new original under the exact identity key instead); it exists to
// satisfy cache.Level so Store can sit in a chain like any other level.
func (s *Store) InvalidatePrefix(ctx context.Context, idPrefix string) error {
	var matched []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket), Prefix: aws.String(s.objectKey(idPrefix)),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return cache.Unavailable(s.Name(), idPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := (*obj.Key)[len(s.keyPrefix):]
			if transform.MatchesIdentity(key, idPrefix) {
				matched = append(matched, key)
			}
		}
	}

	for _, key := range matched {
		if err := s.Invalidate(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

// Stat is a best-effort, possibly expensive ListObjectsV2-backed count;
// unlike the cache tiers this is not on the Resolve hot path so cost is
// acceptable for the `cache stat` CLI command.
func (s *Store) Stat(ctx context.Context) (cache.Stat, error) {
	var stat cache.Stat
	stat.Name = s.Name()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket), Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return stat, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return stat, cache.Unavailable(s.Name(), "", err)
		}
		for _, obj := range page.Contents {
			stat.Elements++
			if obj.Size != nil {
				stat.Bytes += *obj.Size
			}
		}
	}
	return stat, nil
}

// List enumerates identities matching pattern (a regular expression),
// delegating enumeration to S3 and filtering client-side per spec.md §4.4.
func (s *Store) List(ctx context.Context, pattern string) ([]identity.Identity, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, cache.ConfigErr(fmt.Sprintf("invalid list pattern %q", pattern), err)
	}

	var out []identity.Identity
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket), Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cache.Unavailable(s.Name(), "", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			id := identity.New((*obj.Key)[len(s.keyPrefix):])
			if re.MatchString(id.String()) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// Presign returns a time-limited URL for key valid for method, reusing a
// previously issued URL while its remaining lifetime is still >=
// lifetime-slack (spec.md §4.3/§8 S5), to amortise signing cost.
func (s *Store) Presign(ctx context.Context, key string, method Method, lifetime, slack time.Duration) (string, error) {
	now := time.Now()
	ck := presignCacheKey{key: key, method: method}

	s.mu.Lock()
	if cached, ok := s.cached[ck]; ok {
		remaining := cached.issuedAt.Add(cached.lifetime).Sub(now)
		if remaining >= lifetime-slack {
			s.mu.Unlock()
			return cached.url, nil
		}
	}
	s.mu.Unlock()

	var url string
	var err error
	switch method {
	case MethodPut:
		req, presErr := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key)),
		}, s3.WithPresignExpires(lifetime))
		if presErr == nil {
			url = req.URL
		}
		err = presErr
	default:
		req, presErr := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket), Key: aws.String(s.objectKey(key)),
		}, s3.WithPresignExpires(lifetime))
		if presErr == nil {
			url = req.URL
		}
		err = presErr
	}
	if err != nil {
		return "", cache.StoreErr(s.Name(), key, "presign", err)
	}

	s.mu.Lock()
	s.cached[ck] = cachedURL{url: url, issuedAt: now, lifetime: lifetime, slack: slack}
	s.mu.Unlock()

	return url, nil
}

// Healthcheck verifies the bucket is still reachable; used at startup to
// decide exit code 2 (store unreachable) per spec.md §6.
func (s *Store) Healthcheck(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return cache.Unavailable(s.Name(), "", err)
	}
	return nil
}
