// Package object implements C4 ObjectCache: an S3-backed derivative
// container used as the tier below file cache and above the origin
// object store. Unlike the originals bucket, this bucket holds only
// regenerable derivatives, so eviction here never risks losing data that
// cannot be recomputed.
package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/transform"
)

// Config configures the ObjectCache's S3 client and retry behaviour,
// mirroring the teacher's S3ContentStoreConfig defaulting style.
type Config struct {
	Client    *s3.Client
	Bucket    string
	KeyPrefix string

	// UseFileCache, when set, causes Get to insert a copy of any blob it
	// downloads into the given file-cache level, so a repeated Resolve
	// doesn't hit S3 again (spec.md's recursive-cache-chain design note).
	UseFileCache cache.Level

	MaxRetries     uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewClient builds an S3 client from the scalar fields this service's
// YAML config exposes (spec.md §6's object_cache/object_store sections),
// the same construction shape as the teacher's NewS3ClientFromConfig.
func NewClient(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, forcePathStyle bool) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("object: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = forcePathStyle
	})
	return client, nil
}

// Cache is the C4 ObjectCache implementation of cache.Level.
type Cache struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	retry     retryConfig

	useFileCache cache.Level

	mu         sync.RWMutex
	cached     map[string]cache.Meta // best-effort element count/size tracking
	controller *cache.Controller
	metrics    cache.Metrics
}

type retryConfig struct {
	maxRetries     uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ cache.Level = (*Cache)(nil)

// Open verifies bucket access (HeadBucket) and returns a ready Cache.
func Open(ctx context.Context, cfg Config, policy cache.Policy, metrics cache.Metrics) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil || cfg.Bucket == "" {
		return nil, cache.ConfigErr("object cache requires client and bucket", nil)
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, cache.Unavailable("object-cache", "", err)
	}

	retry := retryConfig{maxRetries: cfg.MaxRetries, initialBackoff: cfg.InitialBackoff, maxBackoff: cfg.MaxBackoff}
	if retry.maxRetries == 0 {
		retry.maxRetries = 3
	}
	if retry.initialBackoff == 0 {
		retry.initialBackoff = 100 * time.Millisecond
	}
	if retry.maxBackoff == 0 {
		retry.maxBackoff = 2 * time.Second
	}

	return &Cache{
		client: cfg.Client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix,
		retry: retry, useFileCache: cfg.UseFileCache,
		cached: make(map[string]cache.Meta), controller: cache.NewController(policy),
		metrics: metrics,
	}, nil
}

func (c *Cache) Name() string { return "object-cache" }

func (c *Cache) setNext(_ cache.Level) {}

func (c *Cache) Next() cache.Level { return nil }

func (c *Cache) objectKey(key string) string {
	return c.keyPrefix + key
}

func (c *Cache) Get(ctx context.Context, key string) (*cache.Entry, error) {
	out, err := c.getWithRetry(ctx, key)
	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			if c.metrics != nil {
				c.metrics.ObserveCacheMiss(c.Name())
			}
			return nil, cache.NotFound(c.Name(), key)
		}
		return nil, cache.Unavailable(c.Name(), key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, cache.StoreErr(c.Name(), key, "read object body", err)
	}

	createdAt := time.Time{}
	accessedAt := time.Now()
	if out.LastModified != nil {
		createdAt = *out.LastModified
		accessedAt = createdAt
	}
	ent := &cache.Entry{Key: key, Data: data, Size: int64(len(data)), CreatedAt: createdAt, AccessedAt: accessedAt}

	c.mu.Lock()
	c.cached[key] = ent.Meta()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveCacheHit(c.Name())
	}

	if c.useFileCache != nil {
		_ = c.useFileCache.Put(ctx, ent)
	}

	return ent, nil
}

func (c *Cache) getWithRetry(ctx context.Context, key string) (*s3.GetObjectOutput, error) {
	var lastErr error
	backoff := c.retry.initialBackoff
	for attempt := uint(0); attempt <= c.retry.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.retry.maxBackoff {
				backoff = c.retry.maxBackoff
			}
		}

		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket), Key: aws.String(c.objectKey(key)),
		})
		if err == nil {
			return out, nil
		}

		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Cache) Put(ctx context.Context, ent *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(ent.Key)),
		Body:   bytes.NewReader(ent.Data),
	})
	if err != nil {
		return cache.StoreErr(c.Name(), ent.Key, "put object", err)
	}

	c.mu.Lock()
	c.cached[ent.Key] = ent.Meta()
	stat := c.statLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordStat(c.Name(), stat)
	}

	if c.controller.ShouldEvict(stat) {
		c.evict(ctx, stat)
	}

	return nil
}

func (c *Cache) evict(ctx context.Context, stat cache.Stat) {
	c.mu.RLock()
	metas := make([]cache.Meta, 0, len(c.cached))
	for _, m := range c.cached {
		metas = append(metas, m)
	}
	c.mu.RUnlock()

	victims := c.controller.SelectVictims(stat, metas)
	for _, key := range victims {
		if ctx.Err() != nil {
			return
		}
		_ = c.Invalidate(ctx, key)
	}

	if updated, err := c.Stat(ctx); err == nil {
		c.controller.MaybeAlarm(c.Name(), updated, time.Now())
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(c.objectKey(key)),
	})
	if err != nil {
		return cache.StoreErr(c.Name(), key, "delete object", err)
	}

	c.mu.Lock()
	delete(c.cached, key)
	c.mu.Unlock()

	return nil
}

// InvalidatePrefix lists every object whose name starts with keyPrefix
// plus idPrefix, filters to those matching idPrefix under
// transform.MatchesIdentity (a ListObjectsV2 Prefix alone would also
// match unrelated identities that merely share a string prefix, e.g.
// "a/b" listing "a/bc"), and deletes each match. Unlike Invalidate this
// needs a listing, since S3 has no secondary index on identity.
func (c *Cache) InvalidatePrefix(ctx context.Context, idPrefix string) error {
	var matched []string

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket), Prefix: aws.String(c.objectKey(idPrefix)),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return cache.Unavailable(c.Name(), idPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := (*obj.Key)[len(c.keyPrefix):]
			if transform.MatchesIdentity(key, idPrefix) {
				matched = append(matched, key)
			}
		}
	}

	for _, key := range matched {
		if err := c.Invalidate(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

// Stat reports counts tracked locally since this process started; S3 has
// no cheap aggregate byte-count API, so this is a best-effort view, not
// an authoritative one (unlike memory/file levels).
func (c *Cache) Stat(ctx context.Context) (cache.Stat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statLocked(), nil
}

func (c *Cache) statLocked() cache.Stat {
	var bytes int64
	for _, m := range c.cached {
		bytes += m.Size
	}
	p := c.controller.Policy()
	return cache.Stat{Name: c.Name(), Bytes: bytes, MaxBytes: p.MaxBytes, Elements: int64(len(c.cached)), MaxElements: p.MaxElements}
}
