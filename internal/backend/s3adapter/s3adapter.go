// Package s3adapter drives the object-store backend. A "container" for
// this adapter is a bucket+prefix pair — one tree-builder folder — since
// the CRUD Loop Engine's object-store variant works against per-folder
// file counts, not a single flat namespace. Grounded on the retrieval
// pack's pairing of github.com/aws/aws-sdk-go-v2/service/s3 with
// aws-sdk-go-v2/config for client construction.
package s3adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/minghe/crudloader/internal/backend"
)

// Adapter drives a single bucket, scoped to one prefix (folder).
type Adapter struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config describes the bucket/prefix container and client this adapter
// drives.
type Config struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// New returns an Adapter bound to the configured bucket+prefix. The
// caller supplies an already-configured *s3.Client, keeping credential
// resolution out of this package.
func New(cfg Config) *Adapter {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Adapter{client: cfg.Client, bucket: cfg.Bucket, prefix: prefix}
}

func (a *Adapter) Kind() backend.Kind { return backend.KindS3 }

// Capabilities does not advertise Update: an object store has no
// in-place record replacement analogous to a document/row update — the
// tree builder's rebalance step is the closest equivalent, and it
// operates outside the per-record CRUD loop.
func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{Insert: true, Update: false, Delete: true}
}

// Count returns the number of objects currently under this adapter's
// prefix via ListObjectsV2. S3 exposes no O(1) count operation, so this
// is documented as an approximation only in the sense that it reflects a
// point-in-time listing that may race with concurrent writers — the
// listing itself is exact.
func (a *Adapter) Count(ctx context.Context) (int64, error) {
	keys, err := a.listKeys(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (a *Adapter) InsertOne(ctx context.Context, record map[string]any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("s3adapter: marshal: %w", err)
	}
	key := a.prefix + objectKey(record)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("s3adapter: insert one: %w", err)
	}
	return nil
}

// InsertBatch uploads records one PutObject at a time; S3 has no native
// batch-put operation, so "atomic per-record" here is the natural
// behavior rather than an engineered guarantee.
func (a *Adapter) InsertBatch(ctx context.Context, records []map[string]any) (int, error) {
	inserted := 0
	for _, r := range records {
		if err := a.InsertOne(ctx, r); err != nil {
			continue
		}
		inserted++
	}
	return inserted, nil
}

func (a *Adapter) PickRandomKey(ctx context.Context) (string, error) {
	keys, err := a.listKeys(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", backend.ErrEmptyContainer
	}
	return keys[rand.Intn(len(keys))], nil
}

// UpdateByKey is unreachable via the engine (see Capabilities) but is
// implemented for completeness of the Adapter interface; it overwrites
// an object's content in place. The tree builder and Rebalance upload
// through their own Uploader and do not call it.
// UpdateByKey and DeleteByKey both take keys relative to this adapter's
// prefix, matching what PickRandomKey returns.

func (a *Adapter) UpdateByKey(ctx context.Context, key string, record map[string]any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("s3adapter: marshal update: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.prefix + key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("s3adapter: update by key: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteByKey(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.prefix + key),
	})
	if err != nil {
		return fmt.Errorf("s3adapter: delete by key: %w", err)
	}
	return nil
}

// InitializeContainer creates the bucket if absent. Prefixes need no
// explicit creation in S3 — they come into existence with the first
// object placed under them.
func (a *Adapter) InitializeContainer(ctx context.Context) error {
	_, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil && !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") && !strings.Contains(err.Error(), "BucketAlreadyExists") {
		return fmt.Errorf("s3adapter: initialize container: %w", err)
	}
	return nil
}

// DropContainer empties everything under this adapter's prefix. It
// does not delete the bucket itself — a bucket list is shared across
// every folder-scoped adapter built from it.
func (a *Adapter) DropContainer(ctx context.Context) error {
	keys, err := a.listKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := a.DeleteByKey(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}

// listKeys returns object keys under this adapter's prefix, relative to
// the prefix (matching the shape PickRandomKey and Count need).
func (a *Adapter) listKeys(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3adapter: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			keys = append(keys, strings.TrimPrefix(key, a.prefix))
		}
	}
	return keys, nil
}

func objectKey(record map[string]any) string {
	if k, ok := record["key"].(string); ok && k != "" {
		return k + ".json"
	}
	return fmt.Sprintf("obj-%d.json", rand.Int63())
}
