package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/backend/s3adapter"
	"github.com/minghe/crudloader/internal/engine"
	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/objectstore"
	"github.com/minghe/crudloader/internal/registry"
	"github.com/minghe/crudloader/internal/telemetry"
)

func (m *Manager) s3Routes(r chi.Router) {
	r.Post("/start_loader", m.startS3Loader)
	r.Post("/stop_loader", m.stopS3Loader)
	r.Get("/count", m.countS3)
	r.Delete("/delete_bucket", m.deleteS3Bucket)
	r.Post("/restore", m.restoreS3)
}

func s3Client(ctx context.Context, body map[string]any) (*s3.Client, error) {
	accessKey := getString(body, "access_key", "")
	secretKey := getString(body, "secret_key", "")
	sessionToken := getString(body, "session_token", "")
	region := getString(body, "region", "")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("httpapi: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) { o.UsePathStyle = true }), nil
}

// bucketNames synthesizes bucket names the way create_s3_using_specified_config
// does: one bucket per requested count, suffixed by index.
func bucketNames(prefix string, n int64) []string {
	if n <= 0 {
		n = 1
	}
	names := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		names = append(names, fmt.Sprintf("%s-%d", prefix, i))
	}
	return names
}

func (m *Manager) startS3Loader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}

	if loaderID := getString(body, "loader_id", ""); loaderID != "" {
		out := m.startLoader(r.Context(), backend.KindS3, "", "", "", loaderID, nil, nil, nil)
		writeJSON(w, out.status, out.body)
		return
	}

	checklist := []string{"access_key", "secret_key", "region", "num_buckets", "depth_level", "num_folders_per_level", "num_files_per_level"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}

	ctx := r.Context()
	client, err := s3Client(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}

	numBuckets := getInt64(body, "num_buckets", 1)
	depth := int(getInt64(body, "depth_level", 0))
	branching := int(getInt64(body, "num_folders_per_level", 1))
	filesPerLevel := int(getInt64(body, "num_files_per_level", 1))
	maxFiles := getInt64(body, "max_files", 0)
	minFiles := getInt64(body, "min_files", 0)
	docSize := int(getInt64(body, "document_size", 1024))
	wallClock := getWallClock(body, "duration_minutes")

	buckets := bucketNames(getString(body, "bucket_prefix", "loader-bucket"), numBuckets)
	container := fmt.Sprintf("%v", buckets)

	out := m.startLoader(r.Context(), backend.KindS3, container, container, container, "",
		[]byte(fmt.Sprintf("buckets=%v depth=%d branching=%d files=%d", buckets, depth, branching, filesPerLevel)),
		func(ctx context.Context) (backend.Adapter, error) {
			root := s3adapter.New(s3adapter.Config{Client: client, Bucket: buckets[0]})
			for _, b := range buckets {
				bucketRoot := s3adapter.New(s3adapter.Config{Client: client, Bucket: b})
				if err := bucketRoot.InitializeContainer(ctx); err != nil {
					return nil, err
				}
				if err := objectstore.Build(ctx, s3Uploader(client, b), m.Generator, objectstore.TreeConfig{
					Depth: depth, BranchingFactor: branching, FilesPerLevel: filesPerLevel, TargetSize: docSize,
				}); err != nil {
					return nil, err
				}
			}
			// The returned adapter is only used for InitializeContainer's
			// call site and Close; the real per-iteration work happens
			// through AdapterFor in the object-store engine below.
			return root, nil
		},
		s3EngineRunner(m.Generator, client, buckets, docSize, maxFiles, minFiles, depth, branching, wallClock),
	)
	writeJSON(w, out.status, out.body)
}

// s3EngineRunner wires an engine.ObjectStoreEngine over the started
// buckets, building a fresh per-folder adapter on every iteration since
// the tree has no persistent in-memory state across the stop/resume
// boundary.
func s3EngineRunner(gen *generator.Generator, client *s3.Client, buckets []string, docSize int, maxFiles, minFiles int64, depth, branching int, wallClock time.Duration) func(ctx context.Context, adapter backend.Adapter, handle *registry.CancelHandle, opLog *telemetry.OperationLog) error {
	return func(ctx context.Context, _ backend.Adapter, handle *registry.CancelHandle, opLog *telemetry.OperationLog) error {
		e := engine.NewObjectStore(engine.ObjectStoreConfig{
			Buckets: buckets,
			AdapterFor: func(bucket, folder string) backend.Adapter {
				return s3adapter.New(s3adapter.Config{Client: client, Bucket: bucket, Prefix: folder})
			},
			Generator:       gen,
			Handle:          handle,
			OpLog:           opLog,
			TargetSize:      docSize,
			Depth:           depth,
			BranchingFactor: branching,
			MaxFiles:        maxFiles,
			MinFiles:        minFiles,
			WallClock:       wallClock,
		})
		return e.Run(ctx)
	}
}

func s3Uploader(client *s3.Client, bucket string) objectstore.Uploader {
	return func(ctx context.Context, key string, content []byte) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &bucket,
			Key:    &key,
			Body:   bytes.NewReader(content),
		})
		return err
	}
}

func (m *Manager) stopS3Loader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"loader_id"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	out := m.stopLoader(r.Context(), getString(body, "loader_id", ""))
	writeJSON(w, out.status, out.body)
}

func (m *Manager) countS3(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"access_key", "secret_key", "region", "bucket_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	client, err := s3Client(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	a := s3adapter.New(s3adapter.Config{Client: client, Bucket: getString(body, "bucket_name", "")})
	c, err := a.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": c})
}

func (m *Manager) deleteS3Bucket(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"access_key", "secret_key", "bucket_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	client, err := s3Client(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	bucket := getString(body, "bucket_name", "")
	a := s3adapter.New(s3adapter.Config{Client: client, Bucket: bucket})
	if err := a.DropContainer(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	if _, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: &bucket}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("SUCCESS dropped bucket %s", bucket)})
}

// restoreS3 re-populates a single bucket's tree to the requested shape
// without allocating a loader_id, matching restore_s3_bucket.
func (m *Manager) restoreS3(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"access_key", "secret_key", "region", "num_buckets", "depth_level", "num_folders_per_level", "num_files_per_level", "bucket_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	client, err := s3Client(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	bucket := getString(body, "bucket_name", "")
	root := s3adapter.New(s3adapter.Config{Client: client, Bucket: bucket})
	if err := root.DropContainer(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	cfg := objectstore.TreeConfig{
		Depth:           int(getInt64(body, "depth_level", 0)),
		BranchingFactor: int(getInt64(body, "num_folders_per_level", 1)),
		FilesPerLevel:   int(getInt64(body, "num_files_per_level", 1)),
		TargetSize:      int(getInt64(body, "document_size", 1024)),
	}
	if err := objectstore.Build(ctx, s3Uploader(client, bucket), m.Generator, cfg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": "restored", "bucket": bucket})
}
