// Package mongoadapter drives the document-db backend. Connection setup
// (write concern, pool sizing, WiredTiger storage options) is adapted
// from the teacher's bulk writer, generalized from a one-shot batch load
// into the full backend.Adapter surface.
package mongoadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/minghe/crudloader/internal/backend"
)

// Adapter drives a single MongoDB database+collection container.
type Adapter struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Config describes the container and connection this adapter drives.
type Config struct {
	ConnectionString string
	DatabaseName     string
	CollectionName   string
	PoolSize         int
}

// New connects to MongoDB and returns an Adapter bound to the configured
// database+collection. Write concern is W:1/J:false — matching the
// teacher's throughput-first settings, since this system drives
// synthetic load rather than production data.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	connectionString := cfg.ConnectionString
	if !strings.Contains(connectionString, "compressors=") {
		separator := "&"
		if !strings.Contains(connectionString, "?") {
			separator = "?"
		}
		connectionString += separator + "compressors=disabled"
	}

	wc := writeconcern.New(writeconcern.W(1), writeconcern.J(false))
	clientOptions := options.Client().
		ApplyURI(connectionString).
		SetMaxPoolSize(uint64(cfg.PoolSize * 10)).
		SetMinPoolSize(uint64(cfg.PoolSize)).
		SetWriteConcern(wc).
		SetRetryWrites(false).
		SetServerSelectionTimeout(30 * time.Second).
		SetSocketTimeout(60 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongoadapter: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongoadapter: ping: %w", err)
	}

	database := client.Database(cfg.DatabaseName)
	collection := database.Collection(cfg.CollectionName)

	return &Adapter{client: client, collection: collection}, nil
}

func (a *Adapter) Kind() backend.Kind { return backend.KindMongo }

func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{Insert: true, Update: true, Delete: true}
}

func (a *Adapter) Count(ctx context.Context) (int64, error) {
	n, err := a.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("mongoadapter: count: %w", err)
	}
	return n, nil
}

func (a *Adapter) InsertOne(ctx context.Context, record map[string]any) error {
	if _, err := a.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("mongoadapter: insert one: %w", err)
	}
	return nil
}

// InsertBatch uses InsertMany unordered, matching the teacher's
// flushBatch throughput tradeoff: one bad document doesn't block the
// rest of the batch.
func (a *Adapter) InsertBatch(ctx context.Context, records []map[string]any) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	opts := options.InsertMany().SetOrdered(false)
	res, err := a.collection.InsertMany(ctx, docs, opts)
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, fmt.Errorf("mongoadapter: insert batch: %w", err)
	}
	return inserted, nil
}

// PickRandomKey samples one document via $sample, grounded on the
// original system's random-document-then-mutate pattern for updates and
// deletes.
func (a *Adapter) PickRandomKey(ctx context.Context) (string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}},
	}
	cur, err := a.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return "", fmt.Errorf("mongoadapter: sample: %w", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		return "", backend.ErrEmptyContainer
	}
	var doc bson.M
	if err := cur.Decode(&doc); err != nil {
		return "", fmt.Errorf("mongoadapter: decode sample: %w", err)
	}
	id, ok := doc["_id"]
	if !ok {
		return "", backend.ErrEmptyContainer
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", id), nil
}

// idFilter builds a {"_id": ...} filter that matches the driver-assigned
// ObjectID a key string came from, not its string rendering — InsertOne
// and InsertMany never set _id themselves, so Mongo always auto-assigns
// an ObjectID, and PickRandomKey always hands back its hex form. Falling
// back to the raw string covers a key that genuinely isn't ObjectID-hex.
func idFilter(key string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(key); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": key}
}

func (a *Adapter) UpdateByKey(ctx context.Context, key string, record map[string]any) error {
	_, err := a.collection.ReplaceOne(ctx, idFilter(key), record)
	if err != nil {
		return fmt.Errorf("mongoadapter: update by key: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteByKey(ctx context.Context, key string) error {
	_, err := a.collection.DeleteOne(ctx, idFilter(key))
	if err != nil {
		return fmt.Errorf("mongoadapter: delete by key: %w", err)
	}
	return nil
}

// InitializeContainer creates the collection with WiredTiger compression
// disabled, matching the teacher's storage-size-mirrors-logical-size
// setup for consistent load-test behavior.
func (a *Adapter) InitializeContainer(ctx context.Context) error {
	createOpts := options.CreateCollection().
		SetStorageEngine(bson.D{
			{Key: "wiredTiger", Value: bson.D{
				{Key: "configString", Value: "block_compressor=none"},
			}},
		})
	err := a.collection.Database().CreateCollection(ctx, a.collection.Name(), createOpts)
	if err != nil && !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "NamespaceExists") {
		return fmt.Errorf("mongoadapter: initialize container: %w", err)
	}
	return nil
}

func (a *Adapter) DropContainer(ctx context.Context) error {
	if err := a.collection.Drop(ctx); err != nil {
		return fmt.Errorf("mongoadapter: drop container: %w", err)
	}
	return nil
}

// DropDatabase drops the adapter's entire database, not just its bound
// collection — backs /mongo/delete_database, which operates one level
// above DropContainer's collection scope.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	if err := a.collection.Database().Drop(ctx); err != nil {
		return fmt.Errorf("mongoadapter: drop database: %w", err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
