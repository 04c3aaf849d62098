package registry

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the Loader Store: a Mongo-backed collection holding
// loader records, mirroring the original system's loaderCollection. It
// reuses the teacher's own mongo-driver stack directly, not the
// document-generation mongoadapter — this is the control plane's own
// bookkeeping store, not a backend under test.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore returns a Store backed by the given database+collection.
func NewMongoStore(client *mongo.Client, database, collectionName string) *MongoStore {
	return &MongoStore{collection: client.Database(database).Collection(collectionName)}
}

func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	_, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("registry: save loader record: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, loaderID string, status Status) error {
	filter := bson.M{"loader_id": loaderID}
	update := bson.M{"$set": bson.M{"status": status}}
	_, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("registry: update status: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, loaderID string) (Record, bool, error) {
	var rec Record
	err := s.collection.FindOne(ctx, bson.M{"loader_id": loaderID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("registry: get loader record: %w", err)
	}
	return rec, true, nil
}

func (s *MongoStore) List(ctx context.Context) ([]Record, error) {
	cur, err := s.collection.Find(ctx, bson.M{}, options.Find())
	if err != nil {
		return nil, fmt.Errorf("registry: list loader records: %w", err)
	}
	defer cur.Close(ctx)

	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("registry: decode loader records: %w", err)
	}
	return out, nil
}

// MemStore is an in-memory Store, used by tests and as a degraded-mode
// fallback when no Mongo-backed Loader Store is configured. It carries
// no durability across process restart — strictly worse than MongoStore
// on that axis, same as the Mongo-backed one w.r.t. handle loss.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (s *MemStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.LoaderID] = rec
	return nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, loaderID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[loaderID]
	if !ok {
		return nil
	}
	rec.Status = status
	s.records[loaderID] = rec
	return nil
}

func (s *MemStore) Get(ctx context.Context, loaderID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[loaderID]
	return rec, ok, nil
}

func (s *MemStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}
