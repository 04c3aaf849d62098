// Package backend defines the uniform capability surface every storage
// backend adapter exposes to the CRUD Loop Engine.
package backend

import "context"

// Kind identifies a storage backend family.
type Kind string

const (
	KindMongo    Kind = "document-db"
	KindMySQL    Kind = "relational-db"
	KindDynamo   Kind = "wide-column"
	KindS3       Kind = "object-store"
)

// Operation identifies one of the three mutating operations the CRUD Loop
// Engine chooses between.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Capabilities is the operation subset an adapter supports. The engine
// never selects an operation outside this set.
type Capabilities struct {
	Insert bool
	Update bool
	Delete bool
}

// Supports reports whether op is enabled in c.
func (c Capabilities) Supports(op Operation) bool {
	switch op {
	case OpInsert:
		return c.Insert
	case OpUpdate:
		return c.Update
	case OpDelete:
		return c.Delete
	default:
		return false
	}
}

// Enabled returns the operations this Capabilities value supports, in a
// stable order, for uniform random selection by the engine.
func (c Capabilities) Enabled() []Operation {
	var ops []Operation
	if c.Insert {
		ops = append(ops, OpInsert)
	}
	if c.Update {
		ops = append(ops, OpUpdate)
	}
	if c.Delete {
		ops = append(ops, OpDelete)
	}
	return ops
}

// ErrEmptyContainer is returned by PickRandomKey when the container holds
// no records; the engine treats this as a no-op, not an error.
var ErrEmptyContainer = emptyContainerError{}

type emptyContainerError struct{}

func (emptyContainerError) Error() string { return "backend: container is empty" }

// Adapter is the uniform surface the CRUD Loop Engine drives. Every
// backend-specific package (mongoadapter, mysqladapter, dynamoadapter,
// s3adapter) implements it.
type Adapter interface {
	// Kind identifies which backend family this adapter drives.
	Kind() Kind

	// Capabilities reports the operation subset this adapter supports.
	Capabilities() Capabilities

	// Count returns the current population of the addressed container.
	// May be an estimate; adapters document this in their own package
	// comment when it applies.
	Count(ctx context.Context) (int64, error)

	// InsertOne inserts a single record. Duplicate-key errors are
	// surfaced to the caller.
	InsertOne(ctx context.Context, record map[string]any) error

	// InsertBatch inserts records; failure is atomic per-record, not
	// per-batch. The returned int is the number of records successfully
	// inserted.
	InsertBatch(ctx context.Context, records []map[string]any) (int, error)

	// PickRandomKey returns an existing primary-key value. It returns
	// ErrEmptyContainer, not an error wrapping it, when the container is
	// empty — callers should check with errors.Is.
	PickRandomKey(ctx context.Context) (string, error)

	// UpdateByKey replaces the record at key. Missing-key errors are
	// surfaced.
	UpdateByKey(ctx context.Context, key string, record map[string]any) error

	// DeleteByKey deletes the record at key. Idempotent: a missing key is
	// success, not an error.
	DeleteByKey(ctx context.Context, key string) error

	// InitializeContainer creates the backing container if absent.
	InitializeContainer(ctx context.Context) error

	// DropContainer tears down the container, best-effort.
	DropContainer(ctx context.Context) error

	// Close releases the adapter's connection/client resources. Safe to
	// call more than once.
	Close(ctx context.Context) error
}
