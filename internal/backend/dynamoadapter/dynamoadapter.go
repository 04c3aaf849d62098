// Package dynamoadapter drives the wide-column backend. Grounded on the
// retrieval pack's DynamoDB tooling, which pairs
// github.com/aws/aws-sdk-go-v2/service/dynamodb with
// github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue for
// struct/map marshaling instead of hand-rolled AttributeValue building.
package dynamoadapter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/minghe/crudloader/internal/backend"
)

// Adapter drives a single DynamoDB table container.
type Adapter struct {
	client    *dynamodb.Client
	table     string
	keyField  string
}

// Config describes the table and primary key this adapter drives.
type Config struct {
	Client   *dynamodb.Client
	Table    string
	KeyField string
}

// New returns an Adapter bound to the configured table. The caller
// supplies an already-configured *dynamodb.Client (typically built from
// aws-sdk-go-v2/config.LoadDefaultConfig) so credential resolution stays
// out of this package, per the out-of-scope boundary around credential
// handling.
func New(cfg Config) *Adapter {
	if cfg.KeyField == "" {
		cfg.KeyField = "key"
	}
	return &Adapter{client: cfg.Client, table: cfg.Table, keyField: cfg.KeyField}
}

func (a *Adapter) Kind() backend.Kind { return backend.KindDynamo }

// Capabilities does not advertise Update. The operation is ambiguous in
// the source this system generalizes (a call site invoking a misspelled
// method name of unclear intent); rather than guess at whether that call
// was meant to work, this adapter simply never offers update, so the
// engine's operation chooser never selects it.
func (a *Adapter) Capabilities() backend.Capabilities {
	return backend.Capabilities{Insert: true, Update: false, Delete: true}
}

// Count uses DescribeTable's ItemCount, which DynamoDB updates roughly
// every six hours — an approximation, documented here as the spec
// requires for backends without an exact count operation.
func (a *Adapter) Count(ctx context.Context) (int64, error) {
	out, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(a.table),
	})
	if err != nil {
		return 0, fmt.Errorf("dynamoadapter: count: %w", err)
	}
	return aws.ToInt64(out.Table.ItemCount), nil
}

// ensureKey populates record's hash-key attribute with a fresh id when
// the generator left it unset — GenerateOne/GenerateBatch only supply a
// key for update replacements (engine.go's updateRandom), never for
// plain inserts, and the table is created with keyField as its hash key
// (see InitializeContainer), so an insert with no key attribute is
// rejected outright. Mirrors mysqladapter.idAndPayload's same fallback.
func (a *Adapter) ensureKey(record map[string]any) {
	if v, ok := record[a.keyField]; ok {
		if s, ok := v.(string); ok && s != "" {
			return
		}
	}
	record[a.keyField] = fmt.Sprintf("%d-%d", rand.Int63(), rand.Int63())
}

func (a *Adapter) InsertOne(ctx context.Context, record map[string]any) error {
	a.ensureKey(record)
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("dynamoadapter: marshal: %w", err)
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamoadapter: insert one: %w", err)
	}
	return nil
}

// InsertBatch uses BatchWriteItem in chunks of 25, DynamoDB's hard limit
// per request; unprocessed items are retried once before being counted
// as failures, matching the "atomic per-record" contract.
func (a *Adapter) InsertBatch(ctx context.Context, records []map[string]any) (int, error) {
	const chunkSize = 25
	inserted := 0
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		writeReqs := make([]types.WriteRequest, 0, len(chunk))
		for _, r := range chunk {
			a.ensureKey(r)
			item, err := attributevalue.MarshalMap(r)
			if err != nil {
				continue
			}
			writeReqs = append(writeReqs, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}
		if len(writeReqs) == 0 {
			continue
		}

		reqItems := map[string][]types.WriteRequest{a.table: writeReqs}
		for attempt := 0; attempt < 2 && len(reqItems[a.table]) > 0; attempt++ {
			out, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: reqItems,
			})
			if err != nil {
				return inserted, fmt.Errorf("dynamoadapter: insert batch: %w", err)
			}
			succeeded := len(reqItems[a.table]) - len(out.UnprocessedItems[a.table])
			inserted += succeeded
			reqItems = out.UnprocessedItems
			if len(reqItems[a.table]) == 0 {
				break
			}
		}
	}
	return inserted, nil
}

// PickRandomKey scans a single page and returns a uniformly chosen item
// from it. This is not globally uniform across the whole table — the
// interface contract explicitly allows backend-dependent non-uniformity.
func (a *Adapter) PickRandomKey(ctx context.Context) (string, error) {
	out, err := a.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(a.table),
		Limit:     aws.Int32(50),
	})
	if err != nil {
		return "", fmt.Errorf("dynamoadapter: scan: %w", err)
	}
	if len(out.Items) == 0 {
		return "", backend.ErrEmptyContainer
	}
	chosen := out.Items[rand.Intn(len(out.Items))]
	av, ok := chosen[a.keyField]
	if !ok {
		return "", backend.ErrEmptyContainer
	}
	var key string
	if err := attributevalue.Unmarshal(av, &key); err != nil {
		return "", fmt.Errorf("dynamoadapter: unmarshal key: %w", err)
	}
	return key, nil
}

// UpdateByKey is unreachable via the engine (Capabilities().Update is
// false) but is implemented for completeness of the Adapter interface;
// no other caller in this repository uses it.
func (a *Adapter) UpdateByKey(ctx context.Context, key string, record map[string]any) error {
	record[a.keyField] = key
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("dynamoadapter: marshal update: %w", err)
	}
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamoadapter: update by key: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteByKey(ctx context.Context, key string) error {
	keyAV, err := attributevalue.Marshal(key)
	if err != nil {
		return fmt.Errorf("dynamoadapter: marshal key: %w", err)
	}
	_, err = a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.table),
		Key:       map[string]types.AttributeValue{a.keyField: keyAV},
	})
	if err != nil {
		return fmt.Errorf("dynamoadapter: delete by key: %w", err)
	}
	return nil
}

func (a *Adapter) InitializeContainer(ctx context.Context) error {
	_, err := a.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(a.table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(a.keyField), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(a.keyField), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("dynamoadapter: initialize container: %w", err)
	}
	return nil
}

func (a *Adapter) DropContainer(ctx context.Context) error {
	_, err := a.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(a.table),
	})
	if err != nil {
		return fmt.Errorf("dynamoadapter: drop container: %w", err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}
