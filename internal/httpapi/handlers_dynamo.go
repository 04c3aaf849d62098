package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-chi/chi/v5"

	"github.com/minghe/crudloader/internal/backend"
	"github.com/minghe/crudloader/internal/backend/dynamoadapter"
	"github.com/minghe/crudloader/internal/generator"
)

func (m *Manager) dynamoRoutes(r chi.Router) {
	r.Post("/start_loader", m.startDynamoLoader)
	r.Post("/stop_loader", m.stopDynamoLoader)
	r.Get("/count", m.countDynamo)
	r.Delete("/delete_table", m.deleteDynamoTable)
}

func dynamoClient(ctx context.Context, body map[string]any) (*dynamodb.Client, error) {
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

	opts := func(o *dynamodb.Options) {
		if url := getString(body, "url", ""); url != "" {
			o.BaseEndpoint = &url
		}
	}
	return dynamodb.NewFromConfig(cfg, opts), nil
}

func (m *Manager) startDynamoLoader(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}

	if loaderID := getString(body, "loader_id", ""); loaderID != "" {
		out := m.startLoader(r.Context(), backend.KindDynamo, "", "", "", loaderID, nil, nil, nil)
		writeJSON(w, out.status, out.body)
		return
	}

	checklist := []string{"access_key", "secret_key", "region", "primary_key_field", "table_name", "target_num_docs"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}

	table := getString(body, "table_name", "")
	keyField := getString(body, "primary_key_field", "")
	target := getInt64(body, "target_num_docs", 0)
	buffer := getInt64(body, "num_buffer", 500)
	docSize := int(getInt64(body, "document_size", 1024))
	wallClock := getWallClock(body, "time_for_crud_in_mins")

	out := m.startLoader(r.Context(), backend.KindDynamo, table, table, table, "",
		[]byte(fmt.Sprintf("target=%d buffer=%d size=%d", target, buffer, docSize)),
		func(ctx context.Context) (backend.Adapter, error) {
			client, err := dynamoClient(ctx, body)
			if err != nil {
				return nil, err
			}
			if err := ensureTable(ctx, client, table, keyField); err != nil {
				return nil, err
			}
			return dynamoadapter.New(dynamoadapter.Config{Client: client, Table: table, KeyField: keyField}), nil
		},
		defaultEngineRunner(m.Generator, generator.KindWideColumn, docSize, target, buffer, wallClock),
	)
	writeJSON(w, out.status, out.body)
}

// ensureTable creates the table if absent, matching init_table's
// on-demand-capacity single hash-key schema.
func ensureTable(ctx context.Context, client *dynamodb.Client, table, keyField string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &table})
	if err == nil {
		return nil
	}
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: &keyField, KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: &keyField, AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("httpapi: create table %s: %w", table, err)
	}
	return nil
}

func (m *Manager) stopDynamoLoader(w http.ResponseWriter, r *http.Request) {
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

func (m *Manager) countDynamo(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"access_key", "secret_key", "region", "table_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	client, err := dynamoClient(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	a := dynamoadapter.New(dynamoadapter.Config{Client: client, Table: getString(body, "table_name", "")})
	c, err := a.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": c})
}

func (m *Manager) deleteDynamoTable(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ERROR": err.Error()})
		return
	}
	checklist := []string{"access_key", "secret_key", "region", "table_name"}
	if missing, ok := requireFields(body, checklist); !ok {
		respondMissingField(w, checklist, missing)
		return
	}
	ctx := r.Context()
	client, err := dynamoClient(ctx, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	table := getString(body, "table_name", "")
	a := dynamoadapter.New(dynamoadapter.Config{Client: client, Table: table})
	if err := a.DropContainer(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ERROR": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": fmt.Sprintf("SUCCESS, table %s deleted successfully", table)})
}
