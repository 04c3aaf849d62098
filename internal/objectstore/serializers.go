package objectstore

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/segmentio/parquet-go"

	"github.com/minghe/crudloader/internal/model"
)

// Format identifies a file-content serializer the tree builder cycles
// through while populating leaf folders.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatParquet Format = "parquet"
	FormatAvro    Format = "avro"
)

// DefaultFormats is the configured rotation set named in the spec's
// object-store tree section.
var DefaultFormats = []Format{FormatJSON, FormatCSV, FormatTSV, FormatParquet, FormatAvro}

// Extension returns the filename suffix for a format.
func (f Format) Extension() string {
	return "." + string(f)
}

// flatRecord is the tabular projection of model.Record used by the CSV,
// TSV, and Parquet serializers, none of which handle the nested
// Reviews/PublicLikes structure directly.
type flatRecord struct {
	Name          string  `parquet:"name" avro:"name"`
	Address       string  `parquet:"address" avro:"address"`
	City          string  `parquet:"city" avro:"city"`
	Country       string  `parquet:"country" avro:"country"`
	Email         string  `parquet:"email" avro:"email"`
	Phone         string  `parquet:"phone" avro:"phone"`
	URL           string  `parquet:"url" avro:"url"`
	Price         float64 `parquet:"price" avro:"price"`
	AvgRating     float64 `parquet:"avg_rating" avro:"avg_rating"`
	FreeParking   bool    `parquet:"free_parking" avro:"free_parking"`
	FreeBreakfast bool    `parquet:"free_breakfast" avro:"free_breakfast"`
	ReviewCount   int     `parquet:"review_count" avro:"review_count"`
}

func toFlat(r *model.Record) flatRecord {
	return flatRecord{
		Name:          r.Name,
		Address:       r.Address,
		City:          r.City,
		Country:       r.Country,
		Email:         r.Email,
		Phone:         r.Phone,
		URL:           r.URL,
		Price:         r.Price,
		AvgRating:     r.AvgRating,
		FreeParking:   r.FreeParking,
		FreeBreakfast: r.FreeBreakfast,
		ReviewCount:   len(r.Reviews),
	}
}

var avroSchema = avro.MustParse(`{
	"type": "record",
	"name": "HotelSummary",
	"fields": [
		{"name": "name", "type": "string"},
		{"name": "address", "type": "string"},
		{"name": "city", "type": "string"},
		{"name": "country", "type": "string"},
		{"name": "email", "type": "string"},
		{"name": "phone", "type": "string"},
		{"name": "url", "type": "string"},
		{"name": "price", "type": "double"},
		{"name": "avg_rating", "type": "double"},
		{"name": "free_parking", "type": "boolean"},
		{"name": "free_breakfast", "type": "boolean"},
		{"name": "review_count", "type": "int"}
	]
}`)

// Serialize renders rec in the given format, returning file content
// ready to upload.
func Serialize(format Format, rec *model.Record) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(rec)
	case FormatCSV:
		return serializeDelimited(rec, ',')
	case FormatTSV:
		return serializeDelimited(rec, '\t')
	case FormatParquet:
		return serializeParquet(rec)
	case FormatAvro:
		return avro.Marshal(avroSchema, toFlat(rec))
	default:
		return nil, fmt.Errorf("objectstore: unknown format %q", format)
	}
}

func serializeDelimited(rec *model.Record, comma rune) ([]byte, error) {
	flat := toFlat(rec)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma

	header := []string{"name", "address", "city", "country", "email", "phone", "url",
		"price", "avg_rating", "free_parking", "free_breakfast", "review_count"}
	row := []string{
		flat.Name, flat.Address, flat.City, flat.Country, flat.Email, flat.Phone, flat.URL,
		fmt.Sprintf("%v", flat.Price), fmt.Sprintf("%v", flat.AvgRating),
		fmt.Sprintf("%v", flat.FreeParking), fmt.Sprintf("%v", flat.FreeBreakfast),
		fmt.Sprintf("%d", flat.ReviewCount),
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("objectstore: write csv header: %w", err)
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("objectstore: write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("objectstore: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func serializeParquet(rec *model.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[flatRecord](&buf)
	if _, err := w.Write([]flatRecord{toFlat(rec)}); err != nil {
		return nil, fmt.Errorf("objectstore: write parquet row: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("objectstore: close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
