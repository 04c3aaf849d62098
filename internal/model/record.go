// Package model synthesizes the hotel-shaped synthetic record used to
// feed every backend loader.
package model

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// priceLadder mirrors the fixed set of price points the original document
// template draws from rather than a uniform float range.
var priceLadder = []float64{1000.0, 2000.0, 3000.0, 4000.0, 5000.0, 6000.0, 7000.0, 8000.0, 9000.0, 10000.0}

// Rating is the per-review integer triple.
type Rating struct {
	Value       int `json:"value" bson:"value"`
	Cleanliness int `json:"cleanliness" bson:"cleanliness"`
	Overall     int `json:"overall" bson:"overall"`
}

// Review is a single guest review sub-record.
type Review struct {
	Date   string `json:"date" bson:"date"`
	Author string `json:"author" bson:"author"`
	Rating Rating `json:"rating" bson:"rating"`
}

// Record is the synthetic hotel document synthesized by the Template.
// Field names and shape are dictated by the hotel schema this system
// generates traffic against, not by any one backend's wire format.
type Record struct {
	Key           *string  `json:"key,omitempty" bson:"key,omitempty"`
	Type          string   `json:"type" bson:"type"`
	Name          string   `json:"name" bson:"name"`
	Address       string   `json:"address" bson:"address"`
	City          string   `json:"city" bson:"city"`
	Country       string   `json:"country" bson:"country"`
	Email         string   `json:"email" bson:"email"`
	Phone         string   `json:"phone" bson:"phone"`
	URL           string   `json:"url" bson:"url"`
	Price         float64  `json:"price" bson:"price"`
	AvgRating     float64  `json:"avg_rating" bson:"avg_rating"`
	FreeParking   bool     `json:"free_parking" bson:"free_parking"`
	FreeBreakfast bool     `json:"free_breakfast" bson:"free_breakfast"`
	PublicLikes   []string `json:"public_likes" bson:"public_likes"`
	Reviews       []Review `json:"reviews" bson:"reviews"`
	Mutated       float64  `json:"mutated" bson:"mutated"`
	Padding       string   `json:"padding" bson:"padding"`
}

// Template synthesizes size-targeted Records. It wraps a gofakeit.Faker so
// callers can get a deterministic stream by constructing with a seeded
// faker instance.
type Template struct {
	faker *gofakeit.Faker
	mu    sync.Mutex
}

// NewTemplate returns a Template backed by a fresh, unseeded faker.
func NewTemplate() *Template {
	return &Template{faker: gofakeit.New(0)}
}

// NewSeededTemplate returns a Template whose fake-data stream is
// deterministic for a given seed, useful for reproducible tests.
func NewSeededTemplate(seed uint64) *Template {
	return &Template{faker: gofakeit.New(seed)}
}

// Synthesize builds one Record whose UTF-8 JSON-serialized length equals
// sizeBytes, within a ±1 byte tolerance for encoding-boundary cases. If
// key is non-nil, it is embedded in the record (used when an update
// replaces an existing record but must keep its identity).
func (t *Template) Synthesize(sizeBytes int, key *string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.newBase(key)

	// Append reviews one at a time, measuring serialized size before each
	// addition, stopping as soon as another review would overshoot.
	for {
		candidate := t.generateReview()
		trial := append(append([]Review{}, rec.Reviews...), candidate)
		probe := *rec
		probe.Reviews = trial
		size, err := serializedSize(&probe)
		if err != nil {
			return nil, fmt.Errorf("model: measuring candidate size: %w", err)
		}
		if size > sizeBytes {
			break
		}
		rec.Reviews = trial
		if size == sizeBytes {
			break
		}
	}

	currentSize, err := serializedSize(rec)
	if err != nil {
		return nil, fmt.Errorf("model: measuring base size: %w", err)
	}
	if currentSize < sizeBytes {
		required := sizeBytes - currentSize
		rec.Padding = t.faker.LetterN(uint(required))
		// Re-measure: JSON-escaping or multi-byte boundaries in the fixed
		// fields can shift the length by a byte or two once Padding is
		// appended; trim or extend once to land within tolerance.
		if final, err := serializedSize(rec); err == nil {
			if diff := final - sizeBytes; diff > 1 {
				if diff > len(rec.Padding) {
					diff = len(rec.Padding)
				}
				rec.Padding = rec.Padding[:len(rec.Padding)-diff]
			} else if diff := sizeBytes - final; diff > 1 {
				rec.Padding += t.faker.LetterN(uint(diff))
			}
		}
	}

	return rec, nil
}

func (t *Template) newBase(key *string) *Record {
	f := t.faker
	return &Record{
		Key:           key,
		Type:          "Hotel",
		Name:          f.Name(),
		Address:       f.Address().Address,
		City:          f.City(),
		Country:       f.Country(),
		Email:         f.Email(),
		Phone:         f.Phone(),
		URL:           f.URL(),
		Price:         priceLadder[f.IntRange(0, len(priceLadder)-1)],
		AvgRating:     roundTo(f.Float64Range(0, 9.9), 1),
		FreeParking:   f.Bool(),
		FreeBreakfast: f.Bool(),
		PublicLikes:   t.generatePublicLikes(),
		Reviews:       nil,
		Mutated:       0,
		Padding:       "",
	}
}

func (t *Template) generatePublicLikes() []string {
	n := t.faker.IntRange(0, 10)
	likes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		likes = append(likes, t.faker.Name())
	}
	return likes
}

func (t *Template) generateReview() Review {
	f := t.faker
	return Review{
		Date:   f.DateRange(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)).Format("2006-01-02"),
		Author: f.Name(),
		Rating: Rating{
			Value:       f.IntRange(0, 10),
			Cleanliness: f.IntRange(0, 10),
			Overall:     f.IntRange(1, 10),
		},
	}
}

func serializedSize(r *Record) (int, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func roundTo(v float64, places int) float64 {
	mul := 1.0
	for i := 0; i < places; i++ {
		mul *= 10
	}
	return float64(int(v*mul+0.5)) / mul
}
