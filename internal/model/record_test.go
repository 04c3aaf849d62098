package model

import (
	"encoding/json"
	"testing"
)

func TestSynthesizeSizeFidelity(t *testing.T) {
	cases := []int{512, 1024, 2048, 8192, 65536}
	tpl := NewSeededTemplate(42)

	for _, size := range cases {
		size := size
		t.Run(sizeLabel(size), func(t *testing.T) {
			rec, err := tpl.Synthesize(size, nil)
			if err != nil {
				t.Fatalf("Synthesize(%d): %v", size, err)
			}
			b, err := json.Marshal(rec)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got := len(b)
			if diff := got - size; diff > 1 || diff < -1 {
				t.Errorf("size %d: got serialized length %d (diff %d), want within ±1", size, got, diff)
			}
		})
	}
}

func TestSynthesizePreservesKey(t *testing.T) {
	tpl := NewSeededTemplate(7)
	key := "fixed-key-123"
	rec, err := tpl.Synthesize(2048, &key)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rec.Key == nil || *rec.Key != key {
		t.Fatalf("expected key %q preserved, got %v", key, rec.Key)
	}
}

func TestSynthesizeFixedFields(t *testing.T) {
	tpl := NewSeededTemplate(1)
	rec, err := tpl.Synthesize(4096, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if rec.Type != "Hotel" {
		t.Errorf("Type = %q, want Hotel", rec.Type)
	}
	if rec.Name == "" || rec.Address == "" || rec.Email == "" {
		t.Error("expected non-empty fixed fields")
	}
	found := false
	for _, p := range priceLadder {
		if p == rec.Price {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Price %v not in price ladder", rec.Price)
	}
}

func TestGeneratePublicLikesBounds(t *testing.T) {
	tpl := NewSeededTemplate(3)
	for i := 0; i < 20; i++ {
		likes := tpl.generatePublicLikes()
		if len(likes) > 10 {
			t.Fatalf("generatePublicLikes returned %d entries, want <= 10", len(likes))
		}
	}
}

func sizeLabel(n int) string {
	return "size_" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
