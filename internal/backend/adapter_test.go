package backend

import (
	"errors"
	"testing"
)

func TestCapabilitiesSupports(t *testing.T) {
	c := Capabilities{Insert: true, Update: false, Delete: true}
	if !c.Supports(OpInsert) {
		t.Error("expected Insert supported")
	}
	if c.Supports(OpUpdate) {
		t.Error("expected Update unsupported")
	}
	if !c.Supports(OpDelete) {
		t.Error("expected Delete supported")
	}
}

func TestCapabilitiesEnabled(t *testing.T) {
	c := Capabilities{Insert: true, Update: true, Delete: false}
	ops := c.Enabled()
	if len(ops) != 2 {
		t.Fatalf("got %d ops, want 2", len(ops))
	}
	if ops[0] != OpInsert || ops[1] != OpUpdate {
		t.Errorf("unexpected op order: %v", ops)
	}
}

func TestEnabledEmpty(t *testing.T) {
	c := Capabilities{}
	if len(c.Enabled()) != 0 {
		t.Error("expected no enabled ops for zero-value Capabilities")
	}
}

func TestErrEmptyContainerIs(t *testing.T) {
	wrapped := errors.New("backend: container is empty")
	if errors.Is(wrapped, ErrEmptyContainer) {
		t.Error("unrelated error should not match ErrEmptyContainer")
	}
	if !errors.Is(ErrEmptyContainer, ErrEmptyContainer) {
		t.Error("ErrEmptyContainer should match itself")
	}
}
