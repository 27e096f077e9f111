package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/pkg/orders"
)

func TestSaveAndLoadCheckpoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := Checkpoint{
		Slot: slot,
		Markets: map[string]MarketSnapshot{
			"grid": {Offers: []orders.Offer{{ID: "o1", Price: decimal.NewFromInt(10), Energy: decimal.NewFromInt(1)}}},
		},
		Bills: map[string]decimal.Decimal{"house-1": decimal.NewFromInt(42)},
	}

	if err := s.Save("slot-1", cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load("slot-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil")
	}
	if !loaded.Slot.Equal(slot) {
		t.Errorf("Slot = %v, want %v", loaded.Slot, slot)
	}
	if !loaded.Bills["house-1"].Equal(decimal.NewFromInt(42)) {
		t.Errorf("Bills[house-1] = %v, want 42", loaded.Bills["house-1"])
	}
	if len(loaded.Markets["grid"].Offers) != 1 {
		t.Errorf("len(Markets[grid].Offers) = %d, want 1", len(loaded.Markets["grid"].Offers))
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load("nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing checkpoint, got %+v", loaded)
	}
}

func TestSaveCheckpointOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	cp1 := Checkpoint{Bills: map[string]decimal.Decimal{"house-1": decimal.NewFromInt(10)}}
	cp2 := Checkpoint{Bills: map[string]decimal.Decimal{"house-1": decimal.NewFromInt(20)}}

	_ = s.Save("slot-1", cp1)
	_ = s.Save("slot-1", cp2)

	loaded, err := s.Load("slot-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Bills["house-1"].Equal(decimal.NewFromInt(20)) {
		t.Errorf("Bills[house-1] = %v, want 20 (latest save)", loaded.Bills["house-1"])
	}
}
