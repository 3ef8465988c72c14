package store

import (
	"context"
	"testing"
)

func TestStoreAndSearchMemories(t *testing.T) {
	s := openTestStore(t)
	s.SetEmbedder(&fakeEmbedder{vectors: map[string][]float32{
		"the user likes tidal music": {1, 0, 0},
		"the user fears deep water":  {0, 1, 0},
		"what music does she like":   {0.9, 0.1, 0},
	}})
	ctx := context.Background()

	for _, text := range []string{"the user likes tidal music", "the user fears deep water"} {
		if err := s.StoreMemory(ctx, text, "ch-1", "xp-1"); err != nil {
			t.Fatalf("store %q: %v", text, err)
		}
	}

	hits, err := s.SearchMemories(ctx, "what music does she like", 1, "ch-1", "xp-1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Content != "the user likes tidal music" {
		t.Errorf("best hit = %q", hits[0].Content)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want positive", hits[0].Score)
	}
}

func TestSearchMemories_PartitionIsolation(t *testing.T) {
	s := openTestStore(t)
	s.SetEmbedder(&fakeEmbedder{})
	ctx := context.Background()

	if err := s.StoreMemory(ctx, "fact about partition a", "ch-a", "xp-1"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.StoreMemory(ctx, "fact about partition b", "ch-b", "xp-1"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.StoreMemory(ctx, "fact for another bot", "ch-a", "xp-2"); err != nil {
		t.Fatalf("store: %v", err)
	}

	hits, err := s.SearchMemories(ctx, "fact", 10, "ch-a", "xp-1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want exactly the one in the partition", len(hits))
	}
	if hits[0].Content != "fact about partition a" {
		t.Errorf("hit = %q", hits[0].Content)
	}
}

func TestSearchMemories_ClampsK(t *testing.T) {
	s := openTestStore(t)
	s.SetEmbedder(&fakeEmbedder{})
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if err := s.StoreMemory(ctx, "memory", "ch-1", "xp-1"); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	hits, err := s.SearchMemories(ctx, "memory", 100, "ch-1", "xp-1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) > 10 {
		t.Errorf("k=100 returned %d hits, cap is 10", len(hits))
	}

	hits, err = s.SearchMemories(ctx, "memory", 0, "ch-1", "xp-1")
	if err != nil {
		t.Fatalf("search default k: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("k=0 returned %d hits, default is 3", len(hits))
	}
}

func TestStoreMemory_EmbedFailureSurfaces(t *testing.T) {
	s := openTestStore(t)
	s.SetEmbedder(&fakeEmbedder{fail: true})
	ctx := context.Background()

	if err := s.StoreMemory(ctx, "will not persist", "ch-1", "xp-1"); err == nil {
		t.Fatal("expected error when embedding fails")
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("failed write left %d rows", count)
	}
}

func TestStoreMemory_Validation(t *testing.T) {
	s := openTestStore(t)
	s.SetEmbedder(&fakeEmbedder{})
	ctx := context.Background()

	if err := s.StoreMemory(ctx, "  ", "ch-1", "xp-1"); err == nil {
		t.Error("expected error for empty text")
	}
	if err := s.StoreMemory(ctx, "text", "", "xp-1"); err == nil {
		t.Error("expected error for empty character id")
	}
}
