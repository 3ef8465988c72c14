package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xenolinkco/xenochat/internal/chunk"
)

// Embedder turns text into vectors. Satisfied by the genai engine and by
// test fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	minTopK     = 1
	maxTopK     = 10
	defaultTopK = 3
)

// SetEmbedder attaches the embedding engine used by memory and worldbook
// writes and searches. Without one, writes fail and searches return nothing.
func (s *Store) SetEmbedder(e Embedder) {
	s.embedder = e
}

// SetSplitter attaches the chunker used when indexing long texts.
func (s *Store) SetSplitter(sp *chunk.Splitter) {
	s.splitter = sp
}

func (s *Store) splitText(text string) []string {
	if s.splitter == nil {
		return []string{strings.TrimSpace(text)}
	}
	return s.splitter.Split(text)
}

// MemoryHit is one search result, most relevant first.
type MemoryHit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// StoreMemory embeds text and persists it under the (characterID,
// xenoprofileID) partition, one row per chunk. Any failure is returned to
// the caller; a memory the user was told about must actually exist.
func (s *Store) StoreMemory(ctx context.Context, text, characterID, xenoprofileID string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("store memory: empty text")
	}
	if strings.TrimSpace(characterID) == "" || strings.TrimSpace(xenoprofileID) == "" {
		return fmt.Errorf("store memory: empty partition id")
	}
	if s.embedder == nil {
		return fmt.Errorf("store memory: no embedder configured")
	}

	chunks := s.splitText(text)
	if len(chunks) == 0 {
		return fmt.Errorf("store memory: empty text")
	}

	vecs, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("store memory: embed: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("store memory: embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store memory: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		blob, err := EncodeVector(vecs[i])
		if err != nil {
			return fmt.Errorf("store memory: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memories (character_id, xenoprofile_id, content, embedding)
			VALUES (?, ?, ?, ?)`, characterID, xenoprofileID, c, blob); err != nil {
			return fmt.Errorf("store memory: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store memory: commit: %w", err)
	}
	return nil
}

// SearchMemories returns the k most similar memories in the exact
// (characterID, xenoprofileID) partition, best first. k outside [1, 10]
// is clamped; k <= 0 means the default of 3.
func (s *Store) SearchMemories(ctx context.Context, query string, k int, characterID, xenoprofileID string) ([]MemoryHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search memories: empty query")
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("search memories: no embedder configured")
	}
	k = clampTopK(k)

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search memories: embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, embedding FROM memories
		WHERE character_id = ? AND xenoprofile_id = ? AND embedding IS NOT NULL`,
		characterID, xenoprofileID)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	hits, err := rankRows(rows, queryVec)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func clampTopK(k int) int {
	if k <= 0 {
		return defaultTopK
	}
	if k < minTopK {
		return minTopK
	}
	if k > maxTopK {
		return maxTopK
	}
	return k
}

type vectorRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// rankRows scores (content, embedding) rows against the query vector and
// returns them best first. Undecodable or mismatched rows are skipped so
// one corrupt blob cannot take down retrieval.
func rankRows(rows vectorRows, queryVec []float32) ([]MemoryHit, error) {
	var hits []MemoryHit
	for rows.Next() {
		var content string
		var blob []byte
		if err := rows.Scan(&content, &blob); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			continue
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		hits = append(hits, MemoryHit{Content: content, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}
