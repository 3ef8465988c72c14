package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// LoreEntry is one worldbook document before indexing. Content is chunked
// at index time; the metadata is replicated onto every chunk row.
type LoreEntry struct {
	Scope       string   `yaml:"scope"`
	Location    string   `yaml:"location"`
	Species     string   `yaml:"species"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Title       string   `yaml:"title"`
	Tags        []string `yaml:"tags"`
	Content     string   `yaml:"content"`
}

// LoreHit is one worldbook search result.
type LoreHit struct {
	Content     string
	Score       float64
	Scope       string
	Location    string
	Species     string
	Category    string
	Subcategory string
	Title       string
	Tags        []string
}

// LoreFilter narrows a worldbook search. Empty fields match everything.
type LoreFilter struct {
	Location string
	Species  string
	Category string
}

// IndexLore chunks and persists a worldbook entry, returning the number of
// rows written. A chunk whose embedding fails is still written, without a
// vector; BackfillEmbeddings picks it up later, so lore is never lost to a
// transient embedding outage.
func (s *Store) IndexLore(ctx context.Context, entry LoreEntry) (int, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return 0, fmt.Errorf("index lore: empty content")
	}

	chunks := s.splitText(entry.Content)
	tags := strings.Join(entry.Tags, ",")

	indexed := 0
	for _, c := range chunks {
		var blob []byte
		if s.embedder != nil {
			if vec, err := s.embedder.Embed(ctx, c); err == nil {
				if b, encErr := EncodeVector(vec); encErr == nil {
					blob = b
				}
			}
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO worldbook (scope, location, species, category, subcategory, title, tags, content, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.Scope, entry.Location, entry.Species, entry.Category,
			entry.Subcategory, entry.Title, tags, c, blob)
		if err != nil {
			return indexed, fmt.Errorf("index lore: insert chunk: %w", err)
		}
		indexed++
	}
	return indexed, nil
}

// SearchLore returns the most similar worldbook chunks, best first.
// Vectorless rows (failed embeddings awaiting backfill) are not candidates.
func (s *Store) SearchLore(ctx context.Context, query string, limit int, filter LoreFilter) ([]LoreHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search lore: empty query")
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("search lore: no embedder configured")
	}
	limit = clampTopK(limit)

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search lore: embed query: %w", err)
	}

	q := `SELECT content, embedding, scope, location, species, category, subcategory, title, tags
		FROM worldbook WHERE embedding IS NOT NULL`
	var args []any
	if filter.Location != "" {
		q += " AND location = ?"
		args = append(args, filter.Location)
	}
	if filter.Species != "" {
		q += " AND species = ?"
		args = append(args, filter.Species)
	}
	if filter.Category != "" {
		q += " AND category = ?"
		args = append(args, filter.Category)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search lore: %w", err)
	}
	defer rows.Close()

	var hits []LoreHit
	for rows.Next() {
		var h LoreHit
		var blob []byte
		var tags string
		if err := rows.Scan(&h.Content, &blob, &h.Scope, &h.Location, &h.Species,
			&h.Category, &h.Subcategory, &h.Title, &tags); err != nil {
			return nil, fmt.Errorf("search lore: scan: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			continue
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		h.Score = score
		if tags != "" {
			h.Tags = strings.Split(tags, ",")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search lore: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
