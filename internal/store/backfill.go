package store

import (
	"context"
	"fmt"
)

// BackfillEmbeddings embeds rows that were persisted without a vector, up to
// batchSize per table. Idempotent; safe to run on a schedule. Returns the
// number of rows repaired.
func (s *Store) BackfillEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("backfill embeddings: no embedder configured")
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	total := 0
	for _, table := range []string{"worldbook", "memories"} {
		n, err := s.backfillTable(ctx, table, batchSize)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) backfillTable(ctx context.Context, table string, batchSize int) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM `+table+` WHERE embedding IS NULL LIMIT ?`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("backfill %s: select: %w", table, err)
	}

	type pending struct {
		id      int64
		content string
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("backfill %s: scan: %w", table, err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("backfill %s: iterate: %w", table, err)
	}
	rows.Close()

	repaired := 0
	for _, p := range batch {
		vec, err := s.embedder.Embed(ctx, p.content)
		if err != nil {
			// leave the row for the next run
			return repaired, fmt.Errorf("backfill %s: embed row %d: %w", table, p.id, err)
		}
		blob, err := EncodeVector(vec)
		if err != nil {
			return repaired, fmt.Errorf("backfill %s: encode row %d: %w", table, p.id, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE `+table+` SET embedding = ? WHERE id = ?`, blob, p.id); err != nil {
			return repaired, fmt.Errorf("backfill %s: update row %d: %w", table, p.id, err)
		}
		repaired++
	}
	return repaired, nil
}
