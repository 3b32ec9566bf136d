package store

import (
	"context"
	"fmt"
)

// Since returns every record written after seq, in write order. Since(ctx, 0)
// exports the whole store.
func (s *Store) Since(ctx context.Context, seq int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, type, is_link, from_key, to_key, org_unit, body, seq
		FROM models
		WHERE seq > ?
		ORDER BY seq ASC
	`, seq)
	if err != nil {
		return nil, fmt.Errorf("read records since %d: %w", seq, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// TypeCount is the number of stored models of one type.
type TypeCount struct {
	Type   string `json:"type"`
	IsLink bool   `json:"is_link"`
	Count  int64  `json:"count"`
}

// Types returns the stored model count per type, ordered by type name.
func (s *Store) Types(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, MAX(is_link), COUNT(*)
		FROM models
		GROUP BY type
		ORDER BY type ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("count types: %w", err)
	}
	defer rows.Close()

	out := []TypeCount{}
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.IsLink, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type counts: %w", err)
	}
	return out, nil
}
