package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row has the requested key.
var ErrNotFound = errors.New("store: model not found")

// Record is one stored model.
type Record struct {
	Key     string
	Type    string
	IsLink  bool
	FromKey string
	ToKey   string
	OrgUnit string
	Body    []byte
	Seq     int64
}

// Direction selects which endpoint of a link matches a node.
type Direction int

const (
	// Outgoing links start at the node.
	Outgoing Direction = iota
	// Incoming links end at the node.
	Incoming
)

// Put inserts or replaces a record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (key, type, is_link, from_key, to_key, org_unit, body, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			type = excluded.type,
			is_link = excluded.is_link,
			from_key = excluded.from_key,
			to_key = excluded.to_key,
			org_unit = excluded.org_unit,
			body = excluded.body,
			seq = excluded.seq
	`,
		rec.Key,
		rec.Type,
		rec.IsLink,
		nullString(rec.FromKey),
		nullString(rec.ToKey),
		nullString(rec.OrgUnit),
		string(rec.Body),
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Key, err)
	}
	return nil
}

// Get returns the record with key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, type, is_link, from_key, to_key, org_unit, body, seq
		FROM models
		WHERE key = ?
	`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	return rec, nil
}

// Delete removes the record with key and every link that starts or ends
// at it, in one transaction. It returns the number of records removed
// for key itself (0 or 1) and the number of cascaded links.
func (s *Store) Delete(ctx context.Context, key string) (deleted, cascaded int64, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM models
			WHERE is_link = 1 AND key != ? AND (from_key = ? OR to_key = ?)
		`, key, key, key)
		if err != nil {
			return fmt.Errorf("delete links of %s: %w", key, err)
		}
		if cascaded, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM models WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return deleted, cascaded, nil
}

// Select runs a compiled query whose select list is "key, type, body"
// and returns the matching records.
func (s *Store) Select(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select models: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec  Record
			body string
		)
		if err := rows.Scan(&rec.Key, &rec.Type, &body); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		rec.Body = []byte(body)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return records, nil
}

// Links returns the links of type linkType that start (Outgoing) or end
// (Incoming) at key, ordered by key.
func (s *Store) Links(ctx context.Context, key, linkType string, dir Direction) ([]Record, error) {
	column := "from_key"
	if dir == Incoming {
		column = "to_key"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, type, is_link, from_key, to_key, org_unit, body, seq
		FROM models
		WHERE is_link = 1 AND `+column+` = ? AND type = ?
		ORDER BY key ASC COLLATE BINARY
	`, key, linkType)
	if err != nil {
		return nil, fmt.Errorf("query links of %s: %w", key, err)
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
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return records, nil
}

// Count returns the number of stored models of a type.
func (s *Store) Count(ctx context.Context, typeName string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE type = ?`, typeName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", typeName, err)
	}
	return n, nil
}

// MaxSeq returns the highest write sequence number, 0 for an empty store.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM models`).Scan(&n); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return n.Int64, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec           Record
		from, to, org sql.NullString
		body          string
	)
	if err := row.Scan(&rec.Key, &rec.Type, &rec.IsLink, &from, &to, &org, &body, &rec.Seq); err != nil {
		return Record{}, err
	}
	rec.FromKey, rec.ToKey, rec.OrgUnit = from.String, to.String, org.String
	rec.Body = []byte(body)
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
