// Package sqlite keeps a queryable index of emitted tuples in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/sensorsync/internal/domain"
	"github.com/bft-labs/sensorsync/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// IndexedTuple is one row of the index with its members' metadata.
type IndexedTuple struct {
	ID        string
	Reference int64
	Spread    time.Duration
	Members   []IndexedMember
}

// IndexedMember describes one member of an indexed tuple. Payloads are not stored.
type IndexedMember struct {
	Stream    domain.StreamID
	Timestamp int64
	Kind      domain.PayloadKind
	Size      int
}

// Index implements ports.Sink by recording tuple metadata.
type Index struct {
	db     *sql.DB
	logger ports.Logger
}

// Open opens (or creates) the index database at path.
func Open(path string, logger ports.Logger) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	logger.Info("tuple index ready", ports.String("path", path))
	return &Index{db: db, logger: logger}, nil
}

// Accept inserts the tuple and its members in one transaction.
func (x *Index) Accept(ctx context.Context, tuple *domain.AlignedTuple) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tuples (id, reference, spread_ns, created_at) VALUES (?, ?, ?, ?)`,
		tuple.ID, tuple.Reference, int64(tuple.Spread), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert tuple %s: %w", tuple.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tuple_members (tuple_id, position, stream, stamp, kind, size) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare member insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range tuple.Messages {
		kind, size := describe(m.Payload)
		if _, err := stmt.ExecContext(ctx, tuple.ID, i, string(m.Stream), m.Timestamp, string(kind), size); err != nil {
			return fmt.Errorf("insert member %s: %w", m.Stream, err)
		}
	}

	return tx.Commit()
}

func describe(p domain.Payload) (domain.PayloadKind, int) {
	switch v := p.(type) {
	case nil:
		return domain.KindRaw, 0
	case domain.Image:
		return v.Kind(), len(v.Data)
	case domain.PointCloud:
		return v.Kind(), len(v.Data)
	case domain.Raw:
		return v.Kind(), len(v)
	default:
		return p.Kind(), 0
	}
}

// Count returns the number of indexed tuples.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tuples`).Scan(&n)
	return n, err
}

// Range returns tuples whose reference lies in [from, to], ordered by reference.
func (x *Index) Range(ctx context.Context, from, to int64) ([]IndexedTuple, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT t.id, t.reference, t.spread_ns, m.stream, m.stamp, m.kind, m.size
		FROM tuples t JOIN tuple_members m ON m.tuple_id = t.id
		WHERE t.reference BETWEEN ? AND ?
		ORDER BY t.reference, t.id, m.position`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	var out []IndexedTuple
	for rows.Next() {
		var (
			id     string
			ref    int64
			spread int64
			m      IndexedMember
			stream string
			kind   string
		)
		if err := rows.Scan(&id, &ref, &spread, &stream, &m.Timestamp, &kind, &m.Size); err != nil {
			return nil, err
		}
		m.Stream = domain.StreamID(stream)
		m.Kind = domain.PayloadKind(kind)

		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, IndexedTuple{ID: id, Reference: ref, Spread: time.Duration(spread)})
		}
		last := &out[len(out)-1]
		last.Members = append(last.Members, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
