// Package sqlite is a persistent local vector store backed by a single SQLite file.
// Similarity is computed in Go over the rows that pass the metadata filter.
package sqlite

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"finqa/internal/domain"
	"finqa/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_entries_ticker
	ON entries (collection, json_extract(metadata, '$.ticker'));
`

// Storage keeps one named collection in a SQLite database.
type Storage struct {
	db         *sql.DB
	collection string
}

type Config struct {
	Path       string
	Collection string
}

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Storage, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Storage{db: db, collection: cfg.Collection}, nil
}

func (s *Storage) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, s.collection)
	}
	return dim, err
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	_, err := s.dimension(ctx)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create makes the collection empty with the given dimension, dropping any entries
// stored under the same name.
func (s *Storage) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrInvalidInput, dimension)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Entries of a previous collection with the same name never outlive it.
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension`,
		s.collection, dimension)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return tx.Commit()
}

// Ready is true as soon as the collection row exists.
func (s *Storage) Ready(ctx context.Context) (bool, error) { return s.Exists(ctx) }

func (s *Storage) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (collection, id, vector, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET vector = excluded.vector, metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d values, collection expects %d", domain.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, e.ID, encodeVector(e.Vector), string(meta)); err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	dim, err := s.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection expects %d", domain.ErrDimensionMismatch, len(vector), dim)
	}
	if topK <= 0 {
		topK = 5
	}

	where, args, ok := filterClause(filter)
	if !ok {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, metadata FROM entries WHERE collection = ?`+where,
		append([]any{s.collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			id   string
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, err
		}
		m := domain.Match{ID: id}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
		m.Score = vectorstore.Cosine(decodeVector(blob), vector)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b domain.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// filterClause turns the filter into json_extract conditions. ok is false when the
// filter names a field no entry can carry.
func filterClause(filter domain.Filter) (string, []any, bool) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if _, known := (domain.Metadata{}).Field(k); !known {
			return "", nil, false
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		b.WriteString(` AND json_extract(metadata, ?) = ?`)
		args = append(args, "$."+k, filter[k])
	}
	return b.String(), args, true
}

func encodeVector(v []float32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
	return v
}
