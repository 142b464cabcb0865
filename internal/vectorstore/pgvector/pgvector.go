// Package pgvector stores chunk vectors in PostgreSQL with the pgvector
// extension and ranks them with the cosine distance operator.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"orgrag/internal/vectorstore"
)

const DefaultTable = "rag_chunk_vectors"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Config struct {
	Table string
	Dims  int
	// HNSW adds an approximate index; exact scans are used otherwise.
	HNSW bool
}

type Store struct {
	db    *sql.DB
	table string
	dims  int
}

// New creates the extension, table and indexes when missing.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", cfg.Table)
	}
	if cfg.Dims <= 0 {
		return nil, fmt.Errorf("pgvector store needs a positive dimension, got %d", cfg.Dims)
	}
	s := &Store{db: db, table: cfg.Table, dims: cfg.Dims}
	if err := s.migrate(ctx, cfg.HNSW); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, hnsw bool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			organization_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_org_doc_idx ON %s (organization_id, document_id)`, s.table, s.table),
	}
	if hnsw {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table))
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate pgvector store failed: %w", err)
		}
	}
	return nil
}

func (s *Store) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (id, organization_id, document_id, sequence, content, language, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			document_id = EXCLUDED.document_id,
			sequence = EXCLUDED.sequence,
			content = EXCLUDED.content,
			language = EXCLUDED.language,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) write(ctx context.Context, db execer, rec vectorstore.Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal chunk metadata failed: %w", err)
	}
	_, err = db.ExecContext(ctx, s.upsertSQL(),
		rec.ChunkID,
		rec.OrganizationID,
		rec.DocumentID,
		rec.Sequence,
		rec.Text,
		rec.Language,
		meta,
		pgvector.NewVector(rec.Vector),
	)
	return err
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if err := rec.Validate(s.dims); err != nil {
		return err
	}
	if err := s.write(ctx, s.db, rec); err != nil {
		return vectorstore.Unavailable("upsert", err)
	}
	return nil
}

// ReplaceDocument deletes and inserts inside one transaction, so readers see
// either the previous chunk set or the new one.
func (s *Store) ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	for _, rec := range recs {
		if err := rec.Validate(s.dims); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := fmt.Sprintf(`DELETE FROM %s WHERE organization_id = $1 AND document_id = $2`, s.table)
	if _, err := tx.ExecContext(ctx, del, organizationID, documentID); err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	for _, rec := range recs {
		if err := s.write(ctx, tx, rec); err != nil {
			return vectorstore.Unavailable("replace document", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	return nil
}

// Search orders by distance and then by the same tie-break as SortHits.
func (s *Store) Search(ctx context.Context, organizationID string, query []float32, k int) ([]vectorstore.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dims {
		return nil, vectorstore.ErrDimensionMismatch
	}

	q := fmt.Sprintf(`SELECT id, organization_id, document_id, sequence, content, language, metadata,
			1 - (embedding <=> $2) AS score
		FROM %s
		WHERE organization_id = $1
		ORDER BY embedding <=> $2, sequence, document_id, id
		LIMIT $3`, s.table)
	rows, err := s.db.QueryContext(ctx, q, organizationID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, vectorstore.Unavailable("search", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			h    vectorstore.Hit
			meta []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.OrganizationID, &h.DocumentID, &h.Sequence, &h.Text, &h.Language, &meta, &h.Score); err != nil {
			return nil, vectorstore.Unavailable("search", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &h.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata failed: %w", err)
			}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.Unavailable("search", err)
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Store) DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error) {
	del := fmt.Sprintf(`DELETE FROM %s WHERE organization_id = $1 AND document_id = $2`, s.table)
	res, err := s.db.ExecContext(ctx, del, organizationID, documentID)
	if err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	return int(n), nil
}

// DeleteOrganization removes every chunk of the listed organizations.
func (s *Store) DeleteOrganization(ctx context.Context, organizationIDs ...string) (int, error) {
	del := fmt.Sprintf(`DELETE FROM %s WHERE organization_id = ANY($1)`, s.table)
	res, err := s.db.ExecContext(ctx, del, pq.Array(organizationIDs))
	if err != nil {
		return 0, vectorstore.Unavailable("delete organization", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close leaves the shared *sql.DB to its owner.
func (s *Store) Close() error { return nil }
