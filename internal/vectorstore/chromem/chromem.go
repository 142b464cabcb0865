// Package chromem is an embedded vector store on chromem-go with one
// collection per organization, optionally persisted to disk.
package chromem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"orgrag/internal/vectorstore"
)

const (
	keyOrganization = "organization_id"
	keyDocument     = "document_id"
	keySequence     = "sequence"
	keyLanguage     = "language"
	metaPrefix      = "meta_"

	searchSlack = 8
)

type Config struct {
	// PersistPath is a directory; empty keeps everything in memory.
	PersistPath string
	Compress    bool
	Dims        int
}

type Store struct {
	db   *chromem.DB
	dims int

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func New(cfg Config) (*Store, error) {
	if cfg.Dims <= 0 {
		return nil, fmt.Errorf("chromem store needs a positive dimension, got %d", cfg.Dims)
	}
	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("create chromem directory failed: %w", err)
		}
		db, err = chromem.NewPersistentDB(filepath.Clean(cfg.PersistPath), cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db failed: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Store{db: db, dims: cfg.Dims, locks: make(map[string]*sync.RWMutex)}, nil
}

// precomputed refuses to embed; every vector arrives from the embedding service.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store only accepts precomputed embeddings")
}

// collectionName hashes the organization id so any id is a valid name.
func collectionName(organizationID string) string {
	sum := sha256.Sum256([]byte(organizationID))
	return "org_" + hex.EncodeToString(sum[:16])
}

func (s *Store) lock(organizationID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[organizationID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[organizationID] = l
	}
	return l
}

func (s *Store) collection(organizationID string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(collectionName(organizationID), map[string]string{keyOrganization: organizationID}, precomputed)
	if err != nil {
		return nil, vectorstore.Unavailable("open collection", err)
	}
	return col, nil
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if err := rec.Validate(s.dims); err != nil {
		return err
	}
	l := s.lock(rec.OrganizationID)
	l.Lock()
	defer l.Unlock()

	col, err := s.collection(rec.OrganizationID)
	if err != nil {
		return err
	}
	if err := col.AddDocument(ctx, toDocument(rec)); err != nil {
		return vectorstore.Unavailable("upsert", err)
	}
	return nil
}

// ReplaceDocument holds the organization's write lock across the swap, so a
// concurrent search sees either the old chunk set or the new one.
func (s *Store) ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	docs := make([]chromem.Document, len(recs))
	keep := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(s.dims); err != nil {
			return err
		}
		docs[i] = toDocument(rec)
		keep[rec.ChunkID] = struct{}{}
	}

	l := s.lock(organizationID)
	l.Lock()
	defer l.Unlock()

	col, err := s.collection(organizationID)
	if err != nil {
		return err
	}
	old, err := s.documentChunkIDs(ctx, col, documentID)
	if err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return vectorstore.Unavailable("replace document", err)
		}
	}
	var stale []string
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := col.Delete(ctx, nil, nil, stale...); err != nil {
			return vectorstore.Unavailable("replace document", err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, organizationID string, query []float32, k int) ([]vectorstore.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dims {
		return nil, vectorstore.ErrDimensionMismatch
	}
	l := s.lock(organizationID)
	l.RLock()
	defer l.RUnlock()

	col := s.db.GetCollection(collectionName(organizationID), precomputed)
	if col == nil || col.Count() == 0 {
		return nil, nil
	}
	n := min(k+searchSlack, col.Count())
	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, vectorstore.Unavailable("search", err)
	}
	hits := make([]vectorstore.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, fromResult(r))
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Store) DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error) {
	l := s.lock(organizationID)
	l.Lock()
	defer l.Unlock()

	col := s.db.GetCollection(collectionName(organizationID), precomputed)
	if col == nil {
		return 0, nil
	}
	ids, err := s.documentChunkIDs(ctx, col, documentID)
	if err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	return len(ids), nil
}

func (s *Store) Close() error { return nil }

// documentChunkIDs lists a document's chunk ids with a metadata-filtered
// query; the probe vector only has to have the right dimension.
func (s *Store) documentChunkIDs(ctx context.Context, col *chromem.Collection, documentID string) ([]string, error) {
	total := col.Count()
	if total == 0 {
		return nil, nil
	}
	probe := make([]float32, s.dims)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, total, map[string]string{keyDocument: documentID}, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

func toDocument(rec vectorstore.Record) chromem.Document {
	meta := map[string]string{
		keyOrganization: rec.OrganizationID,
		keyDocument:     rec.DocumentID,
		keySequence:     strconv.Itoa(rec.Sequence),
		keyLanguage:     rec.Language,
	}
	for k, v := range rec.Metadata {
		meta[metaPrefix+k] = v
	}
	return chromem.Document{
		ID:        rec.ChunkID,
		Metadata:  meta,
		Embedding: rec.Vector,
		Content:   rec.Text,
	}
}

func fromResult(r chromem.Result) vectorstore.Hit {
	h := vectorstore.Hit{Score: float64(r.Similarity)}
	h.ChunkID = r.ID
	h.Text = r.Content
	h.OrganizationID = r.Metadata[keyOrganization]
	h.DocumentID = r.Metadata[keyDocument]
	h.Sequence, _ = strconv.Atoi(r.Metadata[keySequence])
	h.Language = r.Metadata[keyLanguage]
	for k, v := range r.Metadata {
		if name, ok := strings.CutPrefix(k, metaPrefix); ok {
			if h.Metadata == nil {
				h.Metadata = make(map[string]string)
			}
			h.Metadata[name] = v
		}
	}
	return h
}
