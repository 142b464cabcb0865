// Package qdrant stores chunk vectors in one Qdrant collection and scopes
// every call with an organization_id payload filter.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"orgrag/internal/vectorstore"
)

const (
	DefaultCollection = "orgrag_chunks"

	keyOrganization = "organization_id"
	keyDocument     = "document_id"
	keyChunk        = "chunk_id"
	keyGeneration   = "generation"
	keyStaged       = "staged"
	keySequence     = "sequence"
	keyText         = "text"
	keyLanguage     = "language"
	metaPrefix      = "meta_"
)

// searchSlack fetches extra candidates so equal scores at the cut-off are
// ordered by SortHits rather than by the server.
const searchSlack = 8

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dims       int
}

type Store struct {
	client     *qdrant.Client
	collection string
	dims       int
}

// New connects and creates the collection and payload indexes when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Dims <= 0 {
		return nil, fmt.Errorf("qdrant store needs a positive dimension, got %d", cfg.Dims)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client for %s:%d failed: %w", cfg.Host, cfg.Port, err)
	}
	s := &Store{client: client, collection: cfg.Collection, dims: cfg.Dims}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return vectorstore.Unavailable("check collection", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("create qdrant collection failed: %w", err)
		}
	}

	for _, field := range []string{keyOrganization, keyDocument, keyChunk, keyGeneration} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("create qdrant index on %s failed: %w", field, err)
		}
	}
	return nil
}

// Upsert writes rec under a new generation and then drops any older point
// holding the same chunk id.
func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if err := rec.Validate(s.dims); err != nil {
		return err
	}
	gen := uuid.NewString()
	if err := s.upsert(ctx, []*qdrant.PointStruct{toPoint(rec, gen, false)}); err != nil {
		return vectorstore.Unavailable("upsert", err)
	}
	superseded := orgFilter(rec.OrganizationID)
	superseded.Must = append(superseded.Must, qdrant.NewMatch(keyChunk, rec.ChunkID))
	superseded.MustNot = append(superseded.MustNot, qdrant.NewMatch(keyGeneration, gen))
	if err := s.delete(ctx, superseded); err != nil {
		return vectorstore.Unavailable("upsert", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	if len(points) == 0 {
		return nil
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

func (s *Store) delete(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

// ReplaceDocument stages the new chunk set under a fresh generation that
// Search skips, removes every other generation of the document, then
// publishes the staged points. Readers see the old set, briefly nothing, then
// the new set, never a mix. After a failure only staged points or part of
// the old set remain, and DeleteDocument clears both.
func (s *Store) ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	gen := uuid.NewString()
	points := make([]*qdrant.PointStruct, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(s.dims); err != nil {
			return err
		}
		points[i] = toPoint(rec, gen, true)
	}
	if err := s.upsert(ctx, points); err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	if err := s.delete(ctx, supersededFilter(organizationID, documentID, gen)); err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	if len(points) == 0 {
		return nil
	}
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        map[string]*qdrant.Value{keyStaged: qdrant.NewValueBool(false)},
		PointsSelector: qdrant.NewPointsSelectorFilter(generationFilter(organizationID, documentID, gen)),
	})
	if err != nil {
		return vectorstore.Unavailable("replace document", err)
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
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         orgFilter(organizationID),
		Limit:          qdrant.PtrOf(uint64(k + searchSlack)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vectorstore.Unavailable("search", err)
	}
	hits := make([]vectorstore.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, fromPoint(p))
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Store) DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error) {
	filter := docFilter(organizationID, documentID)
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.delete(ctx, filter); err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// orgFilter pins the organization and hides staged points.
func orgFilter(organizationID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(keyOrganization, organizationID),
		},
		MustNot: []*qdrant.Condition{
			qdrant.NewMatchBool(keyStaged, true),
		},
	}
}

// docFilter matches every point of the document, staged or not.
func docFilter(organizationID, documentID string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch(keyOrganization, organizationID),
		qdrant.NewMatch(keyDocument, documentID),
	}}
}

func generationFilter(organizationID, documentID, gen string) *qdrant.Filter {
	f := docFilter(organizationID, documentID)
	f.Must = append(f.Must, qdrant.NewMatch(keyGeneration, gen))
	return f
}

// supersededFilter matches the document's points from any other generation.
func supersededFilter(organizationID, documentID, gen string) *qdrant.Filter {
	f := docFilter(organizationID, documentID)
	f.MustNot = append(f.MustNot, qdrant.NewMatch(keyGeneration, gen))
	return f
}

// pointID is unique per chunk and generation, so a staged point never
// overwrites the live one.
func pointID(chunkID, gen string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(gen+"/"+chunkID)).String()
}

func toPoint(rec vectorstore.Record, gen string, staged bool) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		keyOrganization: qdrant.NewValueString(rec.OrganizationID),
		keyDocument:     qdrant.NewValueString(rec.DocumentID),
		keyChunk:        qdrant.NewValueString(rec.ChunkID),
		keyGeneration:   qdrant.NewValueString(gen),
		keyStaged:       qdrant.NewValueBool(staged),
		keySequence:     qdrant.NewValueInt(int64(rec.Sequence)),
		keyText:         qdrant.NewValueString(rec.Text),
		keyLanguage:     qdrant.NewValueString(rec.Language),
	}
	for k, v := range rec.Metadata {
		payload[metaPrefix+k] = qdrant.NewValueString(v)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(rec.ChunkID, gen)),
		Vectors: qdrant.NewVectors(rec.Vector...),
		Payload: payload,
	}
}

func fromPoint(p *qdrant.ScoredPoint) vectorstore.Hit {
	h := vectorstore.Hit{Score: float64(p.GetScore())}
	payload := p.GetPayload()
	h.ChunkID = payload[keyChunk].GetStringValue()
	h.OrganizationID = payload[keyOrganization].GetStringValue()
	h.DocumentID = payload[keyDocument].GetStringValue()
	h.Sequence = int(payload[keySequence].GetIntegerValue())
	h.Text = payload[keyText].GetStringValue()
	h.Language = payload[keyLanguage].GetStringValue()
	for k, v := range payload {
		if name, ok := strings.CutPrefix(k, metaPrefix); ok {
			if h.Metadata == nil {
				h.Metadata = make(map[string]string)
			}
			h.Metadata[name] = v.GetStringValue()
		}
	}
	return h
}
