// Package isolation enforces organization scoping on every vector store call.
//
// Engines only accept a *Guard, never a raw vectorstore.Store, so there is no
// code path that reaches the index without an organization id. A missing or
// mismatched id is a programmer error: it is logged at ERROR level and
// returned as a *Violation. Nothing is filtered out silently.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orgrag/internal/vectorstore"
)

var ErrViolation = errors.New("organization isolation violation")

type Violation struct {
	Op       string
	Expected string
	Got      string
	ChunkID  string
}

func (v *Violation) Error() string {
	if v.Expected == "" {
		return fmt.Sprintf("%s: %s called without organization id", ErrViolation, v.Op)
	}
	return fmt.Sprintf("%s: %s for organization %q touched chunk %q of organization %q", ErrViolation, v.Op, v.Expected, v.ChunkID, v.Got)
}

func (v *Violation) Unwrap() error { return ErrViolation }

// ViolationObserver is notified of every violation, e.g. to count it.
type ViolationObserver func(op string)

type Guard struct {
	store    vectorstore.Store
	logger   *slog.Logger
	observer ViolationObserver
}

func NewGuard(store vectorstore.Store, logger *slog.Logger, observer ViolationObserver) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, logger: logger, observer: observer}
}

func (g *Guard) Upsert(ctx context.Context, organizationID string, rec vectorstore.Record) error {
	if err := g.requireOrg("upsert", organizationID); err != nil {
		return err
	}
	if err := g.checkRecord("upsert", organizationID, rec); err != nil {
		return err
	}
	return g.store.Upsert(ctx, rec)
}

func (g *Guard) ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	if err := g.requireOrg("replace_document", organizationID); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := g.checkRecord("replace_document", organizationID, rec); err != nil {
			return err
		}
		if rec.DocumentID != documentID {
			return fmt.Errorf("%w: record %s belongs to document %s, not %s", vectorstore.ErrInvalidRecord, rec.ChunkID, rec.DocumentID, documentID)
		}
	}
	return g.store.ReplaceDocument(ctx, organizationID, documentID, recs)
}

// Search re-checks every hit; one foreign hit fails the whole call.
func (g *Guard) Search(ctx context.Context, organizationID string, query []float32, k int) ([]vectorstore.Hit, error) {
	if err := g.requireOrg("search", organizationID); err != nil {
		return nil, err
	}
	hits, err := g.store.Search(ctx, organizationID, query, k)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		if h.OrganizationID != organizationID {
			return nil, g.violation(&Violation{Op: "search", Expected: organizationID, Got: h.OrganizationID, ChunkID: h.ChunkID})
		}
	}
	return hits, nil
}

func (g *Guard) DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error) {
	if err := g.requireOrg("delete_document", organizationID); err != nil {
		return 0, err
	}
	if documentID == "" {
		return 0, fmt.Errorf("%w: document id is required", vectorstore.ErrInvalidRecord)
	}
	return g.store.DeleteDocument(ctx, organizationID, documentID)
}

func (g *Guard) Close() error {
	return g.store.Close()
}

func (g *Guard) requireOrg(op, organizationID string) error {
	if organizationID == "" {
		return g.violation(&Violation{Op: op})
	}
	return nil
}

func (g *Guard) checkRecord(op, organizationID string, rec vectorstore.Record) error {
	if rec.OrganizationID != organizationID {
		return g.violation(&Violation{Op: op, Expected: organizationID, Got: rec.OrganizationID, ChunkID: rec.ChunkID})
	}
	return nil
}

func (g *Guard) violation(v *Violation) error {
	g.logger.Error("organization isolation violation",
		"op", v.Op,
		"expected_org", v.Expected,
		"got_org", v.Got,
		"chunk_id", v.ChunkID,
	)
	if g.observer != nil {
		g.observer(v.Op)
	}
	return v
}
