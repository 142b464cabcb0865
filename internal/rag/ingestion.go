package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"orgrag/internal/chunker"
	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
	"orgrag/internal/model"
	"orgrag/internal/pkg/langdetect"
	"orgrag/internal/pkg/textextract"
	"orgrag/internal/vectorstore"
)

type PipelineConfig struct {
	// BatchSize is the number of chunks per embedding request.
	BatchSize int
	// EmbedConcurrency bounds in-flight batches for one document.
	EmbedConcurrency int
}

type IngestJob struct {
	OrganizationID string
	DocumentID     string
	Format         string
	Data           []byte
}

type IngestOutcome struct {
	ChunkIDs []string
	Language string
}

func (o *IngestOutcome) ChunkCount() int { return len(o.ChunkIDs) }

// Pipeline turns one document into a published chunk set.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder embedding.Service
	guard    *isolation.Guard
	cfg      PipelineConfig
	logger   *slog.Logger
}

func NewPipeline(c *chunker.Chunker, embedder embedding.Service, guard *isolation.Guard, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: c, embedder: embedder, guard: guard, cfg: cfg, logger: logger}
}

// Run extracts, chunks, embeds and publishes the document. Nothing becomes
// visible to search unless every step succeeds.
func (p *Pipeline) Run(ctx context.Context, job IngestJob) (*IngestOutcome, error) {
	if job.OrganizationID == "" || job.DocumentID == "" {
		return nil, fmt.Errorf("%w: organization and document ids are required", ErrInvalidJob)
	}
	fail := func(kind ErrorKind, err error) error {
		return &IngestionError{Kind: kind, DocumentID: job.DocumentID, Err: err}
	}

	format, err := textextract.ParseFormat(job.Format)
	if err != nil {
		return nil, fail(KindUnsupportedFormat, err)
	}
	text, err := textextract.Extract(format, job.Data)
	if err != nil {
		if errors.Is(err, textextract.ErrUnsupportedFormat) {
			return nil, fail(KindUnsupportedFormat, err)
		}
		return nil, fail(KindExtractionFailure, err)
	}

	texts := p.split(text)
	if len(texts) == 0 {
		return nil, fail(KindExtractionFailure, textextract.ErrNoText)
	}

	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, fail(KindEmbeddingFailure, err)
	}

	recs := make([]vectorstore.Record, len(texts))
	ids := make([]string, len(texts))
	languages := make(map[string]int)
	for i, t := range texts {
		lang := langdetect.Code(t)
		if lang != "" {
			languages[lang]++
		}
		ids[i] = model.ChunkID(job.DocumentID, i)
		recs[i] = vectorstore.Record{
			ChunkID:        ids[i],
			OrganizationID: job.OrganizationID,
			DocumentID:     job.DocumentID,
			Sequence:       i,
			Text:           t,
			Language:       lang,
			Vector:         vectors[i],
			Metadata:       map[string]string{"format": string(format)},
		}
	}

	if err := p.guard.ReplaceDocument(ctx, job.OrganizationID, job.DocumentID, recs); err != nil {
		if errors.Is(err, isolation.ErrViolation) {
			return nil, err
		}
		return nil, fail(KindStoreFailure, err)
	}

	p.logger.Debug("document chunks published",
		"organization_id", job.OrganizationID,
		"document_id", job.DocumentID,
		"chunks", len(recs),
	)
	return &IngestOutcome{ChunkIDs: ids, Language: dominant(languages)}, nil
}

// split chunks text and re-splits pieces longer than the model accepts.
func (p *Pipeline) split(text string) []string {
	max := p.embedder.MaxInputLength()
	var texts []string
	for _, piece := range p.chunker.Split(text) {
		texts = append(texts, chunker.Resplit(piece.Text, max)...)
	}
	return texts
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EmbedConcurrency)

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := p.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmbeddingFailure, len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d", embedding.ErrEmbeddingFailure, i, len(v), dims)
		}
	}
	return vectors, nil
}

func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for lang, n := range counts {
		if n > bestN || (n == bestN && lang < best) {
			best, bestN = lang, n
		}
	}
	return best
}
