package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"orgrag/internal/isolation"
	"orgrag/internal/metrics"
	"orgrag/internal/model"
	"orgrag/internal/pkg/langdetect"
	"orgrag/internal/pkg/textextract"
	"orgrag/internal/rag"
	"orgrag/internal/repository"
)

// statusWriteTimeout bounds the status and cleanup writes that outlive the caller.
const statusWriteTimeout = 5 * time.Second

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentConflict     = errors.New("document id belongs to another organization")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrOrganizationInactive = errors.New("organization is inactive")
	ErrServiceDegraded      = errors.New("answering service is degraded")
	ErrIngestEnqueue        = errors.New("ingest enqueue failed")
	ErrAsyncDisabled        = errors.New("async ingestion is not configured")
)

type IngestPublisher interface {
	Publish(ctx context.Context, task model.IngestTask) error
}

// RAGDeps holds the collaborators of RAGService. Publisher and Metrics may be nil.
type RAGDeps struct {
	Documents     *repository.DocumentRepository
	Organizations *repository.OrganizationRepository
	Guard         *isolation.Guard
	Pipeline      *rag.Pipeline
	Retriever     *rag.Retriever
	Assembler     *rag.Assembler
	Generator     *rag.Generator
	Publisher     IngestPublisher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	// Threshold is the minimum best score for a grounded answer.
	Threshold float64
}

type RAGService struct {
	docs      *repository.DocumentRepository
	orgs      *repository.OrganizationRepository
	guard     *isolation.Guard
	pipeline  *rag.Pipeline
	retriever *rag.Retriever
	assembler *rag.Assembler
	generator *rag.Generator
	publisher IngestPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	threshold float64
}

type IngestInput struct {
	OrganizationID string
	// DocumentID is optional; a new id is generated when empty.
	DocumentID string
	Name       string
	// Format defaults to the extension of Name.
	Format     string
	Data       []byte
	UploadedBy string
}

type IngestResult struct {
	DocumentID string               `json:"document_id"`
	Status     model.DocumentStatus `json:"status"`
	ChunkCount int                  `json:"chunk_count"`
	Error      string               `json:"error,omitempty"`
	// Duplicate is set when identical bytes were already processed and the
	// existing document was returned instead.
	Duplicate bool `json:"duplicate,omitempty"`
}

type DeleteResult struct {
	DocumentID    string `json:"document_id"`
	Status        string `json:"status"`
	RemovedChunks int    `json:"removed_chunks"`
}

func NewRAGService(deps RAGDeps) *RAGService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{
		docs:      deps.Documents,
		orgs:      deps.Organizations,
		guard:     deps.Guard,
		pipeline:  deps.Pipeline,
		retriever: deps.Retriever,
		assembler: deps.Assembler,
		generator: deps.Generator,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger,
		threshold: deps.Threshold,
	}
}

// Ingest processes one document synchronously. Extraction, embedding and
// store failures are per-document: they come back as a failed IngestResult
// with a nil error. The returned error is reserved for bad input, unknown or
// inactive organizations, repository errors and isolation violations.
func (s *RAGService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	doc, duplicate, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &IngestResult{DocumentID: doc.ID, Status: doc.Status, ChunkCount: doc.ChunkCount, Duplicate: true}, nil
	}
	return s.process(ctx, doc, input.Data)
}

// EnqueueIngest stores a pending document and hands the bytes to the ingest
// queue. The worker finishes the job through Ingest.
func (s *RAGService) EnqueueIngest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if s.publisher == nil {
		return nil, ErrAsyncDisabled
	}
	doc, duplicate, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &IngestResult{DocumentID: doc.ID, Status: doc.Status, ChunkCount: doc.ChunkCount, Duplicate: true}, nil
	}

	task := model.IngestTask{
		DocumentID:     doc.ID,
		OrganizationID: doc.OrganizationID,
		Name:           doc.Name,
		Format:         doc.Format,
		UploadedBy:     doc.UploadedBy,
		Data:           input.Data,
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		if uerr := s.docs.UpdateStatus(ctx, doc.ID, doc.OrganizationID, model.DocumentFailed, 0, ErrIngestEnqueue.Error()); uerr != nil {
			s.logger.Error("mark document failed", "document_id", doc.ID, "error", uerr)
		}
		s.metrics.IngestFinished(string(model.DocumentFailed), 0)
		return nil, fmt.Errorf("%w: %w", ErrIngestEnqueue, err)
	}
	return &IngestResult{DocumentID: doc.ID, Status: model.DocumentPending}, nil
}

// prepare validates input and saves the document row as pending. It reports
// duplicate when the organization already has a processed upload of the same
// bytes and no explicit document id was requested.
func (s *RAGService) prepare(ctx context.Context, input IngestInput) (*model.Document, bool, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	input.DocumentID = strings.TrimSpace(input.DocumentID)
	input.Name = strings.TrimSpace(input.Name)
	if input.OrganizationID == "" || len(input.Data) == 0 {
		return nil, false, ErrInvalidInput
	}
	if input.Name == "" && input.Format == "" {
		return nil, false, ErrInvalidInput
	}
	if err := s.requireActiveOrg(ctx, input.OrganizationID); err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(input.Data)
	hash := hex.EncodeToString(sum[:])

	if input.DocumentID == "" {
		prev, err := s.docs.GetByContentHash(ctx, input.OrganizationID, hash)
		if err != nil {
			return nil, false, err
		}
		if prev != nil && prev.Status == model.DocumentProcessed {
			return prev, true, nil
		}
		input.DocumentID = uuid.NewString()
	}

	existing, err := s.docs.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.OrganizationID != input.OrganizationID {
		return nil, false, ErrDocumentConflict
	}

	name := input.Name
	if name == "" {
		name = input.DocumentID
	}
	doc := &model.Document{
		ID:             input.DocumentID,
		OrganizationID: input.OrganizationID,
		Name:           name,
		Format:         formatOf(input.Format, input.Name),
		ContentHash:    hash,
		Status:         model.DocumentPending,
		UploadedBy:     input.UploadedBy,
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
		doc.ChunkCount = existing.ChunkCount
		if doc.UploadedBy == "" {
			doc.UploadedBy = existing.UploadedBy
		}
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

func (s *RAGService) process(ctx context.Context, doc *model.Document, data []byte) (*IngestResult, error) {
	start := time.Now()
	outcome, err := s.pipeline.Run(ctx, rag.IngestJob{
		OrganizationID: doc.OrganizationID,
		DocumentID:     doc.ID,
		Format:         doc.Format,
		Data:           data,
	})
	if err != nil {
		if errors.Is(err, isolation.ErrViolation) {
			return nil, err
		}
		return s.fail(ctx, doc, err)
	}

	chunks := outcome.ChunkCount()
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := s.docs.UpdateStatus(wctx, doc.ID, doc.OrganizationID, model.DocumentProcessed, chunks, ""); err != nil {
		return nil, err
	}
	s.metrics.IngestFinished(string(model.DocumentProcessed), chunks)
	s.logger.Info("document ingested",
		"organization_id", doc.OrganizationID,
		"document_id", doc.ID,
		"chunks", chunks,
		"language", outcome.Language,
		"elapsed", time.Since(start),
	)
	return &IngestResult{DocumentID: doc.ID, Status: model.DocumentProcessed, ChunkCount: chunks}, nil
}

// fail marks the document failed. The previous generation is removed as well,
// so a failed re-upload never leaves stale content searchable.
func (s *RAGService) fail(ctx context.Context, doc *model.Document, cause error) (*IngestResult, error) {
	var ie *rag.IngestionError
	if !errors.As(cause, &ie) {
		return nil, fmt.Errorf("ingest document failed: %w", cause)
	}

	// The caller may have gone away mid-pipeline; the cleanup still has to land.
	wctx, cancel := detached(ctx)
	defer cancel()
	if _, err := s.guard.DeleteDocument(wctx, doc.OrganizationID, doc.ID); err != nil {
		s.logger.Error("remove previous chunks of failed document",
			"organization_id", doc.OrganizationID,
			"document_id", doc.ID,
			"error", err,
		)
	}
	msg := cause.Error()
	if err := s.docs.UpdateStatus(wctx, doc.ID, doc.OrganizationID, model.DocumentFailed, 0, msg); err != nil {
		return nil, err
	}
	s.metrics.IngestFinished(string(model.DocumentFailed), 0)
	s.logger.Warn("document ingestion failed",
		"organization_id", doc.OrganizationID,
		"document_id", doc.ID,
		"kind", ie.Kind,
		"error", ie.Err,
	)
	return &IngestResult{DocumentID: doc.ID, Status: model.DocumentFailed, Error: msg}, nil
}

// detached keeps ctx values but not its cancellation, bounded by statusWriteTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}

// Answer retrieves, decides, assembles and generates. A question without
// grounding yields a fallback Answer and no error. ErrServiceDegraded means
// the index or embedding model could not be reached.
func (s *RAGService) Answer(ctx context.Context, organizationID, question string) (*model.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	language := ""
	if lang, ok := langdetect.Detect(question); ok {
		language = lang.Name
	}

	start := time.Now()
	candidates, err := s.retriever.Retrieve(ctx, organizationID, question)
	s.metrics.ObserveRetrieval(time.Since(start))
	if err != nil {
		if errors.Is(err, isolation.ErrViolation) {
			s.metrics.AnswerFinished("error")
			return nil, err
		}
		s.metrics.AnswerFinished("degraded")
		s.logger.Error("retrieval failed", "organization_id", organizationID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrServiceDegraded, err)
	}

	decision := rag.Decide(candidates, s.threshold)
	if decision.Outcome == rag.OutcomeFallback {
		return s.fallback(organizationID, decision.Reason, decision.BestScore, language), nil
	}

	assembled := s.assembler.Assemble(decision.Candidates)
	if len(assembled.Candidates) == 0 {
		return s.fallback(organizationID, model.FallbackNoContext, decision.BestScore, language), nil
	}

	genStart := time.Now()
	result := s.generator.Generate(ctx, question, assembled, language)
	s.metrics.ObserveGeneration(time.Since(genStart), result.Attempts)

	answer := &model.Answer{
		Text:         result.Text,
		UsedChunkIDs: assembled.ChunkIDs(),
		Confidence:   decision.BestScore,
		Language:     language,
	}
	if result.Degraded {
		answer.Fallback = true
		answer.FallbackReason = model.FallbackGenerationFailed
		answer.UsedChunkIDs = []string{}
		s.metrics.AnswerFinished(string(model.FallbackGenerationFailed))
		return answer, nil
	}
	s.metrics.AnswerFinished(string(rag.OutcomeGrounded))
	s.logger.Debug("question answered",
		"organization_id", organizationID,
		"chunks", len(answer.UsedChunkIDs),
		"confidence", answer.Confidence,
		"attempts", result.Attempts,
	)
	return answer, nil
}

func (s *RAGService) fallback(organizationID string, reason model.FallbackReason, best float64, language string) *model.Answer {
	s.metrics.AnswerFinished(string(reason))
	s.logger.Info("answering with fallback",
		"organization_id", organizationID,
		"reason", reason,
		"best_score", best,
	)
	return &model.Answer{
		Text:           s.generator.FallbackMessage(),
		Fallback:       true,
		FallbackReason: reason,
		UsedChunkIDs:   []string{},
		Confidence:     best,
		Language:       language,
	}
}

// DeleteDocument removes the document and its chunks. Chunks go first so a
// crash in between leaves a row pointing at nothing rather than orphaned vectors.
func (s *RAGService) DeleteDocument(ctx context.Context, organizationID, documentID string) (*DeleteResult, error) {
	if strings.TrimSpace(organizationID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOrganizationID(ctx, documentID, organizationID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	removed, err := s.guard.DeleteDocument(ctx, organizationID, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete document chunks failed: %w", err)
	}
	if _, err := s.docs.DeleteByIDAndOrganizationID(ctx, documentID, organizationID); err != nil {
		return nil, err
	}
	s.logger.Info("document deleted",
		"organization_id", organizationID,
		"document_id", documentID,
		"chunks", removed,
	)
	return &DeleteResult{DocumentID: documentID, Status: "deleted", RemovedChunks: removed}, nil
}

func (s *RAGService) ListDocuments(ctx context.Context, organizationID string) ([]model.Document, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByOrganizationID(ctx, organizationID)
}

func (s *RAGService) GetDocument(ctx context.Context, organizationID, documentID string) (*model.Document, error) {
	if strings.TrimSpace(organizationID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOrganizationID(ctx, documentID, organizationID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *RAGService) requireActiveOrg(ctx context.Context, organizationID string) error {
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return err
	}
	if org == nil {
		return ErrOrganizationNotFound
	}
	if !org.Active {
		return ErrOrganizationInactive
	}
	return nil
}

// formatOf normalizes the declared format, falling back to the file name.
// Unknown values are kept as given so the pipeline reports them.
const maxFormatRunes = 16

func formatOf(format, name string) string {
	raw := format
	if strings.TrimSpace(raw) == "" {
		raw = name
	}
	if f, err := textextract.ParseFormat(raw); err == nil {
		return string(f)
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if r := []rune(raw); len(r) > maxFormatRunes {
		raw = string(r[:maxFormatRunes])
	}
	return raw
}
