package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orgrag/internal/ai"
	"orgrag/internal/chunker"
	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
	"orgrag/internal/model"
	"orgrag/internal/rag"
	"orgrag/internal/repository"
	"orgrag/internal/vectorstore"
	"orgrag/internal/vectorstore/memory"
)

const claimsPolicy = `Claim requirements. Every claim must include the policy number, the incident date and a signed claim form.
Claims without a signed form are returned to the submitter.

Office hours. The support desk is open Monday to Friday from nine to five.`

type fakeModel struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeModel) Complete(context.Context, []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "A claim needs the policy number, the incident date and a signed form.", nil
}

func (f *fakeModel) Name() string { return "fake" }

type fakePublisher struct {
	tasks []model.IngestTask
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, task model.IngestTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type unreachableStore struct {
	vectorstore.Store
}

func (unreachableStore) Search(context.Context, string, []float32, int) ([]vectorstore.Hit, error) {
	return nil, vectorstore.Unavailable("search", errors.New("connection refused"))
}

// cancelingEmbedder cancels the ingest context from inside the embedding call,
// like a client that disconnects mid-upload.
type cancelingEmbedder struct {
	embedding.Service
	cancel context.CancelFunc
}

func (c *cancelingEmbedder) EmbedBatch(ctx context.Context, _ []string) ([][]float32, error) {
	c.cancel()
	return nil, ctx.Err()
}

type env struct {
	svc       *RAGService
	orgs      *OrganizationService
	docs      *repository.DocumentRepository
	store     *memory.Store
	model     *fakeModel
	publisher *fakePublisher
	orgOne    string
	orgTwo    string
}

type envOptions struct {
	store  vectorstore.Store
	budget int
	// ingestEmbedder replaces the embedder of the ingestion pipeline only.
	ingestEmbedder embedding.Service
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Organization{}, &model.Document{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := memory.New(0)
	var store vectorstore.Store = mem
	if opts.store != nil {
		store = opts.store
	}
	if opts.budget == 0 {
		opts.budget = 2000
	}

	c, err := chunker.New(chunker.WithSize(120), chunker.WithOverlap(10))
	require.NoError(t, err)
	embedder := embedding.NewHashing(256)
	var ingestEmbedder embedding.Service = embedder
	if opts.ingestEmbedder != nil {
		ingestEmbedder = opts.ingestEmbedder
	}
	guard := isolation.NewGuard(store, quiet, nil)
	chat := &fakeModel{}
	publisher := &fakePublisher{}

	docRepo := repository.NewDocumentRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	e := &env{
		svc: NewRAGService(RAGDeps{
			Documents:     docRepo,
			Organizations: orgRepo,
			Guard:         guard,
			Pipeline:      rag.NewPipeline(c, ingestEmbedder, guard, rag.PipelineConfig{BatchSize: 4}, quiet),
			Retriever:     rag.NewRetriever(embedder, guard, rag.RetrievalConfig{TopK: 3}),
			Assembler:     rag.NewAssembler(rag.AssemblerConfig{Budget: opts.budget}, nil),
			Generator: rag.NewGenerator(chat, rag.GenerationConfig{
				Timeout:        time.Second,
				MaxRetries:     1,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     2 * time.Millisecond,
			}, quiet),
			Publisher: publisher,
			Logger:    quiet,
			Threshold: 0.2,
		}),
		orgs:      NewOrganizationService(orgRepo),
		docs:      docRepo,
		store:     mem,
		model:     chat,
		publisher: publisher,
	}

	one, err := e.orgs.Create(ctx, CreateOrganizationInput{Name: "Acme Insurance"})
	require.NoError(t, err)
	two, err := e.orgs.Create(ctx, CreateOrganizationInput{Name: "Globex"})
	require.NoError(t, err)
	e.orgOne, e.orgTwo = one.ID, two.ID
	return e
}

func (e *env) ingestClaims(t *testing.T) *IngestResult {
	t.Helper()
	res, err := e.svc.Ingest(context.Background(), IngestInput{
		OrganizationID: e.orgOne,
		DocumentID:     "claims",
		Name:           "claims.txt",
		Data:           []byte(claimsPolicy),
		UploadedBy:     "admin-1",
	})
	require.NoError(t, err)
	require.Equal(t, model.DocumentProcessed, res.Status, "Expected the claims policy to be processed: %s", res.Error)
	return res
}

func TestRAGServiceIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("Processed document is recorded with its chunk count", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		res := e.ingestClaims(t)

		assert.Positive(t, res.ChunkCount)
		assert.Equal(t, res.ChunkCount, e.store.Count(e.orgOne))

		doc, err := e.svc.GetDocument(ctx, e.orgOne, "claims")
		require.NoError(t, err)
		assert.Equal(t, model.DocumentProcessed, doc.Status)
		assert.Equal(t, "txt", doc.Format, "Expected the format to come from the file name")
		assert.Len(t, doc.ContentHash, 64)
		assert.Equal(t, "admin-1", doc.UploadedBy)
	})

	t.Run("Re-ingesting the same document does not duplicate chunks", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		first := e.ingestClaims(t)
		second := e.ingestClaims(t)

		assert.Equal(t, first.ChunkCount, second.ChunkCount)
		assert.Equal(t, second.ChunkCount, e.store.Count(e.orgOne))
	})

	t.Run("Identical bytes without a document id return the existing document", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		input := IngestInput{OrganizationID: e.orgOne, Name: "claims.txt", Data: []byte(claimsPolicy)}

		first, err := e.svc.Ingest(ctx, input)
		require.NoError(t, err)
		second, err := e.svc.Ingest(ctx, input)
		require.NoError(t, err)

		assert.True(t, second.Duplicate)
		assert.Equal(t, first.DocumentID, second.DocumentID)
		docs, err := e.svc.ListDocuments(ctx, e.orgOne)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("Failed re-ingestion leaves no chunks behind", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		res, err := e.svc.Ingest(ctx, IngestInput{OrganizationID: e.orgOne, DocumentID: "claims", Name: "claims.txt", Data: []byte("   \n  ")})

		require.NoError(t, err, "Expected a per-document failure, not an error")
		assert.Equal(t, model.DocumentFailed, res.Status)
		assert.Zero(t, res.ChunkCount)
		assert.NotEmpty(t, res.Error)
		assert.Zero(t, e.store.Count(e.orgOne), "Expected the old generation to be removed")

		doc, err := e.svc.GetDocument(ctx, e.orgOne, "claims")
		require.NoError(t, err)
		assert.Equal(t, model.DocumentFailed, doc.Status)
	})

	t.Run("Cancelled ingestion still records the failure", func(t *testing.T) {
		ictx, cancel := context.WithCancel(context.Background())
		defer cancel()
		e := newEnv(t, envOptions{ingestEmbedder: &cancelingEmbedder{Service: embedding.NewHashing(256), cancel: cancel}})
		stale, err := embedding.NewHashing(256).Embed(ctx, "stale policy text")
		require.NoError(t, err)
		require.NoError(t, e.store.ReplaceDocument(ctx, e.orgOne, "d1", []vectorstore.Record{{
			ChunkID: model.ChunkID("d1", 0), OrganizationID: e.orgOne, DocumentID: "d1", Text: "stale policy text", Vector: stale,
		}}))

		res, err := e.svc.Ingest(ictx, IngestInput{OrganizationID: e.orgOne, DocumentID: "d1", Name: "claims.txt", Data: []byte(claimsPolicy)})

		require.NoError(t, err, "Expected the failure to be recorded despite the cancelled context")
		assert.Equal(t, model.DocumentFailed, res.Status)
		doc, err := e.svc.GetDocument(ctx, e.orgOne, "d1")
		require.NoError(t, err)
		assert.Equal(t, model.DocumentFailed, doc.Status)
		assert.Zero(t, e.store.Count(e.orgOne), "Expected the previous chunks to be removed")
	})

	t.Run("Unsupported format is reported as a failed document", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		res, err := e.svc.Ingest(ctx, IngestInput{OrganizationID: e.orgOne, Name: "deck.pptx", Data: []byte("slides")})

		require.NoError(t, err)
		assert.Equal(t, model.DocumentFailed, res.Status)
		assert.Contains(t, res.Error, string(rag.KindUnsupportedFormat))
	})

	t.Run("Inactive organization is rejected", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		_, err := e.orgs.SetActive(ctx, e.orgOne, false)
		require.NoError(t, err)

		_, err = e.svc.Ingest(ctx, IngestInput{OrganizationID: e.orgOne, Name: "claims.txt", Data: []byte(claimsPolicy)})

		assert.ErrorIs(t, err, ErrOrganizationInactive)
	})

	t.Run("Unknown organization is rejected", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		_, err := e.svc.Ingest(ctx, IngestInput{OrganizationID: "missing", Name: "claims.txt", Data: []byte(claimsPolicy)})

		assert.ErrorIs(t, err, ErrOrganizationNotFound)
	})

	t.Run("Document id of another organization is not overwritten", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		_, err := e.svc.Ingest(ctx, IngestInput{OrganizationID: e.orgTwo, DocumentID: "claims", Name: "claims.txt", Data: []byte("Globex travel policy.")})

		assert.ErrorIs(t, err, ErrDocumentConflict)
		assert.Positive(t, e.store.Count(e.orgOne))
	})

	t.Run("Empty input is invalid", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		_, err := e.svc.Ingest(ctx, IngestInput{OrganizationID: e.orgOne, Name: "a.txt"})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRAGServiceEnqueueIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("Pending document is stored and published", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		res, err := e.svc.EnqueueIngest(ctx, IngestInput{OrganizationID: e.orgOne, Name: "claims.txt", Data: []byte(claimsPolicy)})

		require.NoError(t, err)
		assert.Equal(t, model.DocumentPending, res.Status)
		require.Len(t, e.publisher.tasks, 1)
		task := e.publisher.tasks[0]
		assert.Equal(t, res.DocumentID, task.DocumentID)
		assert.Equal(t, e.orgOne, task.OrganizationID)
		assert.Equal(t, "txt", task.Format)

		doc, err := e.svc.GetDocument(ctx, e.orgOne, res.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentPending, doc.Status)
		assert.Zero(t, e.store.Count(e.orgOne), "Expected nothing indexed before the worker runs")
	})

	t.Run("Publish failure marks the document failed", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.publisher.err = errors.New("channel closed")

		_, err := e.svc.EnqueueIngest(ctx, IngestInput{OrganizationID: e.orgOne, DocumentID: "claims", Name: "claims.txt", Data: []byte(claimsPolicy)})

		assert.ErrorIs(t, err, ErrIngestEnqueue)
		doc, gerr := e.svc.GetDocument(ctx, e.orgOne, "claims")
		require.NoError(t, gerr)
		assert.Equal(t, model.DocumentFailed, doc.Status)
	})

	t.Run("Queued task completes through Ingest", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		queued, err := e.svc.EnqueueIngest(ctx, IngestInput{OrganizationID: e.orgOne, Name: "claims.txt", Data: []byte(claimsPolicy)})
		require.NoError(t, err)
		task := e.publisher.tasks[0]

		res, err := e.svc.Ingest(ctx, IngestInput{
			OrganizationID: task.OrganizationID,
			DocumentID:     task.DocumentID,
			Name:           task.Name,
			Format:         task.Format,
			Data:           task.Data,
		})

		require.NoError(t, err)
		assert.Equal(t, queued.DocumentID, res.DocumentID)
		assert.Equal(t, model.DocumentProcessed, res.Status)
	})
}

func TestRAGServiceAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("Grounded question cites the claims chunk", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		answer, err := e.svc.Answer(ctx, e.orgOne, "What are the claim requirements?")

		require.NoError(t, err)
		assert.False(t, answer.Fallback)
		assert.NotEmpty(t, answer.UsedChunkIDs)
		assert.Contains(t, answer.UsedChunkIDs, model.ChunkID("claims", 0))
		assert.GreaterOrEqual(t, answer.Confidence, 0.2)
		assert.Contains(t, answer.Text, "signed form")
	})

	t.Run("Unrelated question falls back", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		answer, err := e.svc.Answer(ctx, e.orgOne, "What is the weather in Paris tomorrow?")

		require.NoError(t, err)
		assert.True(t, answer.Fallback)
		assert.Equal(t, rag.DefaultFallbackMessage, answer.Text)
		assert.Empty(t, answer.UsedChunkIDs)
		assert.Zero(t, e.model.calls, "Expected no model call for a fallback")
	})

	t.Run("Organization without documents falls back without error", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		answer, err := e.svc.Answer(ctx, e.orgTwo, "What are the claim requirements?")

		require.NoError(t, err)
		assert.True(t, answer.Fallback)
		assert.Equal(t, model.FallbackNoCandidates, answer.FallbackReason)
		assert.Zero(t, answer.Confidence)
	})

	t.Run("Context budget too small for any chunk falls back", func(t *testing.T) {
		e := newEnv(t, envOptions{budget: 5})
		e.ingestClaims(t)

		answer, err := e.svc.Answer(ctx, e.orgOne, "What are the claim requirements?")

		require.NoError(t, err)
		assert.True(t, answer.Fallback)
		assert.Equal(t, model.FallbackNoContext, answer.FallbackReason)
	})

	t.Run("Exhausted generation retries degrade to fallback", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)
		e.model.err = ai.ErrRateLimited

		answer, err := e.svc.Answer(ctx, e.orgOne, "What are the claim requirements?")

		require.NoError(t, err)
		assert.True(t, answer.Fallback)
		assert.Equal(t, model.FallbackGenerationFailed, answer.FallbackReason)
		assert.Equal(t, 2, e.model.calls, "Expected one retry after the first attempt")
	})

	t.Run("Unreachable store is reported as degraded service", func(t *testing.T) {
		e := newEnv(t, envOptions{store: unreachableStore{Store: memory.New(0)}})

		_, err := e.svc.Answer(ctx, e.orgOne, "What are the claim requirements?")

		assert.ErrorIs(t, err, ErrServiceDegraded)
		kind, ok := rag.KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, rag.KindStoreUnavailable, kind)
	})

	t.Run("Missing organization id is an isolation violation", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		_, err := e.svc.Answer(ctx, "", "What are the claim requirements?")

		assert.ErrorIs(t, err, isolation.ErrViolation)
		assert.NotErrorIs(t, err, ErrServiceDegraded)
	})

	t.Run("Blank question is invalid", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		_, err := e.svc.Answer(ctx, e.orgOne, "   ")

		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRAGServiceDeleteDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("Delete removes the chunks and the document", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		ingested := e.ingestClaims(t)

		res, err := e.svc.DeleteDocument(ctx, e.orgOne, "claims")

		require.NoError(t, err)
		assert.Equal(t, "deleted", res.Status)
		assert.Equal(t, ingested.ChunkCount, res.RemovedChunks)
		assert.Zero(t, e.store.Count(e.orgOne))

		_, err = e.svc.GetDocument(ctx, e.orgOne, "claims")
		assert.ErrorIs(t, err, ErrDocumentNotFound)

		answer, err := e.svc.Answer(ctx, e.orgOne, "What are the claim requirements?")
		require.NoError(t, err)
		assert.True(t, answer.Fallback, "Expected no grounding once the document is gone")
	})

	t.Run("Another organization cannot delete the document", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		e.ingestClaims(t)

		_, err := e.svc.DeleteDocument(ctx, e.orgTwo, "claims")

		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Positive(t, e.store.Count(e.orgOne))
	})
}

func TestOrganizationService(t *testing.T) {
	ctx := context.Background()

	t.Run("Duplicate names are rejected", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		_, err := e.orgs.Create(ctx, CreateOrganizationInput{Name: "Acme Insurance"})

		assert.ErrorIs(t, err, ErrOrganizationExists)
	})

	t.Run("List is ordered by name", func(t *testing.T) {
		e := newEnv(t, envOptions{})

		list, err := e.orgs.List(ctx)

		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Acme Insurance", list[0].Name)
		assert.Equal(t, "Globex", list[1].Name)
	})

	t.Run("Reactivated organization accepts documents again", func(t *testing.T) {
		e := newEnv(t, envOptions{})
		_, err := e.orgs.SetActive(ctx, e.orgOne, false)
		require.NoError(t, err)
		org, err := e.orgs.SetActive(ctx, e.orgOne, true)
		require.NoError(t, err)
		assert.True(t, org.Active)

		e.ingestClaims(t)
	})
}

func TestFormatOf(t *testing.T) {
	t.Run("Known formats come from the override or the name", func(t *testing.T) {
		assert.Equal(t, "pdf", formatOf("", "handbook.PDF"))
		assert.Equal(t, "md", formatOf("md", "notes.txt"))
	})

	t.Run("Unknown formats are cut on rune boundaries", func(t *testing.T) {
		got := formatOf("", "таблица-отчётов-за-год")

		assert.True(t, utf8.ValidString(got), "Expected valid UTF-8, got %q", got)
		assert.Equal(t, 16, utf8.RuneCountInString(got))
	})
}
