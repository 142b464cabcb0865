package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"orgrag/internal/app"
	"orgrag/internal/isolation"
	"orgrag/internal/model"
	"orgrag/internal/platform/rabbitmq"
)

var errBadTask = errors.New("malformed ingest task")

type Ingester interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
}

// IngestWorker consumes queued uploads. Each consumer goroutine handles one
// delivery at a time and the channel prefetch equals the goroutine count, so
// the broker never hands out more work than is being processed.
type IngestWorker struct {
	conn        *amqp.Connection
	ingester    Ingester
	queueName   string
	concurrency int
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, ingester Ingester, queueName string, concurrency int, logger *slog.Logger) *IngestWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestWorker{
		conn:        conn,
		ingester:    ingester,
		queueName:   queueName,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			w.consume(workerCtx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.logger.Info("ingest worker started", "queue", w.queueName, "concurrency", w.concurrency)
	return nil
}

func (w *IngestWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			err := w.handle(ctx, d.Body)
			if err == nil {
				_ = d.Ack(false)
				continue
			}
			requeue := shouldRequeue(err, d.Redelivered)
			w.logger.Error("ingest task failed",
				"message_id", d.MessageId,
				"redelivered", d.Redelivered,
				"requeue", requeue,
				"error", err,
			)
			_ = d.Nack(false, requeue)
		}
	}
}

// handle runs one task. Per-document ingestion failures are recorded on the
// document by the service and count as handled.
func (w *IngestWorker) handle(ctx context.Context, body []byte) error {
	var task model.IngestTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("%w: %w", errBadTask, err)
	}
	if task.OrganizationID == "" || task.DocumentID == "" {
		return fmt.Errorf("%w: organization and document ids are required", errBadTask)
	}

	res, err := w.ingester.Ingest(ctx, app.IngestInput{
		OrganizationID: task.OrganizationID,
		DocumentID:     task.DocumentID,
		Name:           task.Name,
		Format:         task.Format,
		Data:           task.Data,
		UploadedBy:     task.UploadedBy,
	})
	if err != nil {
		return err
	}
	w.logger.Info("ingest task done",
		"organization_id", task.OrganizationID,
		"document_id", res.DocumentID,
		"status", res.Status,
		"chunks", res.ChunkCount,
	)
	return nil
}

// shouldRequeue gives infrastructure errors one more delivery. Errors that
// cannot succeed on retry are dropped.
func shouldRequeue(err error, redelivered bool) bool {
	if redelivered {
		return false
	}
	switch {
	case errors.Is(err, errBadTask),
		errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrOrganizationNotFound),
		errors.Is(err, app.ErrOrganizationInactive),
		errors.Is(err, app.ErrDocumentConflict),
		errors.Is(err, isolation.ErrViolation):
		return false
	}
	return true
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
