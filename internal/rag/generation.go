package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"orgrag/internal/ai"
)

const (
	DefaultFallbackMessage = "I don't have enough information in your organization's documents to answer that question."

	systemRules = "You answer questions for a single organization using ONLY the provided context snippets. " +
		"If the answer is not in the context, say that you don't know. " +
		"Do not invent facts, names, numbers or contacts, and do not use outside knowledge."
)

type GenerationConfig struct {
	// Timeout bounds one model call; an expired call is retried.
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Concurrency bounds in-flight model calls across all requests.
	Concurrency     int
	FallbackMessage string
}

type GenerationResult struct {
	Text     string
	Degraded bool
	Attempts int
	Err      error
}

// Generator asks the language model for an answer constrained to the context.
type Generator struct {
	model  ai.ChatModel
	cfg    GenerationConfig
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func NewGenerator(chat ai.ChatModel, cfg GenerationConfig, logger *slog.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 8 * cfg.InitialBackoff
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		model:  chat,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger: logger,
	}
}

func (g *Generator) FallbackMessage() string { return g.cfg.FallbackMessage }

// BuildMessages renders the system rules and the question/context prompt.
// language is a language name; empty means the question's own language.
func BuildMessages(question string, snippets []string, language string) []ai.ChatMessage {
	target := "the same language as the question"
	if language != "" {
		target = language
	}
	system := systemRules + " Respond in " + target + "."
	user := "Question:\n" + strings.TrimSpace(question) +
		"\n\nContext:\n" + strings.Join(snippets, DefaultSeparator) +
		"\n\nNow respond:"
	return []ai.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// Generate never returns an error: once retries are spent it returns the
// fallback message with Degraded set and the last error in Err.
func (g *Generator) Generate(ctx context.Context, question string, assembled AssembledContext, language string) GenerationResult {
	messages := BuildMessages(question, assembled.Snippets(), language)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.cfg.InitialBackoff
	policy.MaxInterval = g.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	var (
		text     string
		attempts int
	)
	operation := func() error {
		attempts++
		out, err := g.attempt(ctx, messages)
		if err != nil {
			if ai.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		text = strings.TrimSpace(out)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("generation attempt failed, retrying",
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.cfg.MaxRetries)), ctx), notify)
	if err != nil {
		g.logger.Error("generation failed, answering with fallback", "attempts", attempts, "error", err)
		return GenerationResult{Text: g.cfg.FallbackMessage, Degraded: true, Attempts: attempts, Err: err}
	}
	return GenerationResult{Text: text, Attempts: attempts}
}

func (g *Generator) attempt(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for model slot failed: %w", err)
	}
	defer g.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	out, err := g.model.Complete(callCtx, messages)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ai.ErrTimeout) {
			err = fmt.Errorf("%w: %w", ai.ErrTimeout, err)
		}
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: empty completion", ai.ErrContentRejected)
	}
	return out, nil
}
