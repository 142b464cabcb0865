// Package embedding maps text to fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	ErrEmbeddingFailure = errors.New("embedding failure")
	ErrInputTooLong     = errors.New("embedding input too long")
)

// Service is implemented by every embedding provider and wrapper.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	// MaxInputLength is the longest accepted input in runes; 0 means unlimited.
	MaxInputLength() int
	Close() error
}

func failure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEmbeddingFailure, fmt.Sprintf(format, args...))
}

func wrapFailure(op string, err error) error {
	if errors.Is(err, ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrEmbeddingFailure, op, err)
}

func checkLengths(texts []string, max int) error {
	if max <= 0 {
		return nil
	}
	for i, t := range texts {
		if n := utf8.RuneCountInString(t); n > max {
			return fmt.Errorf("%w: %w: input %d has %d runes, limit %d", ErrEmbeddingFailure, ErrInputTooLong, i, n, max)
		}
	}
	return nil
}

func checkDimensions(vectors [][]float32, dims int) error {
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return failure("vector %d has dimension %d, expected %d", i, len(v), dims)
		}
	}
	return nil
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
