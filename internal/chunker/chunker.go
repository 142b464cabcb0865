// Package chunker splits extracted document text into bounded, overlapping pieces.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultSize is the default number of runes per chunk.
	DefaultSize = 800
	// DefaultOverlap is the default number of runes shared by consecutive chunks.
	DefaultOverlap = 100
)

var ErrInvalidConfig = errors.New("invalid chunker config")

// Piece is one emitted chunk. Sequence numbers are contiguous from zero.
type Piece struct {
	Sequence int
	Text     string
}

// Chunker is immutable once built and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

// WithSize sets the chunk size in runes.
func WithSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap sets the overlap between consecutive chunks in runes.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, c.size)
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, c.overlap, c.size)
	}
	return c, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into windows of at most Size runes. A window end is moved back
// to the last whitespace in its final fifth when there is one, so words are not
// cut in the middle. Each piece is trimmed and blank pieces are dropped.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	n := len(runes)

	var pieces []Piece
	for start := 0; start < n; {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.snap(runes, start, end)
		}

		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			pieces = append(pieces, Piece{Sequence: len(pieces), Text: s})
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return pieces
}

func (c *Chunker) snap(runes []rune, start, end int) int {
	lower := start + c.size*4/5
	for i := end - 1; i >= lower && i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

// Resplit hard-splits text into trimmed, non-blank parts of at most max runes.
// It is used for pieces that exceed an embedding model's input limit.
func Resplit(text string, max int) []string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		if s := strings.TrimSpace(text); s != "" {
			return []string{s}
		}
		return nil
	}

	var parts []string
	for i := 0; i < len(runes); i += max {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		if s := strings.TrimSpace(string(runes[i:end])); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
