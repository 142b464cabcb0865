package rag

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Sizer measures text against a context budget.
type Sizer interface {
	Size(text string) int
	Unit() string
}

type RuneSizer struct{}

func (RuneSizer) Size(text string) int { return utf8.RuneCountInString(text) }
func (RuneSizer) Unit() string         { return "chars" }

// TokenSizer counts tokens with a tiktoken encoding.
type TokenSizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenSizer picks the encoding of model, falling back to cl100k_base.
func NewTokenSizer(model string) (*TokenSizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding failed: %w", err)
		}
	}
	return &TokenSizer{enc: enc}, nil
}

func (s *TokenSizer) Size(text string) int { return len(s.enc.Encode(text, nil, nil)) }
func (s *TokenSizer) Unit() string         { return "tokens" }
