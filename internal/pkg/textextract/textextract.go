// Package textextract turns uploaded file bytes into plain text.
package textextract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatXLSX     Format = "xlsx"
	FormatCSV      Format = "csv"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoText            = errors.New("document contains no extractable text")
)

var formats = map[string]Format{
	"pdf":      FormatPDF,
	"docx":     FormatDOCX,
	"xlsx":     FormatXLSX,
	"csv":      FormatCSV,
	"txt":      FormatText,
	"text":     FormatText,
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
}

// ParseFormat accepts a bare format name, an extension or a file name.
func ParseFormat(s string) (Format, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(key); ext != "" {
		key = strings.TrimPrefix(ext, ".")
	}
	if f, ok := formats[key]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Extract returns the text of data. It fails with ErrNoText when the document
// parses but holds nothing but whitespace.
func Extract(format Format, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	case FormatXLSX:
		text, err = extractXLSX(data)
	case FormatCSV:
		text, err = extractCSV(data)
	case FormatText, FormatMarkdown:
		text, err = extractPlain(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s failed: %w", format, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid utf-8")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
