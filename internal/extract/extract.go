// Package extract converts uploaded file bytes into indexable text.
package extract

import (
	"context"
	"strings"
)

// Fixed diagnostics returned for binary formats askd cannot parse.
// These strings are indexed like any extracted text, so querying a
// document of that type surfaces the limitation to the asker.
const (
	pdfNotSupported  = "PDF parsing is not supported in this environment."
	wordNotSupported = "Word document parsing is not supported in this environment."
	xlsNotSupported  = "Excel document parsing is not supported in this environment."
	pptNotSupported  = "PPT and PPTX parsing is not supported in this environment."
)

// Extractor turns raw upload bytes into text.
type Extractor interface {
	Extract(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// TextExtractor handles plain text and CSV natively and returns fixed
// diagnostic strings for binary office formats.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

// NewTextExtractor returns the default extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the text content of data based on contentType.
// Unknown content types are decoded as plain text. Extract never fails
// for supported input; invalid UTF-8 sequences are replaced.
func (e *TextExtractor) Extract(_ context.Context, _, contentType string, data []byte) (string, error) {
	switch contentType {
	case "application/pdf":
		return pdfNotSupported, nil
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return wordNotSupported, nil
	case "application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return xlsNotSupported, nil
	case "application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return pptNotSupported, nil
	case "text/csv":
		return normalizeCSV(string(data)), nil
	default:
		return strings.ToValidUTF8(string(data), "�"), nil
	}
}

// normalizeCSV flattens comma-separated rows into space-joined lines so
// cell values embed as ordinary prose.
func normalizeCSV(text string) string {
	rows := strings.Split(text, "\n")
	for i, row := range rows {
		cells := strings.Split(row, ",")
		for j, cell := range cells {
			cells[j] = strings.TrimSpace(cell)
		}
		rows[i] = strings.Join(cells, " ")
	}
	return strings.Join(rows, "\n")
}
