package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *DocumentExtractor {
	return NewDocumentExtractor(slog.New(slog.DiscardHandler))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDocumentExtractor_PlainText(t *testing.T) {
	e := newTestExtractor()

	path := writeTempFile(t, "notes.txt", "first line\nsecond line")

	result, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", result.Text)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, len(result.Text), result.TextLength)
}

func TestDocumentExtractor_Markdown(t *testing.T) {
	e := newTestExtractor()

	path := writeTempFile(t, "readme.md", "# Title\n\nSome body text.")

	result, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "# Title")
}

func TestDocumentExtractor_Failures(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantType string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.txt") },
			wantType: ErrTypeNotFound,
		},
		{
			name:     "unsupported extension",
			path:     func(t *testing.T) string { return writeTempFile(t, "image.png", "binary") },
			wantType: ErrTypeUnsupported,
		},
		{
			name:     "no extension",
			path:     func(t *testing.T) string { return writeTempFile(t, "document", "text") },
			wantType: ErrTypeUnsupported,
		},
		{
			name:     "empty document",
			path:     func(t *testing.T) string { return writeTempFile(t, "blank.txt", "") },
			wantType: ErrTypeEmpty,
		},
		{
			name:     "whitespace only document",
			path:     func(t *testing.T) string { return writeTempFile(t, "spaces.txt", "   \n\t  ") },
			wantType: ErrTypeEmpty,
		},
		{
			name:     "corrupted pdf",
			path:     func(t *testing.T) string { return writeTempFile(t, "broken.pdf", "this is not a pdf") },
			wantType: ErrTypeCorrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.path(t))
			require.Error(t, err)

			var exErr *Error
			require.ErrorAs(t, err, &exErr)
			assert.Equal(t, tt.wantType, exErr.Type)
		})
	}
}

func TestError_Message(t *testing.T) {
	plain := &Error{Type: ErrTypeEmpty, Message: "nothing to read"}
	assert.Equal(t, "extraction failed (empty_document): nothing to read", plain.Error())
	assert.Nil(t, plain.Unwrap())

	wrapped := &Error{Type: ErrTypeNotFound, Message: "stat failed", Err: os.ErrNotExist}
	assert.Contains(t, wrapped.Error(), "file_not_found")
	assert.ErrorIs(t, wrapped, os.ErrNotExist)
}

func TestDecodeContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single literal",
			content: "BT /F1 12 Tf (Hello World) Tj ET",
			want:    "Hello World",
		},
		{
			name:    "multiple literals joined with spaces",
			content: "(first) Tj (second) Tj",
			want:    "first second",
		},
		{
			name:    "nested parentheses kept",
			content: "(value (nested) tail) Tj",
			want:    "value (nested) tail",
		},
		{
			name:    "escaped parentheses",
			content: `(open \( close \)) Tj`,
			want:    "open ( close )",
		},
		{
			name:    "escape sequences",
			content: `(line one\nline two\ttabbed) Tj`,
			want:    "line one\nline two\ttabbed",
		},
		{
			name:    "empty literal skipped",
			content: "() Tj (text) Tj",
			want:    "text",
		},
		{
			name:    "no literals",
			content: "BT /F1 12 Tf ET",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeContentText(tt.content))
		})
	}
}
