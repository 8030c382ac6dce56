package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DocumentExtractor extracts text from uploaded documents. PDF handling is
// backed by pdfcpu; plain text and markdown pass through untouched.
type DocumentExtractor struct {
	conf   *model.Configuration
	logger *slog.Logger
}

// NewDocumentExtractor creates an extractor with relaxed PDF validation, so
// slightly out-of-spec documents still extract
func NewDocumentExtractor(logger *slog.Logger) *DocumentExtractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &DocumentExtractor{
		conf:   conf,
		logger: logger,
	}
}

// Extract reads the document at path and returns its plain text
func (e *DocumentExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Type: ErrTypeNotFound, Message: "document is not accessible", Err: err}
	}

	var (
		result *Result
		err    error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md":
		result, err = e.extractPlainText(path)
	case ".pdf":
		result, err = e.extractPDF(path)
	default:
		return nil, &Error{
			Type:    ErrTypeUnsupported,
			Message: fmt.Sprintf("unsupported document format %q", ext),
		}
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, &Error{Type: ErrTypeEmpty, Message: "document contains no extractable text"}
	}

	e.logger.Info("Document extracted",
		slog.String("path", path),
		slog.Int("page_count", result.PageCount),
		slog.Int("text_length", result.TextLength),
	)
	return result, nil
}

func (e *DocumentExtractor) extractPlainText(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Type: ErrTypeReadFailure, Message: "failed to read document", Err: err}
	}

	text := string(data)
	return &Result{
		Text:       text,
		PageCount:  1,
		TextLength: len(text),
	}, nil
}

func (e *DocumentExtractor) extractPDF(path string) (*Result, error) {
	if err := api.ValidateFile(path, e.conf); err != nil {
		return nil, &Error{Type: ErrTypeCorrupted, Message: "document failed PDF validation", Err: err}
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, &Error{Type: ErrTypeCorrupted, Message: "failed to determine page count", Err: err}
	}

	outDir, err := os.MkdirTemp("", "docinsight-extract-*")
	if err != nil {
		return nil, &Error{Type: ErrTypeReadFailure, Message: "failed to create extraction workspace", Err: err}
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, e.conf); err != nil {
		return nil, &Error{Type: ErrTypeCorrupted, Message: "failed to extract page content", Err: err}
	}

	entries, err := filepath.Glob(filepath.Join(outDir, "*"))
	if err != nil {
		return nil, &Error{Type: ErrTypeReadFailure, Message: "failed to list extracted content", Err: err}
	}

	var sb strings.Builder
	for _, entry := range entries {
		data, err := os.ReadFile(entry)
		if err != nil {
			continue
		}
		page := decodeContentText(string(data))
		if page == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(page)
	}

	text := sb.String()
	return &Result{
		Text:       text,
		PageCount:  pageCount,
		TextLength: len(text),
	}, nil
}

// decodeContentText pulls the string literals out of a decoded PDF content
// stream. Literals appear parenthesized ahead of the Tj/TJ text-show
// operators; escape sequences inside them follow the PDF string grammar.
func decodeContentText(content string) string {
	var (
		sb      strings.Builder
		lit     strings.Builder
		inside  bool
		depth   int
		escaped bool
	)

	flush := func() {
		if s := strings.TrimSpace(lit.String()); s != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(s)
		}
		lit.Reset()
	}

	for i := 0; i < len(content); i++ {
		c := content[i]

		if !inside {
			if c == '(' {
				inside = true
				depth = 1
			}
			continue
		}

		if escaped {
			switch c {
			case 'n':
				lit.WriteByte('\n')
			case 't':
				lit.WriteByte('\t')
			case 'r', 'f', 'b':
				lit.WriteByte(' ')
			default:
				lit.WriteByte(c)
			}
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			lit.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				inside = false
				flush()
			} else {
				lit.WriteByte(c)
			}
		default:
			lit.WriteByte(c)
		}
	}

	return sb.String()
}
