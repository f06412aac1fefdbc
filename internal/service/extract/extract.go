// Package extract 提供上传文档的正文提取
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
)

// ErrEmptyDocument 文档解析后无正文
var ErrEmptyDocument = errors.New("document has no extractable text")

// Extractor 文档正文提取器
type Extractor interface {
	// Text 提取文档全文
	Text(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor PDF 正文提取器
type PDFExtractor struct {
	parser einoparser.Parser
}

var _ Extractor = (*PDFExtractor)(nil)

// NewPDFExtractor 创建 PDF 提取器
func NewPDFExtractor(ctx context.Context) (*PDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}
	return &PDFExtractor{parser: p}, nil
}

// Text 提取 PDF 全文
func (e *PDFExtractor) Text(ctx context.Context, data []byte) (string, error) {
	docs, err := e.parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var sb strings.Builder
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(doc.Content)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
