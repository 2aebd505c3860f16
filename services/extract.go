package services

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"docqa-platform/internal/logger"
	"docqa-platform/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var (
	wordXMLParaRegex = regexp.MustCompile(`</w:p>`)
	wordXMLTagRegex  = regexp.MustCompile(`<[^>]+>`)
)

var imageMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Extractor turns raw document bytes into an ordered sequence of
// page-tagged text, one entry per page/sheet, before chunking begins.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsImage reports whether the filename refers to a supported image format.
func IsImage(filename string) bool {
	_, ok := imageMimeTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ImageMimeType returns the MIME type for a supported image filename.
func ImageMimeType(filename string) string {
	return imageMimeTypes[strings.ToLower(filepath.Ext(filename))]
}

// ExtractPages dispatches on file extension. Pages that yield no text are
// dropped; an empty result means the document had no extractable content.
func (e *Extractor) ExtractPages(ctx context.Context, filename string, data []byte) ([]models.PageText, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return e.extractPDF(ctx, filename, data)
	case ".docx":
		return e.extractDocx(data)
	case ".xlsx":
		return e.extractXLSX(data)
	case ".txt", ".csv", ".md", ".json":
		return e.extractPlainText(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
}

func (e *Extractor) extractPDF(ctx context.Context, filename string, data []byte) ([]models.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages []models.PageText
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// One unreadable page does not kill the upload.
			logger.Warn("pdf page extraction failed",
				"file", filename, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, models.PageText{PageNumber: i, Text: text})
	}
	return pages, nil
}

// extractDocx reads word/document.xml and strips the markup. Word files
// have no stable page boundaries, so everything lands on page 1.
func (e *Extractor) extractDocx(data []byte) ([]models.PageText, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	content = wordXMLParaRegex.ReplaceAllString(content, "\n\n")
	content = wordXMLTagRegex.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	return []models.PageText{{PageNumber: 1, Text: content}}, nil
}

// extractXLSX flattens each sheet to tab-separated rows, one page per sheet.
func (e *Extractor) extractXLSX(data []byte) ([]models.PageText, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var pages []models.PageText
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("xlsx sheet read failed", "sheet", sheet, "error", err)
			continue
		}
		var sb strings.Builder
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		text := strings.TrimSpace(sb.String())
		if text == sheet {
			continue
		}
		pages = append(pages, models.PageText{PageNumber: i + 1, Text: text})
	}
	return pages, nil
}

// extractPlainText decodes as UTF-8, falling back to Latin-1 so legacy
// exports do not fail the upload.
func (e *Extractor) extractPlainText(data []byte) ([]models.PageText, error) {
	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		text = string(runes)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []models.PageText{{PageNumber: 1, Text: text}}, nil
}
