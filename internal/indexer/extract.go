package indexer

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"studyqa/internal/storage"
)

// ErrUnsupportedFileType is returned for uploads that are not pdf, docx, md or txt.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// FileTypeFor maps a filename to one of the supported storage file types.
func FileTypeFor(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return storage.FileTypePDF, nil
	case ".docx":
		return storage.FileTypeDOCX, nil
	case ".md", ".markdown":
		return storage.FileTypeMD, nil
	case ".txt":
		return storage.FileTypeTXT, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Ext(filename))
	}
}

// Extract returns the text of a file. PDFs yield one Page per non-empty page;
// other formats yield a single Page numbered 0.
func Extract(fileType string, content []byte) ([]Page, error) {
	switch fileType {
	case storage.FileTypePDF:
		return extractPDF(content)
	case storage.FileTypeDOCX:
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []Page{{Number: 0, Text: text}}, nil
	case storage.FileTypeMD, storage.FileTypeTXT:
		return []Page{{Number: 0, Text: string(content)}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}
}

func extractPDF(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var pages []Page
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

const docxDocumentXMLPath = "word/document.xml"

var (
	docxParagraph    = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxStyle        = regexp.MustCompile(`<w:pStyle w:val="([^"]+)"`)
	docxText         = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`) // attributes such as xml:space are allowed
	docxHeadingStyle = regexp.MustCompile(`(?i)^(?:heading|titre|überschrift)\s*([1-9])$`)
)

// extractDOCX reads word/document.xml and renders one line per paragraph.
// Paragraphs styled as headings become markdown headings so chunkers can see them.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: open %s: %w", f.Name, err)
		}
		docXML, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docxDocumentXMLPath)
	}

	var b strings.Builder
	for _, para := range docxParagraph.FindAllString(string(docXML), -1) {
		var line strings.Builder
		for _, m := range docxText.FindAllStringSubmatch(para, -1) {
			line.WriteString(html.UnescapeString(m[1]))
		}
		text := strings.TrimSpace(line.String())
		if text == "" {
			continue
		}
		if level := docxHeadingLevel(para); level > 0 {
			text = strings.Repeat("#", level) + " " + text
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}

func docxHeadingLevel(para string) int {
	m := docxStyle.FindStringSubmatch(para)
	if m == nil {
		return 0
	}
	style := strings.ReplaceAll(m[1], " ", "")
	if strings.EqualFold(style, "Title") {
		return 1
	}
	if hm := docxHeadingStyle.FindStringSubmatch(style); hm != nil {
		level, _ := strconv.Atoi(hm[1])
		return level
	}
	return 0
}
