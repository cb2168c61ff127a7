// Package pipeline turns stored documents into searchable chunks: text
// extraction, splitting, and ingestion into the vector store.
package pipeline

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoContent indicates a document produced no extractable text.
var ErrNoContent = errors.New("no text content extracted")

// Extractor pulls plain text out of stored files. The extension decides
// the extraction strategy: pdf and docx get format-aware handling, every
// other allowed type is read as plain text.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the document's text content.
func (e *Extractor) Extract(path, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDocx(path)
	default:
		return extractPlain(path)
	}
}

// extractPlain reads the whole file as UTF-8 text.
func extractPlain(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(content), nil
}

// extractPDF extracts text from every page of a PDF.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}

	var b strings.Builder
	if _, err := io.Copy(&b, textReader); err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	return b.String(), nil
}

// extractDocx reads word/document.xml out of the docx zip container and
// collects its character data, one line per paragraph.
func extractDocx(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening docx %s: %w", path, err)
	}
	defer reader.Close()

	var documentXML io.ReadCloser
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			documentXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("opening document.xml: %w", err)
			}
			break
		}
	}
	if documentXML == nil {
		return "", fmt.Errorf("docx %s has no word/document.xml", path)
	}
	defer documentXML.Close()

	return docxText(documentXML)
}

// docxText walks the document XML collecting text runs. Paragraph ends
// (</w:p>) become newlines so chunk boundaries respect paragraphs.
func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var b strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}

		switch t := token.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				b.WriteByte('\n')
			}
		}
	}

	return b.String(), nil
}
