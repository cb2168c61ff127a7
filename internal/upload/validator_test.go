package upload_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docvault/internal/upload"
)

func newValidator(t *testing.T) *upload.Validator {
	t.Helper()
	return upload.NewValidator(upload.ValidatorConfig{}, nil)
}

func writeTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// cleanPDF is a minimal PDF without any active-content markers.
var cleanPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

// buildDocx writes a minimal zip archive shaped like a docx file.
func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestValidateCleanFiles(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		content []byte
	}{
		{"notes.txt", []byte("plain text content")},
		{"readme.md", []byte("# heading\n\nbody")},
		{"data.csv", []byte("a,b,c\n1,2,3\n")},
		{"report.pdf", cleanPDF},
		{"script.py", []byte("print('hello')\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.name, tt.content)
			assert.NoError(t, v.Validate(path, tt.name))
		})
	}
}

func TestValidateMissingFile(t *testing.T) {
	v := newValidator(t)
	err := v.Validate(filepath.Join(t.TempDir(), "nope.txt"), "nope.txt")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValidateSizeLimit(t *testing.T) {
	v := upload.NewValidator(upload.ValidatorConfig{MaxFileSizeBytes: 10}, nil)
	path := writeTestFile(t, "big.txt", []byte("this content is larger than ten bytes"))

	err := v.Validate(path, "big.txt")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestValidateDisallowedExtension(t *testing.T) {
	v := newValidator(t)
	path := writeTestFile(t, "run.sh", []byte("#!/bin/sh\necho hi\n"))

	err := v.Validate(path, "run.sh")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestValidateExecutableDisguisedAsDocument(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"report.pdf", []byte("MZ\x90\x00executable payload"), "Windows executable"},
		{"notes.txt", []byte("\x7fELFexecutable payload"), "Linux executable"},
		{"data.csv", []byte{0xca, 0xfe, 0xba, 0xbe, 0x00}, "Mach-O executable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, tt.name, tt.header)
			err := v.Validate(path, tt.name)
			require.Error(t, err)
			assert.True(t, upload.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateZipSignatureWrongExtension(t *testing.T) {
	v := newValidator(t)
	path := writeTestFile(t, "archive.txt", []byte("PK\x03\x04zip content"))

	err := v.Validate(path, "archive.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZIP archive")
}

func TestValidateDocxAccepted(t *testing.T) {
	v := newValidator(t)
	docx := buildDocx(t, "<w:document><w:body><w:p><w:r><w:t>hello</w:t></w:r></w:p></w:body></w:document>")
	path := writeTestFile(t, "letter.docx", docx)

	assert.NoError(t, v.Validate(path, "letter.docx"))
}

func TestValidateInvalidDocx(t *testing.T) {
	v := newValidator(t)
	path := writeTestFile(t, "broken.docx", []byte("PK\x03\x04not really a zip"))

	err := v.Validate(path, "broken.docx")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "not a valid ZIP archive")
}

func TestValidateZipBombRatio(t *testing.T) {
	v := newValidator(t)

	// 5MB of zeros compresses to a few KB, far past the 100:1 ratio.
	docx := buildDocx(t, string(bytes.Repeat([]byte{0}, 5*1024*1024)))
	path := writeTestFile(t, "bomb.docx", docx)

	err := v.Validate(path, "bomb.docx")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "zip bomb")
}

func TestValidateZipBombExtractedSize(t *testing.T) {
	v := upload.NewValidator(upload.ValidatorConfig{MaxExtractedBytes: 1024}, nil)

	// Declared uncompressed size beats the ceiling even though the archive
	// itself is small and the compression ratio is unremarkable.
	docx := buildDocx(t, string(bytes.Repeat([]byte("paragraph text "), 300)))
	path := writeTestFile(t, "inflated.docx", docx)

	err := v.Validate(path, "inflated.docx")
	require.Error(t, err)
	assert.True(t, upload.IsValidationError(err))
	assert.Contains(t, err.Error(), "extracts to")
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestValidatePDFActiveContent(t *testing.T) {
	v := newValidator(t)

	markers := []string{"/JavaScript", "/Launch", "/OpenAction", "/AA", "/GoToR"}
	for _, marker := range markers {
		t.Run(marker, func(t *testing.T) {
			content := append([]byte("%PDF-1.4\n1 0 obj\n<< "+marker+" (x) >>\nendobj\n"), []byte("%%EOF")...)
			path := writeTestFile(t, "active.pdf", content)

			err := v.Validate(path, "active.pdf")
			require.Error(t, err)
			assert.True(t, upload.IsValidationError(err))
			assert.Contains(t, err.Error(), "dangerous code")
		})
	}
}

func TestAllowedExtension(t *testing.T) {
	assert.True(t, upload.AllowedExtension(".pdf"))
	assert.True(t, upload.AllowedExtension(".PDF"))
	assert.True(t, upload.AllowedExtension(".docx"))
	assert.False(t, upload.AllowedExtension(".exe"))
	assert.False(t, upload.AllowedExtension(".zip"))
	assert.False(t, upload.AllowedExtension(""))
}
