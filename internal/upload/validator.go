// Package upload validates and stages incoming document files before they
// enter the document lifecycle. Rejected files never reach their final path.
package upload

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// Scan limits for content inspection.
const (
	// MaxExtractedSize caps the total uncompressed size of zip-based files.
	MaxExtractedSize = 100 * 1024 * 1024

	// MaxContentScanSize caps how much of a file is scanned for markers.
	MaxContentScanSize = 10 * 1024 * 1024

	// maxCompressionRatio above which an archive is treated as a zip bomb.
	maxCompressionRatio = 100

	// signatureHeaderSize is how many leading bytes the magic checks read.
	signatureHeaderSize = 1024
)

// ValidationError reports why a file was rejected. Reasons are stable,
// user-facing strings.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("file validation failed for %s: %s", e.Filename, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// mimeTypesByExtension maps each allowed extension to its acceptable MIME
// types. Files with other extensions are rejected outright.
var mimeTypesByExtension = map[string][]string{
	".pdf": {"application/pdf"},
	".txt": {"text/plain"},
	".md":  {"text/plain", "text/markdown", "text/x-markdown"},
	".docx": {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/octet-stream",
		"application/zip",
	},
	".doc":  {"application/msword"},
	".csv":  {"text/csv", "text/plain", "application/csv"},
	".json": {"application/json", "text/plain"},
	".py":   {"text/x-python", "text/plain"},
	".js":   {"application/javascript", "text/javascript", "text/plain"},
	".jsx":  {"text/jsx", "text/plain"},
	".ts":   {"application/typescript", "text/typescript", "text/plain"},
	".tsx":  {"text/tsx", "text/plain"},
	".html": {"text/html"},
	".css":  {"text/css"},
}

// executableSignatures are magic byte prefixes that mark a file as
// executable or archive content.
var executableSignatures = []struct {
	prefix      []byte
	description string
}{
	{[]byte("MZ"), "Windows executable"},
	{[]byte{0x7f, 'E', 'L', 'F'}, "Linux executable"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, "Mach-O executable"},
	{[]byte("PK\x03\x04"), "ZIP archive"},
}

// pdfActiveContentMarkers are PDF name tokens associated with embedded
// code and auto-executing actions.
var pdfActiveContentMarkers = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/JS"),
	[]byte("/Launch"),
	[]byte("/SubmitForm"),
	[]byte("/ImportData"),
	[]byte("/GoToR"),
	[]byte("/GoToE"),
	[]byte("/OpenAction"),
	[]byte("/AA"),
}

// ValidatorConfig holds validation limits.
type ValidatorConfig struct {
	// MaxFileSizeBytes is the per-file upload size limit.
	// Default: 10MB
	MaxFileSizeBytes int64

	// MaxExtractedBytes caps the total uncompressed size of zip-based files.
	// Default: MaxExtractedSize (100MB)
	MaxExtractedBytes int64
}

// ApplyDefaults sets default values for unset fields.
func (c *ValidatorConfig) ApplyDefaults() {
	if c.MaxFileSizeBytes == 0 {
		c.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	if c.MaxExtractedBytes == 0 {
		c.MaxExtractedBytes = MaxExtractedSize
	}
}

// Validator performs content-level checks on staged files.
//
// The check order is fixed: existence, size, extension, MIME consistency,
// executable signatures, zip bomb, then PDF content. The first failure wins
// so error messages always name the earliest problem.
type Validator struct {
	config ValidatorConfig
	logger *zap.Logger
}

// NewValidator creates a Validator.
func NewValidator(config ValidatorConfig, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Validator{config: config, logger: logger}
}

// AllowedExtension reports whether ext (with leading dot, any case) is on
// the allow-list.
func AllowedExtension(ext string) bool {
	_, ok := mimeTypesByExtension[strings.ToLower(ext)]
	return ok
}

// Validate runs every check against the file at path. filename is the
// client-facing name whose extension drives the type-specific checks; the
// staged path itself may carry a .tmp suffix.
func (v *Validator) Validate(path, filename string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ValidationError{Filename: filename, Reason: "file does not exist"}
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return &ValidationError{Filename: filename, Reason: "path is not a file"}
	}

	if info.Size() > v.config.MaxFileSizeBytes {
		return &ValidationError{
			Filename: filename,
			Reason: fmt.Sprintf("file size (%.2fMB) exceeds maximum (%.0fMB)",
				float64(info.Size())/(1024*1024),
				float64(v.config.MaxFileSizeBytes)/(1024*1024)),
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	expectedMIMEs, ok := mimeTypesByExtension[ext]
	if !ok {
		return &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file extension %q not in allowed list", ext),
		}
	}

	header, err := readHeader(path, signatureHeaderSize)
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}

	v.checkDetectedMIME(filename, ext, header, expectedMIMEs)

	if err := checkExecutableSignatures(filename, ext, header); err != nil {
		return err
	}

	if ext == ".docx" {
		if err := v.checkZipBomb(path, filename); err != nil {
			return err
		}
	}

	if ext == ".pdf" {
		if err := scanPDFContent(path, filename); err != nil {
			return err
		}
	}

	return nil
}

// checkDetectedMIME compares content-detected MIME against the extension's
// expected set. Mismatches are logged, not fatal: plain-text formats have
// no magic bytes and detection is best-effort.
func (v *Validator) checkDetectedMIME(filename, ext string, header []byte, expected []string) {
	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		return
	}

	detected := kind.MIME.Value
	for _, want := range expected {
		if detected == want {
			return
		}
	}

	v.logger.Warn("file MIME type mismatch",
		zap.String("filename", filename),
		zap.String("extension", ext),
		zap.String("detected", detected),
		zap.Strings("expected", expected),
	)
}

// checkExecutableSignatures rejects files whose leading bytes match an
// executable or archive signature. The ZIP signature is tolerated only for
// .docx, which is a zip container.
func checkExecutableSignatures(filename, ext string, header []byte) error {
	for _, sig := range executableSignatures {
		if !bytes.HasPrefix(header, sig.prefix) {
			continue
		}
		if bytes.Equal(sig.prefix, []byte("PK\x03\x04")) {
			if ext == ".docx" {
				continue
			}
			return &ValidationError{
				Filename: filename,
				Reason:   fmt.Sprintf("file contains %s signature but has wrong extension", sig.description),
			}
		}
		return &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file contains executable code signature: %s", sig.description),
		}
	}
	return nil
}

// checkZipBomb opens the file as a zip archive and rejects excessive
// uncompressed size or compression ratio. Applies to docx files, which
// must be valid zip archives.
func (v *Validator) checkZipBomb(path, filename string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return &ValidationError{
				Filename: filename,
				Reason:   "invalid DOCX file (not a valid ZIP archive)",
			}
		}
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer reader.Close()

	var totalSize uint64
	for _, f := range reader.File {
		totalSize += f.UncompressedSize64
	}

	if totalSize > uint64(v.config.MaxExtractedBytes) {
		return &ValidationError{
			Filename: filename,
			Reason: fmt.Sprintf("compressed file extracts to %.1fMB, exceeds maximum %.0fMB",
				float64(totalSize)/(1024*1024),
				float64(v.config.MaxExtractedBytes)/(1024*1024)),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > 0 {
		ratio := float64(totalSize) / float64(info.Size())
		if ratio > maxCompressionRatio {
			return &ValidationError{
				Filename: filename,
				Reason:   fmt.Sprintf("suspicious compression ratio: %.1f:1 (possible zip bomb)", ratio),
			}
		}
	}

	return nil
}

// scanPDFContent rejects PDFs carrying active-content markers. Only the
// first MaxContentScanSize bytes are scanned.
func scanPDFContent(path, filename string) error {
	content, err := readHeader(path, MaxContentScanSize)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}

	for _, marker := range pdfActiveContentMarkers {
		if bytes.Contains(content, marker) {
			return &ValidationError{
				Filename: filename,
				Reason:   fmt.Sprintf("PDF contains potentially dangerous code: %s", marker),
			}
		}
	}
	return nil
}

// readHeader reads up to limit bytes from the start of the file.
func readHeader(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
