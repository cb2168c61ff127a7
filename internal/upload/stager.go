package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docvault/internal/sanitize"
)

// stagerTracer for OpenTelemetry instrumentation.
var stagerTracer = otel.Tracer("docvault.upload")

// StagerConfig holds upload staging configuration.
type StagerConfig struct {
	// Dir is the root directory for stored uploads.
	// Default: "uploaded_docs"
	Dir string
}

// ApplyDefaults sets default values for unset fields.
func (c *StagerConfig) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = "uploaded_docs"
	}
}

// StagedFile describes an accepted upload after staging.
type StagedFile struct {
	// StoredFilename is the collision-free on-disk name (uuid + extension).
	StoredFilename string

	// OriginalFilename is the sanitized client-provided name.
	OriginalFilename string

	// Path is the final location of the stored file.
	Path string

	// Size is the stored byte count.
	Size int64

	// Extension is the lowercase extension including the dot.
	Extension string
}

// Stager writes uploads to a temporary path, validates them, and commits
// only files that pass every check. A rejected upload leaves nothing
// behind at the final path.
type Stager struct {
	config    StagerConfig
	validator *Validator
	logger    *zap.Logger
}

// NewStager creates a Stager.
func NewStager(config StagerConfig, validator *Validator, logger *zap.Logger) (*Stager, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory %s: %w", config.Dir, err)
	}

	return &Stager{config: config, validator: validator, logger: logger}, nil
}

// Stage streams the upload to a .tmp file under the tenant's directory,
// validates it, and renames it into place on success. On any failure the
// temporary file is removed.
func (s *Stager) Stage(ctx context.Context, tenantID, filename string, r io.Reader) (*StagedFile, error) {
	ctx, span := stagerTracer.Start(ctx, "Stager.Stage")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if err := sanitize.ValidateTenantID(tenantID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	cleanName, err := sanitize.Filename(filename)
	if err != nil {
		span.RecordError(err)
		return nil, &ValidationError{Filename: filename, Reason: "invalid filename"}
	}

	ext := strings.ToLower(filepath.Ext(cleanName))
	if !AllowedExtension(ext) {
		return nil, &ValidationError{
			Filename: cleanName,
			Reason:   fmt.Sprintf("file extension %q not in allowed list", ext),
		}
	}

	tenantDir := filepath.Join(s.config.Dir, sanitize.Identifier(tenantID))
	if err := os.MkdirAll(tenantDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tenant directory %s: %w", tenantDir, err)
	}

	storedName := uuid.NewString() + ext
	finalPath := filepath.Join(tenantDir, storedName)
	tmpPath := finalPath + ".tmp"

	size, err := writeTemp(tmpPath, r)
	if err != nil {
		removeQuiet(tmpPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("staging upload: %w", err)
	}

	if err := s.validator.Validate(tmpPath, cleanName); err != nil {
		removeQuiet(tmpPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.logger.Warn("upload rejected",
			zap.String("tenant_id", tenantID),
			zap.String("filename", cleanName),
			zap.Error(err),
		)
		return nil, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		removeQuiet(tmpPath)
		span.RecordError(err)
		return nil, fmt.Errorf("committing upload to %s: %w", finalPath, err)
	}

	span.SetAttributes(
		attribute.String("stored_filename", storedName),
		attribute.Int64("size", size),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("upload staged",
		zap.String("tenant_id", tenantID),
		zap.String("filename", cleanName),
		zap.String("stored_filename", storedName),
		zap.Int64("size", size),
	)

	return &StagedFile{
		StoredFilename:   storedName,
		OriginalFilename: cleanName,
		Path:             finalPath,
		Size:             size,
		Extension:        ext,
	}, nil
}

// writeTemp copies the stream to path and returns the byte count.
func writeTemp(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return size, err
}

// removeQuiet deletes a file, ignoring errors. Stray .tmp files are
// overwritten by the next staging attempt for the same path.
func removeQuiet(path string) {
	_ = os.Remove(path)
}
