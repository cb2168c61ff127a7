package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docvault/internal/document"
	"github.com/fyrsmithlabs/docvault/internal/upload"
)

var uploadIngest bool

var uploadCmd = &cobra.Command{
	Use:   "upload <tenant-id> <file>",
	Short: "Validate, store, and register a document",
	Long: `Upload a document for a tenant. The file is validated (size,
extension, content signatures), staged, counted against the tenant's
quota, and registered as pending.

Examples:
  # Upload a document
  docvault upload acme-corp report.pdf

  # Upload and immediately ingest it
  docvault upload acme-corp report.pdf --ingest`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadIngest, "ingest", false, "ingest the document after upload")
}

func runUpload(cmd *cobra.Command, args []string) error {
	tenantID, path := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	ctx := cmd.Context()

	staged, err := a.stager.Stage(ctx, tenantID, path, f)
	if err != nil {
		return err
	}

	doc, err := a.manager.Register(ctx, tenantID, document.RegisterParams{
		StoredFilename:   staged.StoredFilename,
		OriginalFilename: staged.OriginalFilename,
		FilePath:         staged.Path,
		FileSize:         staged.Size,
		FileType:         staged.Extension,
	})
	if err != nil {
		// The staged file must not outlive a failed registration.
		_ = os.Remove(staged.Path)
		return err
	}

	fmt.Printf("Uploaded %s (%d bytes) as document %s\n", staged.OriginalFilename, staged.Size, doc.ID)

	if uploadIngest {
		if err := a.ingestor.IngestDocument(ctx, tenantID, doc.ID); err != nil {
			return err
		}
		fmt.Println("Document ingested")
	}

	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Run upload validation against a file without storing it",
	Long: `Check whether a file would pass upload validation: size limit,
extension allow-list, executable signatures, zip bomb detection for
docx, and active-content scanning for PDF.

Examples:
  docvault validate report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	validator := upload.NewValidator(upload.ValidatorConfig{
		MaxFileSizeBytes: a.cfg.Upload.MaxFileSizeBytes,
	}, a.logger)

	if err := validator.Validate(path, path); err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", path)
	return nil
}
