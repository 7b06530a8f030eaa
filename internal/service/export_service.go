package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/internal/models"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
	"github.com/ScepterCode/class-admission-api/pkg/export"
	"github.com/ScepterCode/class-admission-api/pkg/storage"
)

// RosterFormat selects the rendered export format.
type RosterFormat string

// Supported formats.
const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	ExportID     string       `json:"export_id"`
	RelativePath string       `json:"-"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       RosterFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService renders class rosters (seated students plus the waitlist
// queue) into downloadable files behind signed URLs.
type ExportService struct {
	ledger   capacityLedger
	waitlist waitlistStore
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(ledger capacityLedger, waitlist waitlistStore, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		ledger:   ledger,
		waitlist: waitlist,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// GenerateRoster renders the waitlist roster for a class and returns a
// signed download reference.
func (s *ExportService) GenerateRoster(ctx context.Context, classID string, format RosterFormat) (*ExportResult, error) {
	class, err := s.ledger.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load class")
	}
	entries, err := s.waitlist.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list waitlist")
	}

	dataset := rosterDataset(entries)
	title := fmt.Sprintf("Waitlist Roster - %s", class.Name)

	var payload []byte
	switch format {
	case RosterFormatCSV:
		payload, err = s.csv.Render(dataset)
	case RosterFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("rosters/%s/%s_%s.%s", classID, time.Now().UTC().Format("20060102T150405"), exportID[:8], format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store roster")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Sugar().Infow("roster export generated",
		"class_id", classID, "format", format, "entries", len(entries))
	return &ExportResult{
		ExportID:     exportID,
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// OpenDownload validates a signed token and opens the referenced file.
func (s *ExportService) OpenDownload(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, nil
}

// Cleanup deletes stored exports older than the configured TTL.
func (s *ExportService) Cleanup() (int, error) {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("stale exports removed", "count", len(deleted))
	}
	return len(deleted), nil
}

func rosterDataset(entries []models.WaitlistEntry) export.Dataset {
	headers := []string{"Position", "Student ID", "Priority", "Added At", "Offer Expires"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		row := map[string]string{
			"Position":   strconv.Itoa(entry.Position),
			"Student ID": entry.StudentID,
			"Priority":   strconv.Itoa(entry.Priority),
			"Added At":   entry.AddedAt.UTC().Format(time.RFC3339),
		}
		if entry.NotificationExpiresAt != nil {
			row["Offer Expires"] = entry.NotificationExpiresAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
