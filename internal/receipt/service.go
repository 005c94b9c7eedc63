package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// Extractor turns an uploaded receipt into a draft.
type Extractor interface {
	Process(ctx context.Context, raw scanning.RawImage) (*scanning.Draft, error)
	Capabilities() map[string]bool
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service stores uploads, runs extraction and persists the resulting drafts.
type Service struct {
	db          DB
	extractor   Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

func NewService(db DB, extractor Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpace       = regexp.MustCompile(`\s+`)
)

const maxFilenameBase = 50

// sanitizeFilename strips special characters from phone-generated names and caps their length.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpace.ReplaceAllString(base, " "))
	if len(base) > maxFilenameBase {
		base = base[:maxFilenameBase]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// ProcessReceipt saves the upload, extracts a draft from it and stores the result.
// Undecodable uploads are removed again and the *scanning.DecodeError is returned.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	draft, err := s.extractor.Process(ctx, scanning.RawImage{Data: data, MimeType: contentType})
	if err != nil {
		slog.Error("Failed to extract receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	receipt := fromDraft(id, draft)
	receipt.Filename = savedPath
	receipt.ContentType = contentType
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	if receipt.NeedsReview {
		slog.Info("Receipt queued for review",
			"id", receipt.ID,
			"tier", receipt.Tier,
			"confidence", receipt.Confidence,
		)
	}
	return receipt, nil
}

func (s *Service) removeFile(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete file", "filename", name, "error", err)
	}
}

func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, or only those still awaiting review.
func (s *Service) ListReceipts(needsReviewOnly bool) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	if !needsReviewOnly {
		return receipts, nil
	}

	pending := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.NeedsReview {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// MarkReviewed clears the review flag after a person has checked the receipt.
func (s *Service) MarkReviewed(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	now := s.timeSource.Now()
	receipt.NeedsReview = false
	receipt.ReviewedAt = &now
	receipt.UpdatedAt = now
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("updating receipt: %w", err)
	}
	return receipt, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	// the record goes even if the file is already gone
	s.removeFile(receipt.Filename)

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, receipt.ContentType, nil
}

// Capabilities reports which extraction backends are currently usable.
func (s *Service) Capabilities() map[string]bool {
	return s.extractor.Capabilities()
}

// IsDecodeError reports whether err came from an upload that is not a readable image.
func IsDecodeError(err error) bool {
	var decodeErr *scanning.DecodeError
	return errors.As(err, &decodeErr)
}
