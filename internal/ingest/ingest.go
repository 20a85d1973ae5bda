// Package ingest feeds receipt files from directories into the upload boundary.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

// Uploader is the upload boundary.
type Uploader interface {
	Upload(ctx context.Context, req receipts.UploadRequest) (*entity.Receipt, *entity.ProcessingJob, error)
}

// Result is the per-file ingest outcome.
type Result struct {
	Path      string    `json:"path"`
	ReceiptID uuid.UUID `json:"receipt_id,omitempty"`
	JobID     uuid.UUID `json:"job_id,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
	HashHex   string    `json:"sha256"`
	Err       string    `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned    int `json:"scanned"`
	Matched    int `json:"matched"`
	Succeeded  int `json:"succeeded"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Allowed extensions for discovery (lowercase, without '.').
var defaultExts = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// Ingestor uploads files on behalf of one user. Content already uploaded by
// this Ingestor is skipped.
type Ingestor struct {
	uploader   Uploader
	uploadedBy uuid.UUID
	exts       map[string]struct{}
	logger     *slog.Logger

	mu   sync.Mutex
	seen map[string]uuid.UUID // sha256 -> receipt id
}

func NewIngestor(u Uploader, uploadedBy uuid.UUID, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		uploader:   u,
		uploadedBy: uploadedBy,
		exts:       defaultExts,
		logger:     logger,
		seen:       map[string]uuid.UUID{},
	}
}

// IngestPath uploads a single file.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	res.HashHex = hex.EncodeToString(sum[:])

	i.mu.Lock()
	if id, ok := i.seen[res.HashHex]; ok {
		i.mu.Unlock()
		res.ReceiptID, res.Duplicate = id, true
		i.logger.Info("ingest.duplicate", "path", path, "receipt_id", id)
		return res, nil
	}
	i.mu.Unlock()

	rec, job, err := i.uploader.Upload(ctx, receipts.UploadRequest{
		Data:       data,
		MimeType:   constants.MimeFromExt(filepath.Ext(path)),
		FileName:   filepath.Base(path),
		UploadedBy: i.uploadedBy,
	})
	if err != nil {
		i.logger.Warn("ingest.failed", "path", path, "err", err)
		return res, err
	}
	res.ReceiptID, res.JobID = rec.ID, job.ID

	i.mu.Lock()
	i.seen[res.HashHex] = rec.ID
	i.mu.Unlock()
	i.logger.Info("ingest.ok", "path", path, "receipt_id", rec.ID, "bytes", len(data))
	return res, nil
}

func (i *Ingestor) allowed(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := i.exts[ext]
	return ok
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
