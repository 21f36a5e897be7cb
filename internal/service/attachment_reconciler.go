package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sitecms-api/pkg/jobs"
	"github.com/noah-isme/sitecms-api/pkg/storage"
)

// JobTypeReconcileAttachments identifies reconcile jobs on the background queue.
const JobTypeReconcileAttachments = "attachments.reconcile"

type attachmentReferenceLister interface {
	ListAttachmentPaths(ctx context.Context) ([]string, error)
}

type attachmentInventory interface {
	List() ([]storage.StoredFile, error)
	Delete(logicalPath string) error
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	Referenced     int      `json:"referenced"`
	Stored         int      `json:"stored"`
	Missing        []string `json:"missing"`
	OrphansRemoved []string `json:"orphans_removed"`
	OrphansKept    int      `json:"orphans_kept"`
}

// AttachmentReconciler compares reply rows with the files on disk. Orphaned
// files past the grace period are removed; rows whose file is gone are only
// reported.
type AttachmentReconciler struct {
	refs    attachmentReferenceLister
	files   attachmentInventory
	metrics *MetricsService
	logger  *zap.Logger
	grace   time.Duration
	now     func() time.Time
}

// NewAttachmentReconciler wires the reconciler. grace <= 0 defaults to 24h.
func NewAttachmentReconciler(refs attachmentReferenceLister, files attachmentInventory, metrics *MetricsService, logger *zap.Logger, grace time.Duration) *AttachmentReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &AttachmentReconciler{refs: refs, files: files, metrics: metrics, logger: logger, grace: grace, now: time.Now}
}

// Run performs one reconciliation pass.
func (r *AttachmentReconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveReconcile(time.Since(start)) }()

	paths, err := r.refs.ListAttachmentPaths(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := r.files.List()
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[p] = struct{}{}
	}
	onDisk := make(map[string]struct{}, len(stored))

	report := &ReconcileReport{Referenced: len(paths), Stored: len(stored), Missing: []string{}, OrphansRemoved: []string{}}
	cutoff := r.now().Add(-r.grace)
	for _, file := range stored {
		onDisk[file.Path] = struct{}{}
		if _, ok := referenced[file.Path]; ok {
			continue
		}
		if file.ModTime.After(cutoff) {
			report.OrphansKept++
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.files.Delete(file.Path); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			r.logger.Warn("failed to remove orphaned attachment", zap.String("path", file.Path), zap.Error(err))
			continue
		}
		report.OrphansRemoved = append(report.OrphansRemoved, file.Path)
	}

	for _, p := range paths {
		if _, ok := onDisk[p]; !ok {
			report.Missing = append(report.Missing, p)
			r.logger.Warn("attachment referenced by reply is missing", zap.String("path", p))
		}
	}

	r.metrics.OrphansRemoved(len(report.OrphansRemoved))
	r.metrics.AttachmentMissing(len(report.Missing))
	r.logger.Info("attachment reconciliation finished",
		zap.Int("referenced", report.Referenced),
		zap.Int("stored", report.Stored),
		zap.Int("missing", len(report.Missing)),
		zap.Int("orphans_removed", len(report.OrphansRemoved)),
		zap.Int("orphans_kept", report.OrphansKept),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// HandleJob adapts Run to the background queue.
func (r *AttachmentReconciler) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeReconcileAttachments {
		return nil
	}
	_, err := r.Run(ctx)
	return err
}
