package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sitecms-api/pkg/storage"
)

type attachmentStager interface {
	Stage(logicalPath string) (string, error)
	Restore(stagedPath, logicalPath string) error
	Delete(logicalPath string) error
}

type stagedAttachment struct {
	original string
	staged   string
}

// attachmentCleanup moves attachment files aside while a delete transaction
// is open. Staged files are dropped after the commit and moved back when the
// transaction does not commit, so rows and files go away together or not at all.
type attachmentCleanup struct {
	store   attachmentStager
	metrics *MetricsService
	logger  *zap.Logger
	owner   zap.Field
	staged  []stagedAttachment
}

func newAttachmentCleanup(store attachmentStager, metrics *MetricsService, logger *zap.Logger, owner zap.Field) *attachmentCleanup {
	return &attachmentCleanup{store: store, metrics: metrics, logger: logger, owner: owner}
}

// Stage moves every path aside. A file that is already gone is counted and
// skipped. Any other failure restores what was staged so far and is returned,
// with unsafe paths reported as validation errors.
func (c *attachmentCleanup) Stage(paths []string) error {
	if c.store == nil {
		return nil
	}
	for _, path := range paths {
		staged, err := c.store.Stage(path)
		switch {
		case err == nil:
			c.staged = append(c.staged, stagedAttachment{original: path, staged: staged})
		case errors.Is(err, storage.ErrFileNotFound):
			c.metrics.AttachmentMissing(1)
			c.logger.Warn("attachment already missing", c.owner, zap.String("path", path))
		default:
			c.logger.Error("failed to stage attachment for removal", c.owner, zap.String("path", path), zap.Error(err))
			c.Rollback()
			return storageFailure(err)
		}
	}
	return nil
}

// Commit drops the staged files. A file that cannot be dropped stays in the
// trash folder and is collected by the reconciler.
func (c *attachmentCleanup) Commit() {
	for _, item := range c.staged {
		if err := c.store.Delete(item.staged); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			c.logger.Warn("failed to purge staged attachment", c.owner, zap.String("path", item.staged), zap.Error(err))
		}
	}
	c.staged = nil
}

// Rollback moves staged files back in reverse order.
func (c *attachmentCleanup) Rollback() {
	for i := len(c.staged) - 1; i >= 0; i-- {
		item := c.staged[i]
		if err := c.store.Restore(item.staged, item.original); err != nil {
			c.logger.Error("failed to restore staged attachment", c.owner,
				zap.String("path", item.original),
				zap.String("staged", item.staged),
				zap.Error(err),
			)
		}
	}
	c.staged = nil
}
