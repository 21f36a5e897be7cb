package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sitecms-api/internal/models"
)

const replyColumns = `id, inquiry_id, reply_message, sent_by, sent_at,
       attachment_filename, attachment_path, attachment_size, attachment_mime`

// ReplyRepository persists replies threaded under inquiries.
type ReplyRepository struct {
	db *sqlx.DB
}

// NewReplyRepository constructs the repository.
func NewReplyRepository(db *sqlx.DB) *ReplyRepository {
	return &ReplyRepository{db: db}
}

// CreateAndMarkReplied inserts the reply and moves its inquiry to replied in a
// single transaction. It returns the inquiry's reply count after the insert,
// or sql.ErrNoRows when the inquiry does not exist.
func (r *ReplyRepository) CreateAndMarkReplied(ctx context.Context, reply *models.Reply) (replyCount int, err error) {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.SentAt.IsZero() {
		reply.SentAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create reply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.InquiryStatus
	if err = tx.GetContext(ctx, &status, `SELECT status FROM contact_inquiries WHERE id = $1 FOR UPDATE`, reply.InquiryID); err != nil {
		return 0, err
	}

	const insert = `INSERT INTO contact_replies
	(id, inquiry_id, reply_message, sent_by, sent_at, attachment_filename, attachment_path, attachment_size, attachment_mime)
	VALUES (:id, :inquiry_id, :reply_message, :sent_by, :sent_at, :attachment_filename, :attachment_path, :attachment_size, :attachment_mime)`
	if _, err = tx.NamedExecContext(ctx, insert, reply); err != nil {
		return 0, fmt.Errorf("insert reply: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE contact_inquiries SET status = $2, updated_at = $3 WHERE id = $1`,
		reply.InquiryID, models.InquiryStatusReplied, reply.SentAt); err != nil {
		return 0, fmt.Errorf("mark inquiry replied: %w", err)
	}

	if err = tx.GetContext(ctx, &replyCount, `SELECT COUNT(*) FROM contact_replies WHERE inquiry_id = $1`, reply.InquiryID); err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create reply: %w", err)
	}
	return replyCount, nil
}

// GetByID loads one reply.
func (r *ReplyRepository) GetByID(ctx context.Context, id string) (*models.Reply, error) {
	query := `SELECT ` + replyColumns + ` FROM contact_replies WHERE id = $1`
	var reply models.Reply
	if err := r.db.GetContext(ctx, &reply, query, id); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ListByInquiry returns the thread in sent order.
func (r *ReplyRepository) ListByInquiry(ctx context.Context, inquiryID string) ([]models.Reply, error) {
	query := `SELECT ` + replyColumns + ` FROM contact_replies WHERE inquiry_id = $1 ORDER BY sent_at ASC, id ASC`
	replies := make([]models.Reply, 0)
	if err := r.db.SelectContext(ctx, &replies, query, inquiryID); err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return replies, nil
}

// Delete removes the reply row. removeFile runs with the locked row before
// commit so the row and its attachment disappear together; an error from it
// rolls the row back. Returns sql.ErrNoRows when the reply is missing.
func (r *ReplyRepository) Delete(ctx context.Context, id string, removeFile func(*models.Reply) error) (deleted *models.Reply, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete reply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var reply models.Reply
	if err = tx.GetContext(ctx, &reply, `SELECT `+replyColumns+` FROM contact_replies WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM contact_replies WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete reply: %w", err)
	}

	if removeFile != nil && reply.HasAttachment() {
		if err = removeFile(&reply); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete reply: %w", err)
	}
	return &reply, nil
}

// ListAttachmentPaths returns every attachment path referenced by a reply.
func (r *ReplyRepository) ListAttachmentPaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0)
	if err := r.db.SelectContext(ctx, &paths, `SELECT attachment_path FROM contact_replies WHERE attachment_path IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list attachment paths: %w", err)
	}
	return paths, nil
}
