package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sitecms-api/internal/models"
)

const inquiryColumns = `i.id, i.name, i.email, i.phone, i.subject, i.message, i.status, i.ip_address, i.user_agent,
       i.created_at, i.updated_at,
       (SELECT COUNT(*) FROM contact_replies r WHERE r.inquiry_id = i.id) AS reply_count`

// InquiryRepository persists contact inquiries.
type InquiryRepository struct {
	db *sqlx.DB
}

// NewInquiryRepository constructs the repository.
func NewInquiryRepository(db *sqlx.DB) *InquiryRepository {
	return &InquiryRepository{db: db}
}

// Create inserts a new inquiry. Status defaults to new.
func (r *InquiryRepository) Create(ctx context.Context, inquiry *models.Inquiry) error {
	if inquiry.ID == "" {
		inquiry.ID = uuid.NewString()
	}
	if inquiry.Status == "" {
		inquiry.Status = models.InquiryStatusNew
	}
	now := time.Now().UTC()
	if inquiry.CreatedAt.IsZero() {
		inquiry.CreatedAt = now
	}
	inquiry.UpdatedAt = inquiry.CreatedAt

	const query = `INSERT INTO contact_inquiries
	(id, name, email, phone, subject, message, status, ip_address, user_agent, created_at, updated_at)
	VALUES (:id, :name, :email, :phone, :subject, :message, :status, :ip_address, :user_agent, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inquiry); err != nil {
		return fmt.Errorf("create inquiry: %w", err)
	}
	return nil
}

// GetByID loads one inquiry with its derived reply count.
func (r *InquiryRepository) GetByID(ctx context.Context, id string) (*models.Inquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM contact_inquiries i WHERE i.id = $1`
	var inquiry models.Inquiry
	if err := r.db.GetContext(ctx, &inquiry, query, id); err != nil {
		return nil, err
	}
	return &inquiry, nil
}

// List returns one page of inquiries plus the filtered total. The filter is
// expected to be normalised.
func (r *InquiryRepository) List(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, int, error) {
	where, args, err := buildInquiryWhere(filter)
	if err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM contact_inquiries i` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count inquiries: %w", err)
	}

	items, err := r.selectPage(ctx, where, args, filter, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAll returns up to limit inquiries matching the filter, ignoring paging.
func (r *InquiryRepository) ListAll(ctx context.Context, filter models.InquiryFilter, limit int) ([]models.Inquiry, error) {
	where, args, err := buildInquiryWhere(filter)
	if err != nil {
		return nil, err
	}
	return r.selectPage(ctx, where, args, filter, limit, 0)
}

func (r *InquiryRepository) selectPage(ctx context.Context, where string, args []interface{}, filter models.InquiryFilter, limit, offset int) ([]models.Inquiry, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT ` + inquiryColumns + ` FROM contact_inquiries i`)
	builder.WriteString(where)
	builder.WriteString(" ORDER BY ")
	builder.WriteString(sortExpression(filter.SortBy))
	builder.WriteString(" ")
	builder.WriteString(sortDirection(filter.SortOrder))
	builder.WriteString(", i.id ASC")
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	items := make([]models.Inquiry, 0)
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list inquiries: %w", err)
	}
	return items, nil
}

// Stats aggregates counts per status plus the number of inquiries with replies.
func (r *InquiryRepository) Stats(ctx context.Context) (*models.InquiryStats, error) {
	const query = `SELECT
       COUNT(*) FILTER (WHERE i.status = 'new') AS new_count,
       COUNT(*) FILTER (WHERE i.status = 'read') AS read_count,
       COUNT(*) FILTER (WHERE i.status = 'replied') AS replied_count,
       COUNT(*) FILTER (WHERE i.status = 'archived') AS archived_count,
       COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM contact_replies r WHERE r.inquiry_id = i.id)) AS sent_count,
       COUNT(*) AS total_count
	FROM contact_inquiries i`
	var stats models.InquiryStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("inquiry stats: %w", err)
	}
	return &stats, nil
}

// UpdateStatus overwrites the status. Returns sql.ErrNoRows when the inquiry is missing.
func (r *InquiryRepository) UpdateStatus(ctx context.Context, id string, status models.InquiryStatus) error {
	const query = `UPDATE contact_inquiries SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update inquiry status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check inquiry status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusIf moves the inquiry from one status to another only when it is
// still in the expected status. It reports whether a row changed.
func (r *InquiryRepository) UpdateStatusIf(ctx context.Context, id string, from, to models.InquiryStatus) (bool, error) {
	const query = `UPDATE contact_inquiries SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition inquiry status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check inquiry transition rows: %w", err)
	}
	return affected > 0, nil
}

// Delete removes the inquiry and its replies in one transaction. removeFiles
// receives the attachment paths of the deleted replies and runs before commit;
// an error from it rolls the deletion back.
func (r *InquiryRepository) Delete(ctx context.Context, id string, removeFiles func([]string) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete inquiry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM contact_inquiries WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	paths := make([]string, 0)
	if err = tx.SelectContext(ctx, &paths, `SELECT attachment_path FROM contact_replies
	WHERE inquiry_id = $1 AND attachment_path IS NOT NULL ORDER BY sent_at ASC, id ASC`, id); err != nil {
		return fmt.Errorf("collect inquiry attachments: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM contact_replies WHERE inquiry_id = $1`, id); err != nil {
		return fmt.Errorf("delete inquiry replies: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM contact_inquiries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete inquiry: %w", err)
	}

	if removeFiles != nil && len(paths) > 0 {
		if err = removeFiles(paths); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete inquiry: %w", err)
	}
	return nil
}

func buildInquiryWhere(filter models.InquiryFilter) (string, []interface{}, error) {
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)

	switch filter.Status {
	case models.StatusFilterDefault:
		conditions = append(conditions, "i.status <> 'archived'")
	case models.StatusFilterAll:
	case models.StatusFilterSent:
		conditions = append(conditions, "EXISTS (SELECT 1 FROM contact_replies r WHERE r.inquiry_id = i.id)")
	default:
		if !models.InquiryStatus(filter.Status).Valid() {
			return "", nil, fmt.Errorf("unsupported status filter %q", filter.Status)
		}
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)))
	}

	if filter.Search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
		n := len(args)
		// One haystack so a term may span adjacent fields.
		conditions = append(conditions, fmt.Sprintf(`LOWER(i.name || i.email || COALESCE(i.phone, '') || COALESCE(i.subject, '') || i.message) LIKE $%d ESCAPE '\'`, n))
	}

	if len(conditions) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

func sortExpression(sortBy string) string {
	switch sortBy {
	case models.SortByEmail:
		return "LOWER(i.email)"
	case models.SortBySubject:
		return "LOWER(COALESCE(i.subject, ''))"
	default:
		return "i.created_at"
	}
}

func sortDirection(order string) string {
	if strings.EqualFold(order, "ASC") {
		return "ASC"
	}
	return "DESC"
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
