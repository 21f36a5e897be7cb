package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sitecms-api/internal/dto"
	"github.com/noah-isme/sitecms-api/internal/models"
	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
	"github.com/noah-isme/sitecms-api/pkg/export"
	"github.com/noah-isme/sitecms-api/pkg/textutil"
)

const (
	exportRowLimit   = 1000
	maxIPLength      = 64
	maxUserAgentSize = 512
)

type inquiryStore interface {
	Create(ctx context.Context, inquiry *models.Inquiry) error
	GetByID(ctx context.Context, id string) (*models.Inquiry, error)
	List(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, int, error)
	ListAll(ctx context.Context, filter models.InquiryFilter, limit int) ([]models.Inquiry, error)
	Stats(ctx context.Context) (*models.InquiryStats, error)
	UpdateStatus(ctx context.Context, id string, status models.InquiryStatus) error
	UpdateStatusIf(ctx context.Context, id string, from, to models.InquiryStatus) (bool, error)
	Delete(ctx context.Context, id string, removeFiles func([]string) error) error
}

type threadReader interface {
	ListByInquiry(ctx context.Context, inquiryID string) ([]models.Reply, error)
}

type attachmentLinker interface {
	DownloadURL(reply *models.Reply) (string, error)
}

// ExportFormat selects the rendering used by Export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered inquiry export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// InquiryService owns the inquiry lifecycle: intake, admin views and
// status transitions, and cascading deletion.
type InquiryService struct {
	repo      inquiryStore
	replies   threadReader
	files     attachmentStager
	links     attachmentLinker
	text      *textutil.Processor
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	now       func() time.Time
}

// NewInquiryService constructs the service. links may be nil, in which case
// views carry no download URLs.
func NewInquiryService(repo inquiryStore, replies threadReader, files attachmentStager, links attachmentLinker, text *textutil.Processor, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *InquiryService {
	if validate == nil {
		validate = newValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = textutil.New()
	}
	return &InquiryService{
		repo:      repo,
		replies:   replies,
		files:     files,
		links:     links,
		text:      text,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		now:       time.Now,
	}
}

// Submit records a public contact form submission in status new.
func (s *InquiryService) Submit(ctx context.Context, req dto.SubmitInquiryRequest, meta dto.SubmissionMeta) (*models.Inquiry, error) {
	req.Name = s.text.StripHTML(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = s.text.StripHTMLPtr(req.Phone)
	req.Subject = s.text.StripHTMLPtr(req.Subject)
	req.Message = s.text.StripHTML(req.Message)

	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailure(err, "invalid inquiry payload")
	}

	inquiry := &models.Inquiry{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Subject:   req.Subject,
		Message:   req.Message,
		Status:    models.InquiryStatusNew,
		IPAddress: truncate(strings.TrimSpace(meta.IPAddress), maxIPLength),
		UserAgent: truncate(strings.TrimSpace(meta.UserAgent), maxUserAgentSize),
	}
	if err := s.repo.Create(ctx, inquiry); err != nil {
		return nil, appErrors.Internal(err, "failed to save inquiry")
	}

	s.metrics.InquirySubmitted()
	s.cache.Invalidate(ctx, inquiryCachePattern)
	s.logger.Info("inquiry submitted", zap.String("inquiry_id", inquiry.ID))
	return inquiry, nil
}

// List returns one page of inquiries matching filter together with pagination.
func (s *InquiryService) List(ctx context.Context, filter models.InquiryFilter, actor *models.JWTClaims) (*dto.InquiryListResponse, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	result, err := remember(ctx, s.cache, listCacheKey(filter), func(ctx context.Context) (dto.InquiryListResponse, error) {
		start := time.Now()
		items, total, err := s.repo.List(ctx, filter)
		s.metrics.ObserveDBQuery("inquiry_list", time.Since(start))
		if err != nil {
			return dto.InquiryListResponse{}, appErrors.Internal(err, "failed to list inquiries")
		}
		if items == nil {
			items = []models.Inquiry{}
		}
		return dto.InquiryListResponse{
			Items:      items,
			Pagination: models.Pagination{Total: total, Page: filter.Page, Limit: filter.PageSize},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// View returns the inquiry with its thread. Opening a new inquiry marks it read.
func (s *InquiryService) View(ctx context.Context, id string, actor *models.JWTClaims) (*dto.InquiryDetail, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	inquiry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if next := nextStatus(inquiry.Status, eventView, inquiry.ReplyCount); next != inquiry.Status {
		changed, err := s.repo.UpdateStatusIf(ctx, inquiry.ID, inquiry.Status, next)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to mark inquiry read")
		}
		if changed {
			inquiry.Status = next
			s.metrics.InquiryTransition(string(eventView), string(next))
			s.cache.Invalidate(ctx, inquiryCachePattern)
		} else if inquiry, err = s.load(ctx, inquiry.ID); err != nil {
			return nil, err
		}
	}

	replies, err := s.replies.ListByInquiry(ctx, inquiry.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load replies")
	}
	views := make([]dto.ReplyView, 0, len(replies))
	for i := range replies {
		views = append(views, s.replyView(&replies[i]))
	}
	return &dto.InquiryDetail{Inquiry: *inquiry, Replies: views}, nil
}

// Archive moves the inquiry to archived from any status.
func (s *InquiryService) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*dto.StatusResponse, error) {
	return s.transition(ctx, id, eventArchive, actor)
}

// Unarchive restores an archived inquiry to replied when it has replies and to
// new otherwise. Inquiries that are not archived are returned unchanged.
func (s *InquiryService) Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*dto.StatusResponse, error) {
	return s.transition(ctx, id, eventUnarchive, actor)
}

func (s *InquiryService) transition(ctx context.Context, id string, event inquiryEvent, actor *models.JWTClaims) (*dto.StatusResponse, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	inquiry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := nextStatus(inquiry.Status, event, inquiry.ReplyCount)
	if next == inquiry.Status {
		return &dto.StatusResponse{ID: inquiry.ID, Status: inquiry.Status}, nil
	}
	if err := s.repo.UpdateStatus(ctx, inquiry.ID, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to update inquiry status")
	}

	s.metrics.InquiryTransition(string(event), string(next))
	s.cache.Invalidate(ctx, inquiryCachePattern)
	s.logger.Info("inquiry status changed",
		zap.String("inquiry_id", inquiry.ID),
		zap.String("event", string(event)),
		zap.String("from", string(inquiry.Status)),
		zap.String("to", string(next)),
		zap.String("actor", actor.Identity()),
	)
	return &dto.StatusResponse{ID: inquiry.ID, Status: next}, nil
}

// Delete removes the inquiry, its replies and their attachment files.
func (s *InquiryService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := authorizeInquiryManager(actor); err != nil {
		return err
	}
	id, err := parseID(id)
	if err != nil {
		return err
	}

	cleanup := newAttachmentCleanup(s.files, s.metrics, s.logger, zap.String("inquiry_id", id))
	if err := s.repo.Delete(ctx, id, cleanup.Stage); err != nil {
		cleanup.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			s.logger.Error("inquiry delete rolled back", zap.String("inquiry_id", id), zap.Error(err))
			return appErr
		}
		return appErrors.Internal(err, "failed to delete inquiry")
	}
	cleanup.Commit()

	s.metrics.InquiryDeleted()
	s.cache.Invalidate(ctx, inquiryCachePattern)
	s.logger.Info("inquiry deleted", zap.String("inquiry_id", id), zap.String("actor", actor.Identity()))
	return nil
}

// Stats returns per-status counts for the admin badge.
func (s *InquiryService) Stats(ctx context.Context, actor *models.JWTClaims) (*models.InquiryStats, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	stats, err := remember(ctx, s.cache, inquiryStatsCacheKey, func(ctx context.Context) (models.InquiryStats, error) {
		start := time.Now()
		stats, err := s.repo.Stats(ctx)
		s.metrics.ObserveDBQuery("inquiry_stats", time.Since(start))
		if err != nil {
			return models.InquiryStats{}, appErrors.Internal(err, "failed to load inquiry stats")
		}
		return *stats, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Export renders the inquiries matching filter as CSV or PDF. Pagination is
// ignored and at most exportRowLimit rows are included.
func (s *InquiryService) Export(ctx context.Context, filter models.InquiryFilter, format ExportFormat, actor *models.JWTClaims) (*ExportFile, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListAll(ctx, filter, exportRowLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load inquiries for export")
	}
	dataset := inquiryDataset(items)
	stamp := s.now().UTC().Format("20060102-150405")

	switch format {
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Contact inquiries")
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render export")
		}
		return &ExportFile{Filename: "inquiries-" + stamp + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render export")
		}
		return &ExportFile{Filename: "inquiries-" + stamp + ".csv", ContentType: "text/csv; charset=utf-8", Content: content}, nil
	}
}

func (s *InquiryService) load(ctx context.Context, id string) (*models.Inquiry, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}
	inquiry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load inquiry")
	}
	return inquiry, nil
}

func (s *InquiryService) replyView(reply *models.Reply) dto.ReplyView {
	view := dto.ReplyView{Reply: *reply}
	rendered, err := s.text.RenderMarkdown(reply.ReplyMessage)
	if err != nil {
		s.logger.Warn("render reply markdown failed", zap.String("reply_id", reply.ID), zap.Error(err))
	} else {
		view.ReplyHTML = rendered
	}
	if s.links != nil && reply.HasAttachment() {
		url, err := s.links.DownloadURL(reply)
		if err != nil {
			s.logger.Warn("sign attachment url failed", zap.String("reply_id", reply.ID), zap.Error(err))
		} else {
			view.DownloadURL = url
		}
	}
	// The storage path is an internal handle; clients use the signed URL.
	view.AttachmentPath = nil
	return view
}

var (
	exportHeaders = []string{"ID", "Received", "Status", "Name", "Email", "Phone", "Subject", "Replies", "Message"}
	exportWeights = map[string]float64{"ID": 2.2, "Received": 1.5, "Status": 0.8, "Email": 1.6, "Subject": 1.6, "Replies": 0.6, "Message": 3}
)

func inquiryDataset(items []models.Inquiry) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]string{
			"ID":       item.ID,
			"Received": item.CreatedAt.UTC().Format(time.RFC3339),
			"Status":   string(item.Status),
			"Name":     item.Name,
			"Email":    item.Email,
			"Phone":    deref(item.Phone),
			"Subject":  deref(item.Subject),
			"Replies":  fmt.Sprintf("%d", item.ReplyCount),
			"Message":  item.Message,
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows, Weights: exportWeights}
}

func authorizeInquiryManager(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageInquiries() {
		return appErrors.ErrForbidden
	}
	return nil
}

func normalizeFilter(filter models.InquiryFilter) (models.InquiryFilter, error) {
	filter = filter.Normalize()
	if !models.ValidStatusFilter(filter.Status) {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status filter %q", filter.Status))
	}
	return filter, nil
}

// parseID rejects blank ids as invalid input. Ids that are not UUIDs can never
// match a row and are reported as not found.
func parseID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", appErrors.ErrNotFound
	}
	return parsed.String(), nil
}

func listCacheKey(filter models.InquiryFilter) string {
	raw := fmt.Sprintf("%s|%s|%d|%d|%s|%s", filter.Status, strings.ToLower(filter.Search), filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
	sum := sha256.Sum256([]byte(raw))
	return "inquiries:list:" + hex.EncodeToString(sum[:8])
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validationFailure converts validator errors into a single field level message.
func validationFailure(err error, fallback string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fallback)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// truncate cuts value to at most max bytes without splitting a rune.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := 0
	for i := range value {
		if i > max {
			break
		}
		cut = i
	}
	return value[:cut]
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
