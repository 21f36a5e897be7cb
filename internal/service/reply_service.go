package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sitecms-api/internal/dto"
	"github.com/noah-isme/sitecms-api/internal/models"
	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
	"github.com/noah-isme/sitecms-api/pkg/storage"
	"github.com/noah-isme/sitecms-api/pkg/textutil"
)

const (
	sniffLength         = 3072
	maxAttachmentName   = 255
	defaultAttachmentMB = 10
)

// DefaultReplyAttachmentMIMEs is the reply allowlist: office documents,
// images and archives. It is wider than the catalog image upload allowlist.
var DefaultReplyAttachmentMIMEs = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"text/rtf",
	"text/plain",
	"text/csv",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
	"image/heic",
	"application/zip",
	"application/x-7z-compressed",
	"application/x-rar-compressed",
	"application/gzip",
	"application/x-tar",
}

type replyStore interface {
	CreateAndMarkReplied(ctx context.Context, reply *models.Reply) (int, error)
	GetByID(ctx context.Context, id string) (*models.Reply, error)
	Delete(ctx context.Context, id string, removeFile func(*models.Reply) error) (*models.Reply, error)
}

type inquiryLookup interface {
	GetByID(ctx context.Context, id string) (*models.Inquiry, error)
}

type attachmentSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (*storage.SignedToken, error)
}

// ReplyAttachment is an uploaded file accompanying a reply.
type ReplyAttachment struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// AttachmentDownload is an opened attachment ready to stream. Callers close File.
type AttachmentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// ReplyServiceConfig holds attachment validation and link settings.
type ReplyServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// ReplyService records operator replies and manages their attachments.
type ReplyService struct {
	repo      replyStore
	inquiries inquiryLookup
	store     storage.AttachmentStore
	signer    attachmentSigner
	text      *textutil.Processor
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReplyServiceConfig
	mimeSet   map[string]struct{}
}

// NewReplyService constructs the service with defaults.
func NewReplyService(repo replyStore, inquiries inquiryLookup, store storage.AttachmentStore, signer attachmentSigner, text *textutil.Processor, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReplyServiceConfig) *ReplyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = newValidator()
	}
	if text == nil {
		text = textutil.New()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultAttachmentMB * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = DefaultReplyAttachmentMIMEs
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &ReplyService{
		repo:      repo,
		inquiries: inquiries,
		store:     store,
		signer:    signer,
		text:      text,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
	}
}

// CreateReply records a reply and moves the inquiry to replied. The attachment,
// when present, is written before the row and removed again if the row cannot
// be committed.
func (s *ReplyService) CreateReply(ctx context.Context, req dto.CreateReplyRequest, attachment *ReplyAttachment, actor *models.JWTClaims) (*dto.ReplyResult, error) {
	if err := authorizeInquiryManager(actor); err != nil {
		return nil, err
	}
	req.ReplyMessage = s.text.StripHTML(req.ReplyMessage)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailure(err, "invalid reply payload")
	}
	inquiryID, err := parseID(req.InquiryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.inquiries.GetByID(ctx, inquiryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load inquiry")
	}

	reply := &models.Reply{
		ID:           uuid.NewString(),
		InquiryID:    inquiryID,
		ReplyMessage: req.ReplyMessage,
		SentBy:       actor.Identity(),
		SentAt:       time.Now().UTC(),
	}

	var written int64
	if attachment != nil {
		if written, err = s.storeAttachment(reply, attachment); err != nil {
			return nil, err
		}
	}

	count, err := s.repo.CreateAndMarkReplied(ctx, reply)
	if err != nil {
		s.discardAttachment(reply)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to save reply")
	}

	s.metrics.ReplySent(written)
	s.metrics.InquiryTransition(string(eventReply), string(models.InquiryStatusReplied))
	s.cache.Invalidate(ctx, inquiryCachePattern)
	s.logger.Info("reply recorded",
		zap.String("reply_id", reply.ID),
		zap.String("inquiry_id", inquiryID),
		zap.Bool("attachment", reply.HasAttachment()),
		zap.String("actor", actor.Identity()),
	)

	result := &dto.ReplyResult{
		Reply:      *reply,
		Status:     models.InquiryStatusReplied,
		ReplyCount: count,
	}
	result.Reply.AttachmentPath = nil
	return result, nil
}

func (s *ReplyService) storeAttachment(reply *models.Reply, attachment *ReplyAttachment) (int64, error) {
	if attachment.Content == nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "attachment is empty")
	}
	if attachment.Size > s.cfg.MaxFileSize {
		return 0, appErrors.Clone(appErrors.ErrValidation, "file too large")
	}

	header := make([]byte, sniffLength)
	n, err := io.ReadFull(attachment.Content, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, appErrors.Internal(err, "failed to read attachment")
	}
	if n == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "attachment is empty")
	}
	header = header[:n]

	mimeType := baseMediaType(mimetype.Detect(header).String())
	if _, ok := s.mimeSet[mimeType]; !ok {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attachment type %s is not allowed", mimeType))
	}

	content := io.MultiReader(bytes.NewReader(header), attachment.Content)
	logicalPath, written, err := s.store.Store(reply.ID, content, attachment.Filename)
	if err != nil {
		return 0, storageFailure(err)
	}

	filename := displayName(attachment.Filename, logicalPath)
	reply.AttachmentFilename = &filename
	reply.AttachmentPath = &logicalPath
	reply.AttachmentSize = &written
	reply.AttachmentMime = &mimeType
	return written, nil
}

func (s *ReplyService) discardAttachment(reply *models.Reply) {
	if !reply.HasAttachment() {
		return
	}
	if err := s.store.Delete(*reply.AttachmentPath); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
		s.logger.Error("failed to remove attachment after aborted reply",
			zap.String("reply_id", reply.ID),
			zap.String("path", *reply.AttachmentPath),
			zap.Error(err),
		)
	}
}

// DeleteReply removes the reply row and its attachment file together. A file
// that is already gone is logged and does not block the delete; an unsafe
// stored path rejects it. The inquiry status is left as is.
func (s *ReplyService) DeleteReply(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := authorizeInquiryManager(actor); err != nil {
		return err
	}
	id, err := parseID(id)
	if err != nil {
		return err
	}

	cleanup := newAttachmentCleanup(s.store, s.metrics, s.logger, zap.String("reply_id", id))
	deleted, err := s.repo.Delete(ctx, id, func(reply *models.Reply) error {
		return cleanup.Stage([]string{*reply.AttachmentPath})
	})
	if err != nil {
		cleanup.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			s.logger.Error("reply delete rolled back", zap.String("reply_id", id), zap.Error(err))
			return appErr
		}
		return appErrors.Internal(err, "failed to delete reply")
	}
	cleanup.Commit()

	s.metrics.ReplyDeleted()
	s.cache.Invalidate(ctx, inquiryCachePattern)
	s.logger.Info("reply deleted", zap.String("reply_id", id), zap.String("inquiry_id", deleted.InquiryID), zap.String("actor", actor.Identity()))
	return nil
}

// DownloadURL returns a signed link for the reply's attachment.
func (s *ReplyService) DownloadURL(reply *models.Reply) (string, error) {
	if !reply.HasAttachment() {
		return "", nil
	}
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	token, _, err := s.signer.Generate(reply.ID, *reply.AttachmentPath)
	if err != nil {
		return "", appErrors.Internal(err, "failed to generate download token")
	}
	q := url.Values{}
	q.Set("action", "attachment")
	q.Set("reply_id", reply.ID)
	q.Set("token", token)
	return strings.TrimRight(s.cfg.APIPrefix, "/") + "/contact?" + q.Encode(), nil
}

// OpenAttachment checks the signed token and opens the reply's file.
func (s *ReplyService) OpenAttachment(ctx context.Context, replyID, token string) (*AttachmentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	replyID, err := parseID(replyID)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}

	reply, err := s.repo.GetByID(ctx, replyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load reply")
	}
	if !reply.HasAttachment() {
		return nil, appErrors.ErrNotFound
	}
	if signed.ResourceID != reply.ID || signed.Path != *reply.AttachmentPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.store.Open(*reply.AttachmentPath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			s.metrics.AttachmentMissing(1)
			s.logger.Warn("attachment missing on download", zap.String("reply_id", reply.ID), zap.String("path", *reply.AttachmentPath))
		}
		return nil, storageFailure(err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Storage(err)
	}

	download := &AttachmentDownload{
		File:      file,
		Filename:  path.Base(*reply.AttachmentPath),
		SizeBytes: info.Size(),
		ExpiresAt: signed.ExpiresAt,
	}
	if reply.AttachmentFilename != nil {
		download.Filename = *reply.AttachmentFilename
	}
	if reply.AttachmentMime != nil {
		download.MimeType = *reply.AttachmentMime
	}
	return download, nil
}

// storageFailure maps attachment store errors onto the API error taxonomy.
func storageFailure(err error) error {
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, storage.ErrFileTooLarge):
		return appErrors.Clone(appErrors.ErrValidation, "file too large")
	case errors.Is(err, storage.ErrOutsideRoot), errors.Is(err, storage.ErrNotAFile):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attachment path")
	default:
		return appErrors.Storage(err)
	}
}

func baseMediaType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.ToLower(mediaType)
}

// displayName keeps the uploader's base filename for Content-Disposition,
// falling back to the stored name.
func displayName(declared, logicalPath string) string {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(declared, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		name = path.Base(logicalPath)
	}
	return truncate(name, maxAttachmentName)
}
