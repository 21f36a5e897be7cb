package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sitecms-api/internal/dto"
	"github.com/noah-isme/sitecms-api/internal/models"
	"github.com/noah-isme/sitecms-api/internal/service"
	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
	"github.com/noah-isme/sitecms-api/pkg/response"
)

// Actions dispatched by the contact endpoint.
const (
	ActionList        = "list"
	ActionView        = "view"
	ActionStats       = "stats"
	ActionExport      = "export"
	ActionAttachment  = "attachment"
	ActionReply       = "reply"
	ActionDeleteReply = "delete_reply"
	ActionArchive     = "archive"
	ActionUnarchive   = "unarchive"
	ActionDelete      = "delete"
)

// ContactActions lists every action the endpoint understands.
var ContactActions = []string{
	ActionList, ActionView, ActionStats, ActionExport, ActionAttachment,
	ActionReply, ActionDeleteReply, ActionArchive, ActionUnarchive, ActionDelete,
}

type inquiryService interface {
	Submit(ctx context.Context, req dto.SubmitInquiryRequest, meta dto.SubmissionMeta) (*models.Inquiry, error)
	List(ctx context.Context, filter models.InquiryFilter, actor *models.JWTClaims) (*dto.InquiryListResponse, error)
	View(ctx context.Context, id string, actor *models.JWTClaims) (*dto.InquiryDetail, error)
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*dto.StatusResponse, error)
	Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*dto.StatusResponse, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Stats(ctx context.Context, actor *models.JWTClaims) (*models.InquiryStats, error)
	Export(ctx context.Context, filter models.InquiryFilter, format service.ExportFormat, actor *models.JWTClaims) (*service.ExportFile, error)
}

type replyService interface {
	CreateReply(ctx context.Context, req dto.CreateReplyRequest, attachment *service.ReplyAttachment, actor *models.JWTClaims) (*dto.ReplyResult, error)
	DeleteReply(ctx context.Context, id string, actor *models.JWTClaims) error
	OpenAttachment(ctx context.Context, replyID, token string) (*service.AttachmentDownload, error)
}

// ContactHandler serves the action-dispatched contact endpoint.
type ContactHandler struct {
	inquiries inquiryService
	replies   replyService
	logger    *zap.Logger
}

// NewContactHandler constructs the handler.
func NewContactHandler(inquiries inquiryService, replies replyService, logger *zap.Logger) *ContactHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactHandler{inquiries: inquiries, replies: replies, logger: logger}
}

// Get dispatches read actions.
func (h *ContactHandler) Get(c *gin.Context) {
	switch c.Query("action") {
	case ActionList:
		h.List(c)
	case ActionView:
		h.View(c)
	case ActionStats:
		h.Stats(c)
	case ActionExport:
		h.Export(c)
	case ActionAttachment:
		h.Attachment(c)
	default:
		response.Error(c, unknownAction(c.Query("action")))
	}
}

// Post dispatches write actions. A POST without an action is a public submission.
func (h *ContactHandler) Post(c *gin.Context) {
	switch c.Query("action") {
	case "":
		h.Submit(c)
	case ActionReply:
		h.Reply(c)
	case ActionDeleteReply:
		h.DeleteReply(c)
	case ActionArchive:
		h.Archive(c)
	case ActionUnarchive:
		h.Unarchive(c)
	case ActionDelete:
		h.Delete(c)
	default:
		response.Error(c, unknownAction(c.Query("action")))
	}
}

// Submit godoc
// @Summary Submit contact inquiry
// @Tags Contact
// @Accept json
// @Produce json
// @Param payload body dto.SubmitInquiryRequest true "Inquiry"
// @Success 201 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Submit(c *gin.Context) {
	var req dto.SubmitInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindFailure(err))
		return
	}
	inquiry, err := h.inquiries.Submit(c.Request.Context(), req, submissionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.SubmitInquiryResponse{ID: inquiry.ID}, "inquiry received")
}

// List godoc
// @Summary List inquiries
// @Tags Contact
// @Produce json
// @Param action query string true "list"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param status query string false "Status filter (new, read, replied, archived, sent, all)"
// @Param search query string false "Search term"
// @Param sort query string false "created_at, email or subject"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /contact [get]
func (h *ContactHandler) List(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.inquiries.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// View godoc
// @Summary View inquiry with replies
// @Tags Contact
// @Produce json
// @Param action query string true "view"
// @Param id query string true "Inquiry ID"
// @Success 200 {object} response.Envelope
// @Router /contact [get]
func (h *ContactHandler) View(c *gin.Context) {
	detail, err := h.inquiries.View(c.Request.Context(), c.Query("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Stats godoc
// @Summary Inquiry counts per status
// @Tags Contact
// @Produce json
// @Param action query string true "stats"
// @Success 200 {object} response.Envelope
// @Router /contact [get]
func (h *ContactHandler) Stats(c *gin.Context) {
	stats, err := h.inquiries.Stats(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Export godoc
// @Summary Export inquiries
// @Tags Contact
// @Produce text/csv,application/pdf
// @Param action query string true "export"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /contact [get]
func (h *ContactHandler) Export(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.inquiries.Export(c.Request.Context(), filter, service.ExportFormat(c.Query("format")), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Attachment godoc
// @Summary Download reply attachment
// @Tags Contact
// @Produce octet-stream
// @Param action query string true "attachment"
// @Param reply_id query string true "Reply ID"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Router /contact [get]
func (h *ContactHandler) Attachment(c *gin.Context) {
	download, err := h.replies.OpenAttachment(c.Request.Context(), c.Query("reply_id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, nil)
}

// Reply godoc
// @Summary Reply to an inquiry
// @Tags Contact
// @Accept json,mpfd
// @Produce json
// @Param action query string true "reply"
// @Param inquiry_id formData string true "Inquiry ID"
// @Param reply_message formData string true "Reply text (markdown)"
// @Param attachment formData file false "Attachment"
// @Success 201 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Reply(c *gin.Context) {
	var (
		req        dto.CreateReplyRequest
		attachment *service.ReplyAttachment
	)
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, bindFailure(err))
			return
		}
		header, err := c.FormFile("attachment")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			response.Error(c, bindFailure(err))
			return
		default:
			src, err := header.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read attachment"))
				return
			}
			defer src.Close()
			attachment = uploadedAttachment(header, src)
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindFailure(err))
		return
	}

	result, err := h.replies.CreateReply(c.Request.Context(), req, attachment, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result, "reply sent")
}

// DeleteReply godoc
// @Summary Delete a reply
// @Tags Contact
// @Accept json
// @Produce json
// @Param action query string true "delete_reply"
// @Param payload body dto.IDRequest true "Reply"
// @Success 200 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) DeleteReply(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if err := h.replies.DeleteReply(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.IDRequest{ID: id}, "reply deleted")
}

// Archive godoc
// @Summary Archive an inquiry
// @Tags Contact
// @Accept json
// @Produce json
// @Param action query string true "archive"
// @Param payload body dto.IDRequest true "Inquiry"
// @Success 200 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Archive(c *gin.Context) {
	h.transition(c, h.inquiries.Archive, "inquiry archived")
}

// Unarchive godoc
// @Summary Unarchive an inquiry
// @Tags Contact
// @Accept json
// @Produce json
// @Param action query string true "unarchive"
// @Param payload body dto.IDRequest true "Inquiry"
// @Success 200 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Unarchive(c *gin.Context) {
	h.transition(c, h.inquiries.Unarchive, "inquiry restored")
}

// Delete godoc
// @Summary Delete an inquiry with its replies and attachments
// @Tags Contact
// @Accept json
// @Produce json
// @Param action query string true "delete"
// @Param payload body dto.IDRequest true "Inquiry"
// @Success 200 {object} response.Envelope
// @Router /contact [post]
func (h *ContactHandler) Delete(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if err := h.inquiries.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.IDRequest{ID: id}, "inquiry deleted")
}

type transitionFunc func(ctx context.Context, id string, actor *models.JWTClaims) (*dto.StatusResponse, error)

func (h *ContactHandler) transition(c *gin.Context, fn transitionFunc, message string) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, message)
}

// bindID reads {id} from a JSON or form body, falling back to the query
// string. The service decides whether the value is acceptable.
func bindID(c *gin.Context) (string, bool) {
	var req dto.IDRequest
	if c.Request.ContentLength != 0 {
		var err error
		if isMultipart(c) || strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
			err = c.ShouldBind(&req)
		} else {
			err = c.ShouldBindJSON(&req)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, bindFailure(err))
			return "", false
		}
	}
	if req.ID == "" {
		req.ID = c.Query("id")
	}
	return req.ID, true
}

func filterFromQuery(c *gin.Context) (models.InquiryFilter, error) {
	page, err := queryInt(c, "page")
	if err != nil {
		return models.InquiryFilter{}, err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return models.InquiryFilter{}, err
	}
	return models.InquiryFilter{
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      page,
		PageSize:  limit,
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be an integer", key))
	}
	return value, nil
}

func uploadedAttachment(header *multipart.FileHeader, src io.Reader) *service.ReplyAttachment {
	return &service.ReplyAttachment{Filename: header.Filename, Size: header.Size, Content: src}
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindFailure maps body decoding errors. Bodies cut off by the size limit
// surface as the attachment size error.
func bindFailure(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return appErrors.Clone(appErrors.ErrValidation, "file too large")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request body")
}

func unknownAction(action string) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action %q", action))
}
