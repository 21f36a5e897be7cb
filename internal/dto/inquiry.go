package dto

import "github.com/noah-isme/sitecms-api/internal/models"

// SubmitInquiryRequest is the public contact form payload.
type SubmitInquiryRequest struct {
	Name    string  `json:"name" form:"name" validate:"required,max=100"`
	Email   string  `json:"email" form:"email" validate:"required,email,max=254"`
	Phone   *string `json:"phone" form:"phone" validate:"omitempty,max=30"`
	Subject *string `json:"subject" form:"subject" validate:"omitempty,max=200"`
	Message string  `json:"message" form:"message" validate:"required,max=5000"`
}

// SubmitInquiryResponse is returned with HTTP 201.
type SubmitInquiryResponse struct {
	ID string `json:"id"`
}

// SubmissionMeta carries request provenance recorded on the inquiry.
type SubmissionMeta struct {
	IPAddress string
	UserAgent string
}

// CreateReplyRequest is posted either as JSON or as multipart form fields.
type CreateReplyRequest struct {
	InquiryID    string `json:"inquiry_id" form:"inquiry_id" validate:"required"`
	ReplyMessage string `json:"reply_message" form:"reply_message" validate:"required,max=20000"`
}

// IDRequest identifies the target of archive/unarchive/delete operations.
type IDRequest struct {
	ID string `json:"id" form:"id" validate:"required"`
}

// InquiryListResponse is the list payload: items plus pagination.
type InquiryListResponse struct {
	Items      []models.Inquiry  `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// ReplyView decorates a reply for the admin thread view.
type ReplyView struct {
	models.Reply
	ReplyHTML   string `json:"reply_html"`
	DownloadURL string `json:"download_url,omitempty"`
}

// InquiryDetail is the full inquiry with its replies in sent order.
type InquiryDetail struct {
	models.Inquiry
	Replies []ReplyView `json:"replies"`
}

// StatusResponse reports the status after a lifecycle transition.
type StatusResponse struct {
	ID     string               `json:"id"`
	Status models.InquiryStatus `json:"status"`
}

// ReplyResult is returned after a reply has been recorded.
type ReplyResult struct {
	Reply      models.Reply         `json:"reply"`
	Status     models.InquiryStatus `json:"status"`
	ReplyCount int                  `json:"reply_count"`
}
