package models

import "time"

// InquiryStatus is the stored lifecycle state of an inquiry.
type InquiryStatus string

const (
	InquiryStatusNew      InquiryStatus = "new"
	InquiryStatusRead     InquiryStatus = "read"
	InquiryStatusReplied  InquiryStatus = "replied"
	InquiryStatusArchived InquiryStatus = "archived"
)

// Valid reports whether s is one of the stored states.
func (s InquiryStatus) Valid() bool {
	switch s {
	case InquiryStatusNew, InquiryStatusRead, InquiryStatusReplied, InquiryStatusArchived:
		return true
	}
	return false
}

// Inquiry is a contact form submission. ReplyCount is derived from contact_replies.
type Inquiry struct {
	ID         string        `db:"id" json:"id"`
	Name       string        `db:"name" json:"name"`
	Email      string        `db:"email" json:"email"`
	Phone      *string       `db:"phone" json:"phone,omitempty"`
	Subject    *string       `db:"subject" json:"subject,omitempty"`
	Message    string        `db:"message" json:"message"`
	Status     InquiryStatus `db:"status" json:"status"`
	IPAddress  string        `db:"ip_address" json:"ip_address"`
	UserAgent  string        `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
	ReplyCount int           `db:"reply_count" json:"reply_count"`
}

// Reply is an operator response threaded under one inquiry. Attachment columns
// are either all NULL or all set.
type Reply struct {
	ID                 string    `db:"id" json:"id"`
	InquiryID          string    `db:"inquiry_id" json:"inquiry_id"`
	ReplyMessage       string    `db:"reply_message" json:"reply_message"`
	SentBy             string    `db:"sent_by" json:"sent_by"`
	SentAt             time.Time `db:"sent_at" json:"sent_at"`
	AttachmentFilename *string   `db:"attachment_filename" json:"attachment_filename,omitempty"`
	AttachmentPath     *string   `db:"attachment_path" json:"attachment_path,omitempty"`
	AttachmentSize     *int64    `db:"attachment_size" json:"attachment_size,omitempty"`
	AttachmentMime     *string   `db:"attachment_mime" json:"attachment_mime,omitempty"`
}

// HasAttachment reports whether the reply carries a stored file.
func (r *Reply) HasAttachment() bool {
	return r != nil && r.AttachmentPath != nil && *r.AttachmentPath != ""
}

// InquiryStats aggregates counts for the admin badge.
type InquiryStats struct {
	New      int `db:"new_count" json:"new"`
	Read     int `db:"read_count" json:"read"`
	Replied  int `db:"replied_count" json:"replied"`
	Archived int `db:"archived_count" json:"archived"`
	Sent     int `db:"sent_count" json:"sent"`
	Total    int `db:"total_count" json:"total"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
