package service

import "github.com/noah-isme/sitecms-api/internal/models"

// inquiryEvent is an operator or system action applied to an inquiry.
type inquiryEvent string

const (
	eventView      inquiryEvent = "view"
	eventReply     inquiryEvent = "reply"
	eventArchive   inquiryEvent = "archive"
	eventUnarchive inquiryEvent = "unarchive"
)

// nextStatus returns the status an inquiry moves to when event is applied.
// Events that do not apply to the current status leave it unchanged.
func nextStatus(current models.InquiryStatus, event inquiryEvent, replyCount int) models.InquiryStatus {
	switch event {
	case eventView:
		if current == models.InquiryStatusNew {
			return models.InquiryStatusRead
		}
	case eventReply:
		return models.InquiryStatusReplied
	case eventArchive:
		return models.InquiryStatusArchived
	case eventUnarchive:
		if current != models.InquiryStatusArchived {
			return current
		}
		if replyCount > 0 {
			return models.InquiryStatusReplied
		}
		return models.InquiryStatusNew
	}
	return current
}
