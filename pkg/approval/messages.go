package approval

import (
	"fmt"
	"html"
	"strings"

	"github.com/onecrazygenius/bailo/pkg/notify"
)

// subjectURL builds the human-facing link for a subject document.
func subjectURL(base string, subject Subject) string {
	return fmt.Sprintf("%s/%s/%s/review", strings.TrimRight(base, "/"), subject.Kind, subject.ID)
}

// reviewRequestMessage renders the notification sent to an approver when a
// new approval is created.
func reviewRequestMessage(base string, subject Subject, category Category, approvalType Type) notify.Message {
	name := subject.Name
	if name == "" {
		name = subject.ID
	}
	url := subjectURL(base, subject)

	text := fmt.Sprintf(
		"You have been requested to review '%s'.\n\nReview Category: '%s'\nRole: '%s'\n\nOpen review: %s\n",
		name, category, approvalType, url,
	)
	htmlBody := fmt.Sprintf(
		"<p>You have been requested to review <strong>%s</strong>.</p><p>Review Category: %s<br>Role: %s</p><p><a href=%q>Open review</a></p>",
		html.EscapeString(name), category, approvalType, url,
	)

	return notify.Message{
		Subject: fmt.Sprintf("You have been requested to review '%s'", name),
		Text:    text,
		HTML:    htmlBody,
	}
}

// reviewedMessage renders the notification sent to the requester once a
// reviewer has responded.
func reviewedMessage(base string, subject Subject, category Category, decision Status, reviewedBy string) notify.Message {
	name := subject.Name
	if name == "" {
		name = subject.ID
	}
	url := subjectURL(base, subject)

	text := fmt.Sprintf(
		"'%s' has been reviewed by %s.\n\nReview Category: '%s'\nResponse: '%s'\n\nOpen %s: %s\n",
		name, reviewedBy, category, decision, subject.Kind, url,
	)
	htmlBody := fmt.Sprintf(
		"<p>Your %s request has been reviewed by %s.</p><p>Model Name: %s<br>Response: %s</p><p><a href=%q>Open %s</a></p>",
		category, html.EscapeString(reviewedBy), html.EscapeString(name), decision, url, subject.Kind,
	)

	return notify.Message{
		Subject: fmt.Sprintf("'%s' has been reviewed", name),
		Text:    text,
		HTML:    htmlBody,
	}
}
