package domain

import "time"

// AttachmentReference stores metadata for an uploaded file linked to a
// ticket. The bytes live in object storage under StorageKey.
type AttachmentReference struct {
	ID         string
	TicketID   string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	UploadedBy string
	CreatedAt  time.Time
}
