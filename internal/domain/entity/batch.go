package entity

import "time"

// Batch queue entry states.
const (
	BatchStatusPending           = "pending"
	BatchStatusProcessing        = "processing"
	BatchStatusPendingValidation = "pending_validation"
	BatchStatusProcessed         = "processed"
	BatchStatusDuplicate         = "duplicate"
	BatchStatusFailed            = "failed"
)

// BatchEntry joins a batch, an uploaded file and (once processed) the
// pending record it produced. Position preserves the upload ordering.
type BatchEntry struct {
	ID          int64      `json:"id"`
	BatchID     string     `json:"batch_id"`
	FilePath    string     `json:"file_path"`
	PreviewPath string     `json:"preview_path"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	Position    int        `json:"position"`
	PendingID   *int64     `json:"pending_id"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EmailAccount holds stored IMAP credentials for the email import flow.
type EmailAccount struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Password   string     `json:"-"`
	IMAPServer string     `json:"imap_server"`
	Port       int        `json:"port"`
	UseSSL     bool       `json:"use_ssl"`
	LastUsed   *time.Time `json:"last_used"`
	CreatedAt  time.Time  `json:"created_at"`
}
