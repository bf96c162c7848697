// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
)

// ImportStatus is the lifecycle state of a CSV import job.
type ImportStatus string

// CSV import lifecycle states
const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// CSVImportRecord is the audit record of one bulk import. Created when the
// upload is accepted, updated with progress while the background job runs,
// and immutable once it reaches completed or failed.
type CSVImportRecord struct {
	UID           string `json:"uid"`            // Primary key
	TrackingCode  string `json:"tracking_code"`  // Short base58 code returned to the uploader
	RepositoryUID string `json:"repository_uid"` // FK to repository

	Filename   string `json:"filename"`
	UploadedBy string `json:"uploaded_by"` // Acting user identity from the auth layer

	Status ImportStatus `json:"status"`

	// Row accounting from validation and admission
	TotalRows       int `json:"total_rows"`
	ValidEmails     int `json:"valid_emails"`
	InvalidEmails   int `json:"invalid_emails"`
	DuplicateEmails int `json:"duplicate_emails"`
	ImportedMembers int `json:"imported_members"` // Rows that became active members
	SkippedExisting int `json:"skipped_existing"` // Rows whose email already had a record
	ProcessedRows   int `json:"processed_rows"`   // Progress indicator during processing

	// ErrorLog holds structural errors and a bounded sample of row warnings.
	ErrorLog []string `json:"error_log"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`   // Nullable timestamp
	CompletedAt *time.Time `json:"completed_at"` // Nullable timestamp
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Finalized reports whether the record has reached a terminal state.
func (r *CSVImportRecord) Finalized() bool {
	return r.Status == ImportStatusCompleted || r.Status == ImportStatusFailed
}

// MarkProcessing moves a pending import into processing.
func (r *CSVImportRecord) MarkProcessing(now time.Time) error {
	if r.Status != ImportStatusPending {
		return errors.NewValidation(
			fmt.Sprintf("import cannot start processing from status %q", r.Status))
	}
	r.Status = ImportStatusProcessing
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkCompleted finalizes a processing import as completed.
func (r *CSVImportRecord) MarkCompleted(now time.Time) error {
	if r.Finalized() {
		return errors.NewValidation("import record is already finalized")
	}
	r.Status = ImportStatusCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkFailed finalizes the import as failed with a reason. Used for
// structural validation failures, cancellation, and timeouts; already
// admitted rows are not rolled back, so the counters keep the partial
// result.
func (r *CSVImportRecord) MarkFailed(reason string, now time.Time) error {
	if r.Finalized() {
		return errors.NewValidation("import record is already finalized")
	}
	r.Status = ImportStatusFailed
	if reason != "" {
		r.ErrorLog = append(r.ErrorLog, reason)
	}
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// IndexTags generates a consistent set of tags for the import record.
func (r *CSVImportRecord) IndexTags() []string {
	var tags []string

	if r == nil {
		return nil
	}

	if r.UID != "" {
		tags = append(tags, r.UID)
	}
	if r.TrackingCode != "" {
		tags = append(tags, fmt.Sprintf("tracking_code:%s", r.TrackingCode))
	}
	if r.RepositoryUID != "" {
		tags = append(tags, fmt.Sprintf("repository_uid:%s", r.RepositoryUID))
	}
	if r.Status != "" {
		tags = append(tags, fmt.Sprintf("status:%s", r.Status))
	}

	return tags
}
