// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akamensky/base58"
	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/ingest"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// importWorkers is the admission concurrency for one import job.
const importWorkers = 4

// Importer runs the CSV bulk-import pipeline: synchronous validation at
// upload time, then background admission of the validated rows with
// progress checkpoints on the import record.
type Importer struct {
	repositoryReader port.RepositoryReader
	repositoryWriter port.RepositoryWriter
	importReader     port.ImportReader
	importWriter     port.ImportWriter
	memberReader     port.MemberReader
	memberWriter     port.MemberWriter
	publisher        port.MessagePublisher
	validator        *ingest.Validator

	wg sync.WaitGroup
}

// importerOption defines a function type for setting options on the importer
type importerOption func(*Importer)

// WithImporterRepositoryReader sets the repository reader port
func WithImporterRepositoryReader(reader port.RepositoryReader) importerOption {
	return func(i *Importer) {
		i.repositoryReader = reader
	}
}

// WithImporterRepositoryWriter sets the repository writer port
func WithImporterRepositoryWriter(writer port.RepositoryWriter) importerOption {
	return func(i *Importer) {
		i.repositoryWriter = writer
	}
}

// WithImporterImportReader sets the import reader port
func WithImporterImportReader(reader port.ImportReader) importerOption {
	return func(i *Importer) {
		i.importReader = reader
	}
}

// WithImporterImportWriter sets the import writer port
func WithImporterImportWriter(writer port.ImportWriter) importerOption {
	return func(i *Importer) {
		i.importWriter = writer
	}
}

// WithImporterMemberReader sets the member reader port
func WithImporterMemberReader(reader port.MemberReader) importerOption {
	return func(i *Importer) {
		i.memberReader = reader
	}
}

// WithImporterMemberWriter sets the member writer port
func WithImporterMemberWriter(writer port.MemberWriter) importerOption {
	return func(i *Importer) {
		i.memberWriter = writer
	}
}

// WithImporterPublisher sets the message publisher
func WithImporterPublisher(publisher port.MessagePublisher) importerOption {
	return func(i *Importer) {
		i.publisher = publisher
	}
}

// WithImporterValidator sets the CSV validator
func WithImporterValidator(v *ingest.Validator) importerOption {
	return func(i *Importer) {
		i.validator = v
	}
}

// NewImporter creates a new importer using the option pattern
func NewImporter(opts ...importerOption) *Importer {
	i := &Importer{}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewTrackingCode generates the short base58 code handed back to the
// uploader for status polling.
func NewTrackingCode() string {
	id := uuid.New()
	return base58.Encode(id[:])
}

// StartImport validates the uploaded payload, persists the import record,
// and launches the background admission job. The returned record carries
// the tracking code for status polling.
func (i *Importer) StartImport(ctx context.Context, repositoryUID, filename, uploadedBy string, payload []byte) (*model.CSVImportRecord, error) {
	repository, _, err := i.repositoryReader.GetRepository(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	if repository.IsArchived() {
		return nil, errs.NewValidation("archived repository does not accept imports")
	}

	result := i.validator.Validate(ctx, payload, int64(len(payload)))

	now := time.Now()
	record := &model.CSVImportRecord{
		UID:             uuid.New().String(),
		TrackingCode:    NewTrackingCode(),
		RepositoryUID:   repositoryUID,
		Filename:        filename,
		UploadedBy:      uploadedBy,
		Status:          model.ImportStatusPending,
		TotalRows:       result.Metadata.TotalRows,
		ValidEmails:     result.Metadata.ValidEmails,
		InvalidEmails:   result.Metadata.InvalidEmails,
		DuplicateEmails: result.Metadata.DuplicateEmails,
		ErrorLog:        append(append([]string(nil), result.Errors...), result.Warnings...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if !result.IsValid {
		record.Status = model.ImportStatusFailed
		record.CompletedAt = &now
		created, _, err := i.importWriter.CreateImport(ctx, record)
		if err != nil {
			return nil, err
		}
		i.publishStatus(ctx, created)
		return created, errs.NewValidation(fmt.Sprintf("CSV validation failed: %v", result.Errors))
	}

	created, revision, err := i.importWriter.CreateImport(ctx, record)
	if err != nil {
		return nil, err
	}
	i.publishStatus(ctx, created)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		// The job outlives the upload request on purpose.
		i.process(context.WithoutCancel(ctx), repository, created, revision, result.Records)
	}()

	return created, nil
}

// CancelImport finalizes a pending or processing import as failed. The
// background job observes the terminal state at its next checkpoint and
// stops admitting rows.
func (i *Importer) CancelImport(ctx context.Context, uid string) (*model.CSVImportRecord, error) {
	var cancelled *model.CSVImportRecord
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		record, revision, err := i.importReader.GetImport(ctx, uid)
		if err != nil {
			return err
		}
		if record.Finalized() {
			return errs.NewValidation("import has already finished")
		}
		if err := record.MarkFailed("cancelled by uploader", time.Now()); err != nil {
			return err
		}
		updated, _, err := i.importWriter.UpdateImport(ctx, uid, record, revision)
		if err != nil {
			return err
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "import cancelled", "import_uid", uid)
	i.publishStatus(ctx, cancelled)
	return cancelled, nil
}

// Wait blocks until all background import jobs have finished. Used on
// shutdown so in-flight imports checkpoint their final state.
func (i *Importer) Wait() {
	i.wg.Wait()
}

// process is the background admission job for one validated import.
func (i *Importer) process(ctx context.Context, repository *model.Repository, record *model.CSVImportRecord, revision uint64, records []ingest.EmailRecord) {
	if err := record.MarkProcessing(time.Now()); err != nil {
		slog.ErrorContext(ctx, "import cannot start processing", "error", err, "import_uid", record.UID)
		return
	}
	updated, rev, err := i.importWriter.UpdateImport(ctx, record.UID, record, revision)
	if err != nil {
		slog.ErrorContext(ctx, "failed to checkpoint import start", "error", err, "import_uid", record.UID)
		return
	}
	record, revision = updated, rev
	i.publishStatus(ctx, record)

	// Workers only see these immutable copies; the mutable record stays
	// strictly under the checkpoint mutex.
	importUID := record.UID
	uploadedBy := record.UploadedBy

	// Remaining per-contributor budget for the uploader, -1 when unlimited.
	capRemaining := -1
	if limit := repository.Settings.MaxEmailsPerContributor; limit > 0 && uploadedBy != "" {
		existing, err := i.memberReader.CountMembersByContributor(ctx, repository.UID, uploadedBy)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count contributor members", "error", err, "import_uid", importUID)
			existing = 0
		}
		capRemaining = limit - existing
		if capRemaining < 0 {
			capRemaining = 0
		}
	}

	var (
		mu        sync.Mutex
		imported  int
		skipped   int
		processed int
		warnings  []string
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(importWorkers)

	for idx := range records {
		row := records[idx]
		group.Go(func() error {
			mu.Lock()
			reserved := capRemaining != 0
			if capRemaining > 0 {
				capRemaining--
			}
			mu.Unlock()

			outcome := rowOverCap
			if reserved {
				outcome = i.admitRow(groupCtx, repository, importUID, uploadedBy, row)
			}

			mu.Lock()
			defer mu.Unlock()

			if reserved && capRemaining >= 0 && outcome != rowImported {
				capRemaining++
			}

			processed++
			switch outcome {
			case rowImported:
				imported++
			case rowSkipped:
				skipped++
			case rowRejected:
				if len(warnings) < 50 {
					warnings = append(warnings, fmt.Sprintf("%s: rejected by repository policy", row.Email))
				}
			case rowOverCap:
				if len(warnings) < 50 {
					warnings = append(warnings, fmt.Sprintf("%s: uploader reached the per-contributor email limit", row.Email))
				}
			}

			if processed%constants.ImportProgressInterval == 0 {
				var stop bool
				record, revision, stop = i.checkpoint(ctx, record, revision, processed, imported, skipped)
				if stop {
					return errs.NewValidation("import was cancelled")
				}
			}
			return nil
		})
	}

	cancelled := false
	if err := group.Wait(); err != nil {
		cancelled = true
	}

	now := time.Now()
	record.ProcessedRows = processed
	record.ImportedMembers = imported
	record.SkippedExisting = skipped
	record.ErrorLog = append(record.ErrorLog, warnings...)

	if !cancelled {
		if err := record.MarkCompleted(now); err != nil {
			slog.ErrorContext(ctx, "failed to finalize import", "error", err, "import_uid", record.UID)
			return
		}
		if _, _, err := i.importWriter.UpdateImport(ctx, record.UID, record, revision); err != nil {
			slog.ErrorContext(ctx, "failed to persist final import state", "error", err, "import_uid", record.UID)
			return
		}
		i.publishStatus(ctx, record)
		i.recordOriginalImport(ctx, repository.UID, imported)
	}

	slog.InfoContext(ctx, "import finished",
		"import_uid", record.UID,
		"imported", imported,
		"skipped", skipped,
		"cancelled", cancelled,
	)
}

// rowOutcome classifies what happened to one CSV row during admission.
type rowOutcome int

const (
	rowImported rowOutcome = iota
	rowSkipped
	rowRejected
	rowOverCap
)

// admitRow creates the membership record for one validated row. Existing
// records, including suppressed ones, surface as a storage conflict and
// count as skipped.
func (i *Importer) admitRow(ctx context.Context, repository *model.Repository, importUID, uploadedBy string, row ingest.EmailRecord) rowOutcome {
	if !repository.DomainAllowed(row.Domain) {
		return rowRejected
	}

	now := time.Now()
	member := &model.MembershipRecord{
		UID:           uuid.New().String(),
		RepositoryUID: repository.UID,
		Email:         row.Email,
		Domain:        row.Domain,
		Source:        model.MemberSourceCSVImport,
		Status:        model.MemberStatusActive,
		TrustScore:    row.Classification.TrustScore,
		Name:          row.Name,
		Organization:  row.Organization,
		Tags:          row.Tags,
		Permissions: model.MemberPermissions{
			ReceiveDigest:   row.Subscribed,
			ReceiveSnowball: row.Subscribed,
		},
		AddedBy:   uploadedBy,
		AddedAt:   now,
		UpdatedAt: now,
	}

	if _, _, err := i.memberWriter.CreateMember(ctx, member); err != nil {
		var conflict errs.Conflict
		if errors.As(err, &conflict) {
			return rowSkipped
		}
		slog.ErrorContext(ctx, "failed to import row", "error", err, "import_uid", importUID)
		return rowRejected
	}
	return rowImported
}

// checkpoint persists progress and re-reads the record so a cancellation
// from the API side is observed. Returns stop=true when the record has
// been finalized externally.
func (i *Importer) checkpoint(ctx context.Context, record *model.CSVImportRecord, revision uint64, processed, imported, skipped int) (*model.CSVImportRecord, uint64, bool) {
	current, rev, err := i.importReader.GetImport(ctx, record.UID)
	if err != nil {
		slog.WarnContext(ctx, "failed to reload import record at checkpoint", "error", err)
		return record, revision, false
	}
	if current.Finalized() {
		return current, rev, true
	}

	current.ProcessedRows = processed
	current.ImportedMembers = imported
	current.SkippedExisting = skipped
	current.UpdatedAt = time.Now()

	updated, rev, err := i.importWriter.UpdateImport(ctx, record.UID, current, rev)
	if err != nil {
		slog.WarnContext(ctx, "failed to checkpoint import progress", "error", err)
		return current, revision, false
	}

	i.publishStatus(ctx, updated)
	return updated, rev, false
}

// recordOriginalImport records the multiplier denominator on the first
// completed import.
func (i *Importer) recordOriginalImport(ctx context.Context, repositoryUID string, imported int) {
	if imported == 0 {
		return
	}

	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		repository, revision, err := i.repositoryReader.GetRepository(ctx, repositoryUID)
		if err != nil {
			return err
		}
		if repository.Stats.OriginalImportCount > 0 {
			return nil
		}
		repository.Stats.OriginalImportCount = imported
		repository.UpdatedAt = time.Now()
		_, _, err = i.repositoryWriter.UpdateRepository(ctx, repositoryUID, repository, revision)
		return err
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to record original import count",
			"error", err,
			"repository_uid", repositoryUID,
		)
	}
}

// publishStatus publishes an import lifecycle notification. Failures are
// logged, never propagated.
func (i *Importer) publishStatus(ctx context.Context, record *model.CSVImportRecord) {
	if i.publisher == nil {
		return
	}
	message := &model.ImportStatusMessage{
		ImportUID:     record.UID,
		TrackingCode:  record.TrackingCode,
		RepositoryUID: record.RepositoryUID,
		Status:        record.Status,
		ProcessedRows: record.ProcessedRows,
		TotalRows:     record.TotalRows,
	}
	if err := i.publisher.Event(ctx, constants.ImportStatusSubject, message); err != nil {
		slog.ErrorContext(ctx, "failed to publish import status", "error", err)
	}
}
