// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package ingest implements CSV upload validation for bulk email imports:
// structural checks, encoding and delimiter detection, header mapping,
// per-row normalization and trust classification, and in-file duplicate
// detection. Validation is pure per file and safe to run concurrently
// across files.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
)

// Metadata summarizes one validation run.
type Metadata struct {
	TotalRows       int      `json:"total_rows"`
	ValidEmails     int      `json:"valid_emails"`
	InvalidEmails   int      `json:"invalid_emails"`
	DuplicateEmails int      `json:"duplicate_emails"`
	Headers         []string `json:"headers"`
	Encoding        string   `json:"encoding"`
	Delimiter       string   `json:"delimiter"`
}

// ValidationResult is the outcome of validating one uploaded CSV file.
// IsValid is false only for structural failures (missing or duplicate
// required header, file or row ceiling exceeded, zero valid emails);
// row-level problems are warnings and leave the remaining records usable.
type ValidationResult struct {
	IsValid  bool          `json:"is_valid"`
	Errors   []string      `json:"errors"`
	Warnings []string      `json:"warnings"`
	Records  []EmailRecord `json:"records"`
	Metadata Metadata      `json:"metadata"`
}

// Validator validates uploaded CSV files. It is stateless apart from its
// classifier and limits, and safe for concurrent use.
type Validator struct {
	classifier   *classifier.Classifier
	maxFileBytes int64
	maxRows      int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimits overrides the file size and row ceilings, for tests.
func WithLimits(maxFileBytes int64, maxRows int) Option {
	return func(v *Validator) {
		v.maxFileBytes = maxFileBytes
		v.maxRows = maxRows
	}
}

// NewValidator creates a CSV validator backed by the given classifier.
func NewValidator(c *classifier.Classifier, opts ...Option) *Validator {
	v := &Validator{
		classifier:   c,
		maxFileBytes: constants.MaxImportFileBytes,
		maxRows:      constants.MaxImportRows,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses and validates one uploaded CSV payload. declaredSize is
// the size reported by the upload layer; both it and the actual payload
// size are checked against the ceiling before any parsing.
func (v *Validator) Validate(ctx context.Context, data []byte, declaredSize int64) *ValidationResult {
	result := &ValidationResult{}

	if declaredSize > v.maxFileBytes || int64(len(data)) > v.maxFileBytes {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file exceeds size ceiling of %d bytes", v.maxFileBytes))
		return result
	}
	if len(data) == 0 {
		result.Errors = append(result.Errors, "file is empty")
		return result
	}

	decoded, encoding, err := decodePayload(data)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to decode file as %s", encoding))
		return result
	}
	result.Metadata.Encoding = encoding

	headerLine := firstLine(decoded)
	delimiter := detectDelimiter(headerLine)
	result.Metadata.Delimiter = string(delimiter)

	reader := csv.NewReader(strings.NewReader(string(decoded)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, "failed to read header row")
		return result
	}

	columns, headerErrs, headerWarnings := mapHeader(header)
	result.Metadata.Headers = normalizeHeader(header)
	result.Warnings = append(result.Warnings, headerWarnings...)
	if len(headerErrs) > 0 {
		result.Errors = append(result.Errors, headerErrs...)
		return result
	}

	seen := make(map[string]struct{})
	rowNum := 1 // 1-based over data rows, header excluded

	for {
		fields, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: malformed CSV row skipped", rowNum))
			result.Metadata.TotalRows++
			result.Metadata.InvalidEmails++
			rowNum++
			continue
		}
		if isBlankRow(fields) {
			continue
		}

		result.Metadata.TotalRows++
		if result.Metadata.TotalRows > v.maxRows {
			// Structural failure: stop parsing entirely.
			result.Errors = append(result.Errors,
				fmt.Sprintf("file exceeds row ceiling of %d rows", v.maxRows))
			result.Records = nil
			return result
		}

		raw := projectRow(fields, columns, len(header), result, rowNum)
		v.processRow(ctx, raw, seen, result, rowNum)
		rowNum++
	}

	result.Metadata.ValidEmails = len(result.Records)
	if result.Metadata.ValidEmails == 0 {
		result.Errors = append(result.Errors, "no valid emails found in file")
		return result
	}

	result.IsValid = true

	slog.DebugContext(ctx, "csv validation completed",
		"total_rows", result.Metadata.TotalRows,
		"valid_emails", result.Metadata.ValidEmails,
		"invalid_emails", result.Metadata.InvalidEmails,
		"duplicate_emails", result.Metadata.DuplicateEmails,
		"encoding", result.Metadata.Encoding,
		"warnings", len(result.Warnings),
	)

	return result
}

// processRow classifies one projected row and folds it into the result.
// Duplicate detection is a single pass over the file holding the per-file
// seen set; it must not be parallelized across rows.
func (v *Validator) processRow(ctx context.Context, raw RawRow, seen map[string]struct{}, result *ValidationResult, rowNum int) {
	email := model.NormalizeEmail(raw.Email)
	if email == "" {
		result.Metadata.InvalidEmails++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: empty email", rowNum))
		return
	}

	verdict := v.classifier.Classify(email)
	if !verdict.Eligible() {
		result.Metadata.InvalidEmails++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: %s (%s)", rowNum, verdict.RejectionReason, redaction.RedactEmail(email)))
		return
	}

	if _, dup := seen[email]; dup {
		result.Metadata.DuplicateEmails++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: duplicate email %s", rowNum, redaction.RedactEmail(email)))
		return
	}
	seen[email] = struct{}{}

	record := EmailRecord{
		Email:          email,
		Domain:         verdict.Domain,
		Subscribed:     true,
		Classification: verdict,
	}
	if raw.Name != nil {
		record.Name = strings.TrimSpace(*raw.Name)
	}
	if raw.Organization != nil {
		record.Organization = strings.TrimSpace(*raw.Organization)
	}
	if raw.Tags != nil {
		record.Tags = parseTags(*raw.Tags)
	}
	if raw.Subscribed != nil {
		subscribed, ok := parseSubscribed(*raw.Subscribed)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: unparseable subscribed value %q, defaulting to true", rowNum, *raw.Subscribed))
		}
		record.Subscribed = subscribed
	}

	result.Records = append(result.Records, record)
}

// columnIndexes maps recognized column names to their position in the
// header row; -1 means the column is absent.
type columnIndexes struct {
	email        int
	name         int
	organization int
	tags         int
	subscribed   int
}

// mapHeader resolves the header row into column indexes. The email column
// is required; duplicate recognized headers are hard errors; unknown
// columns produce warnings and are ignored.
func mapHeader(header []string) (columnIndexes, []string, []string) {
	columns := columnIndexes{email: -1, name: -1, organization: -1, tags: -1, subscribed: -1}
	var errs, warnings []string

	assign := func(target *int, name string, idx int) {
		if *target >= 0 {
			errs = append(errs, fmt.Sprintf("duplicate header %q", name))
			return
		}
		*target = idx
	}

	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		switch name {
		case constants.HeaderEmail:
			assign(&columns.email, name, i)
		case constants.HeaderName:
			assign(&columns.name, name, i)
		case constants.HeaderOrganization:
			assign(&columns.organization, name, i)
		case constants.HeaderTags:
			assign(&columns.tags, name, i)
		case constants.HeaderSubscribed:
			assign(&columns.subscribed, name, i)
		case "":
			warnings = append(warnings, fmt.Sprintf("column %d has an empty header, ignored", i+1))
		default:
			warnings = append(warnings, fmt.Sprintf("unknown column %q ignored", name))
		}
	}

	if columns.email < 0 && len(errs) == 0 {
		errs = append(errs, "required header \"email\" is missing")
	}

	return columns, errs, warnings
}

// projectRow extracts the recognized columns from a raw CSV row into the
// fixed-shape RawRow. Rows longer than the header are truncated with a
// warning; shorter rows read absent cells as missing.
func projectRow(fields []string, columns columnIndexes, headerWidth int, result *ValidationResult, rowNum int) RawRow {
	if len(fields) > headerWidth {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: %d extra fields truncated", rowNum, len(fields)-headerWidth))
		fields = fields[:headerWidth]
	}

	cell := func(idx int) *string {
		if idx < 0 || idx >= len(fields) {
			return nil
		}
		value := fields[idx]
		return &value
	}

	raw := RawRow{
		Name:         cell(columns.name),
		Organization: cell(columns.organization),
		Tags:         cell(columns.tags),
		Subscribed:   cell(columns.subscribed),
	}
	if email := cell(columns.email); email != nil {
		raw.Email = *email
	}
	return raw
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return out
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func firstLine(data []byte) string {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return string(data[:i])
		}
	}
	return string(data)
}
