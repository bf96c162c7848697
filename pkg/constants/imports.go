// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// CSV import limits and field constraints
const (
	// MaxImportFileBytes is the upload size ceiling for CSV imports.
	MaxImportFileBytes = 10 * 1024 * 1024

	// MaxImportRows is the data-row ceiling for a single CSV import.
	MaxImportRows = 10000

	// MaxTagsPerRecord caps how many tags one row may carry.
	MaxTagsPerRecord = 10

	// MaxTagLength caps the length of a single tag.
	MaxTagLength = 50

	// ImportProgressInterval is how many rows are processed between
	// import progress updates.
	ImportProgressInterval = 100
)

// Recognized CSV header names (matched case-insensitively)
const (
	HeaderEmail        = "email"
	HeaderName         = "name"
	HeaderOrganization = "organization"
	HeaderTags         = "tags"
	HeaderSubscribed   = "subscribed"
)
