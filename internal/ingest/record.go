// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package ingest

import (
	"strings"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

// RawRow is the fixed-shape projection of one CSV data row. Optional
// columns are nil when absent from the file, empty when present but blank.
type RawRow struct {
	Email        string
	Name         *string
	Organization *string
	Tags         *string
	Subscribed   *string
}

// EmailRecord is one validated, normalized row ready for admission.
type EmailRecord struct {
	Email          string                    `json:"email"` // Normalized
	Domain         string                    `json:"domain"`
	Name           string                    `json:"name"`
	Organization   string                    `json:"organization"`
	Tags           []string                  `json:"tags"`
	Subscribed     bool                      `json:"subscribed"`
	Classification classifier.Classification `json:"classification"`
}

// parseTags splits a raw tags field on the first separator found among
// comma, semicolon, and pipe. Tags are trimmed, length-capped, deduplicated,
// and limited in number.
func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	sep := ""
	for _, candidate := range []string{",", ";", "|"} {
		if strings.Contains(raw, candidate) {
			sep = candidate
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = []string{raw}
	} else {
		parts = strings.Split(raw, sep)
	}

	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if len(tag) > constants.MaxTagLength {
			tag = tag[:constants.MaxTagLength]
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == constants.MaxTagsPerRecord {
			break
		}
	}

	if len(tags) == 0 {
		return nil
	}
	return tags
}

// parseSubscribed parses the subscribed field. Accepted values, case
// insensitively: true/false, yes/no, 1/0. The second return reports
// whether the value was parseable; unparseable values default to true.
func parseSubscribed(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	case "":
		return true, true
	default:
		return true, false
	}
}
