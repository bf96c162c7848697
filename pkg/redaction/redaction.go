// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package redaction provides helpers for masking personal data in logs.
package redaction

import "strings"

// RedactEmail masks the local part of an email address for logging,
// keeping the first character and the domain so log lines remain
// correlatable without exposing the full address.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}

	local := email[:at]
	domain := email[at+1:]

	if len(local) == 1 {
		return "*@" + domain
	}

	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}
