// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package constants defines global constants used throughout the snowball service.
package constants

// Service constants
const (
	// ServiceName is the name of this service
	ServiceName = "snowball"
)

// HTTP header constants
const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-Id"
)

// Environment variables
const (
	// EnvNATSURL is the environment variable for NATS server URL
	EnvNATSURL = "NATS_URL"
	// EnvNATSCredentials is the environment variable for NATS credentials
	EnvNATSCredentials = "NATS_CREDENTIALS"
)

// Resource type constants for domain resolution
const (
	// ResourceTypeRepository represents an email repository resource
	ResourceTypeRepository = "repository"
	// ResourceTypeMember represents a membership record resource
	ResourceTypeMember = "member"
	// ResourceTypeImport represents a CSV import resource
	ResourceTypeImport = "import"
)
