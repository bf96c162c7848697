// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import "context"

// MessagePublisher defines the interface for publishing snowball service messages
// This interface is implemented by the NATS messaging infrastructure to support
// indexing and audit-event fan-out for downstream services
type MessagePublisher interface {
	// Indexer publishes indexer messages for search and discovery services
	// These messages are consumed by indexing services to maintain search indexes
	Indexer(ctx context.Context, subject string, message any) error

	// Event publishes snowball audit and import lifecycle events
	// These messages are consumed by the karma service and analytics tooling
	Event(ctx context.Context, subject string, message any) error
}
