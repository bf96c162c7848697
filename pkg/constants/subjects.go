// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// NATS subject constants for message publishing and subscriptions
const (
	// ForwardEventSubject carries inbound forward events from the email/webhook layer.
	ForwardEventSubject = "lfx.snowball-api.forward"

	// ForwardEventQueue is the queue group for load-balanced forward processing.
	ForwardEventQueue = "lfx.snowball-api.queue"

	// SnowballEventSubject carries append-only snowball audit events.
	// Consumed by the karma service and by analytics tooling.
	SnowballEventSubject = "lfx.snowball-api.event"

	// ImportStatusSubject carries CSV import lifecycle notifications.
	ImportStatusSubject = "lfx.snowball-api.import_status"

	// Indexing subjects for search and discovery
	IndexRepositorySubject = "lfx.index.snowball_repository"
	IndexMemberSubject     = "lfx.index.snowball_member"
)
