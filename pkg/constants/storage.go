// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

const (
	// KVBucketNameRepositories is the name of the KV bucket for email repositories.
	KVBucketNameRepositories = "snowball-repositories"

	// KVBucketNameMembers is the name of the KV bucket for membership records.
	KVBucketNameMembers = "snowball-members"

	// KVBucketNameCandidates is the name of the KV bucket for pending forward candidates.
	// Values are msgpack-encoded because candidate aggregates are small and high-churn.
	KVBucketNameCandidates = "snowball-candidates"

	// KVBucketNameImports is the name of the KV bucket for CSV import records.
	KVBucketNameImports = "snowball-imports"

	// KVBucketNameGrowthCycles is the name of the KV bucket for per-repository
	// growth-cycle admission counters.
	KVBucketNameGrowthCycles = "snowball-growth-cycles"

	// Lookup key patterns for unique constraints
	// KVLookupRepositoryNamePrefix reserves a repository name per owner.
	KVLookupRepositoryNamePrefix = "lookup/repository_name/%s"

	// KVLookupMemberPrefix reserves a normalized email per repository.
	KVLookupMemberPrefix = "lookup/members/%s"
)

const (
	// KVBucketNameSnowballEvents is the name of the KV bucket for
	// append-only snowball audit events.
	KVBucketNameSnowballEvents = "snowball-events"

	// KVLookupImportTrackingPrefix resolves an import tracking code to its UID.
	KVLookupImportTrackingPrefix = "lookup/imports/%s"
)
