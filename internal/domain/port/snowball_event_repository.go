// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// SnowballEventWriter defines the interface for appending snowball audit
// events. Events are append-only and never updated or deleted.
type SnowballEventWriter interface {
	// CreateSnowballEvent appends one audit event
	CreateSnowballEvent(ctx context.Context, event *model.SnowballEvent) error
}

// SnowballEventReader defines the interface for reading snowball audit
// events for analytics and abuse investigation.
type SnowballEventReader interface {
	// ListSnowballEvents lists events for a repository created at or after since.
	// A zero since returns the full history.
	ListSnowballEvents(ctx context.Context, repositoryUID string, since time.Time) ([]*model.SnowballEvent, error)
}
