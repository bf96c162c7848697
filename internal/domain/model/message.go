// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

// MessageAction is a type for the action of a resource message
type MessageAction string

// MessageAction constants for the action of a resource message
const (
	// ActionCreated is the action for a resource creation message
	ActionCreated MessageAction = "created"
	// ActionUpdated is the action for a resource update message
	ActionUpdated MessageAction = "updated"
	// ActionDeleted is the action for a resource deletion message
	ActionDeleted MessageAction = "deleted"
)

// IndexerMessage is a NATS message schema for repository and member CRUD
// operations. These messages are consumed by indexing services to maintain
// search indexes.
type IndexerMessage struct {
	Action  MessageAction     `json:"action"`
	Headers map[string]string `json:"headers"`
	Data    any               `json:"data"`
	// Tags is a list of tags to be set on the indexed resource for search
	Tags []string `json:"tags"`
}

// Build constructs an indexer message with proper context extraction and data marshaling
func (g *IndexerMessage) Build(ctx context.Context, input any) (*IndexerMessage, error) {
	// Extract headers from context for authorization propagation
	headers := make(map[string]string)
	if authorization, ok := ctx.Value(constants.AuthorizationContextID).(string); ok {
		headers[constants.AuthorizationHeader] = authorization
	}
	if principal, ok := ctx.Value(constants.PrincipalContextID).(string); ok {
		headers[constants.XOnBehalfOfHeader] = principal
	}
	g.Headers = headers

	var payload any

	switch g.Action {
	case ActionCreated, ActionUpdated:
		// For create/update actions, marshal and unmarshal to get a map[string]any
		// that the indexer expects
		data, err := json.Marshal(input)
		if err != nil {
			slog.ErrorContext(ctx, "error marshalling data into JSON", "error", err)
			return nil, err
		}
		var jsonData map[string]any
		if err := json.Unmarshal(data, &jsonData); err != nil {
			slog.ErrorContext(ctx, "error unmarshalling data into JSON", "error", err)
			return nil, err
		}
		payload = jsonData
	case ActionDeleted:
		// For delete actions, the data should just be a string of the UID being deleted
		payload = input
	}

	g.Data = payload
	return g, nil
}

// SnowballEventMessage is the NATS message schema for snowball audit
// events. The karma service consumes these to award reputation points;
// this engine only emits them.
type SnowballEventMessage struct {
	Event *SnowballEvent `json:"event"`
	// Tags mirror the event's index tags for subscribers that filter.
	Tags []string `json:"tags"`
}

// NewSnowballEventMessage wraps an event for publishing.
func NewSnowballEventMessage(event *SnowballEvent) *SnowballEventMessage {
	return &SnowballEventMessage{
		Event: event,
		Tags:  event.IndexTags(),
	}
}

// ImportStatusMessage is the NATS message schema for CSV import lifecycle
// notifications.
type ImportStatusMessage struct {
	ImportUID     string       `json:"import_uid"`
	TrackingCode  string       `json:"tracking_code"`
	RepositoryUID string       `json:"repository_uid"`
	Status        ImportStatus `json:"status"`
	ProcessedRows int          `json:"processed_rows"`
	TotalRows     int          `json:"total_rows"`
}
