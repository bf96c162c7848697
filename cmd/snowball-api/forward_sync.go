// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	internalnats "github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/nats"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
	"github.com/nats-io/nats.go"
)

// handleForwardEvents subscribes to forward events published by the inbound
// email layer and feeds them through the snowball engine.
func handleForwardEvents(ctx context.Context, wg *sync.WaitGroup, natsClient *internalnats.NATSClient, engine service.SnowballEngine) error {
	slog.InfoContext(ctx, "starting forward event subscription")

	_, subErr := natsClient.QueueSubscribe(
		constants.ForwardEventSubject,
		constants.ForwardEventQueue,
		func(msg *nats.Msg) {
			// Check if service is shutting down
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "rejecting message - service shutting down",
					"subject", msg.Subject)
				if msg.Reply != "" {
					if nakErr := msg.Nak(); nakErr != nil {
						slog.ErrorContext(ctx, "failed to nak message during shutdown", "error", nakErr)
					}
				}
				return
			default:
			}

			// Fresh context with timeout for this message, not derived
			// from the shutdown context to avoid cancellation issues.
			msgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if handleErr := processForwardMessage(msgCtx, engine, msg); handleErr != nil {
				slog.ErrorContext(msgCtx, "failed to process forward event, will retry",
					"error", handleErr,
					"subject", msg.Subject)
				if msg.Reply != "" {
					if nakErr := msg.Nak(); nakErr != nil {
						slog.ErrorContext(msgCtx, "failed to nak message", "error", nakErr)
					}
				}
			} else if msg.Reply != "" {
				if ackErr := msg.Ack(); ackErr != nil {
					slog.ErrorContext(msgCtx, "failed to ack message", "error", ackErr)
				}
			}
		},
	)
	if subErr != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", constants.ForwardEventSubject, subErr)
	}

	slog.InfoContext(ctx, "subscribed to forward events",
		"subject", constants.ForwardEventSubject,
		"queue", constants.ForwardEventQueue)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		slog.InfoContext(ctx, "shutting down forward event subscription")
		// NATS client cleanup handled by Close() in main shutdown
	}()

	return nil
}

func processForwardMessage(ctx context.Context, engine service.SnowballEngine, msg *nats.Msg) error {
	var event model.ForwardEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// A malformed payload never becomes valid, drop it instead of retrying.
		slog.ErrorContext(ctx, "dropping malformed forward event", "error", err)
		return nil
	}

	results, err := engine.ProcessForward(ctx, &event)
	if err != nil {
		return fmt.Errorf("forward processing failed: %w", err)
	}

	slog.InfoContext(ctx, "processed forward event",
		"repository_uid", event.RepositoryUID,
		"source", redaction.RedactEmail(event.SourceEmail),
		"results", len(results))
	return nil
}
