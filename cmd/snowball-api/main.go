// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Command snowball-api runs the email repository snowball distribution
// engine: HTTP management API, NATS forward-event subscription, and the
// candidate retention sweeper.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/config"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/nats"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/ingest"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.InitStructureLogConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		return
	}

	natsClient, err := nats.NewClient(ctx, nats.Config{
		URL:           cfg.NATS.URL,
		Timeout:       cfg.NATS.Timeout,
		MaxReconnect:  cfg.NATS.MaxReconnect,
		ReconnectWait: cfg.NATS.ReconnectWait,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to NATS", "error", err, "url", cfg.NATS.URL)
		return
	}
	defer func() {
		if err := natsClient.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close NATS connection", "error", err)
		}
	}()

	classifierCfg := classifier.Config{}
	if cfg.Classifier.ListsPath != "" {
		classifierCfg, err = classifier.LoadConfig(cfg.Classifier.ListsPath)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load classifier lists", "error", err, "path", cfg.Classifier.ListsPath)
			return
		}
	}
	emailClassifier := classifier.NewClassifier(classifierCfg)

	var validatorOpts []ingest.Option
	if cfg.Import.MaxFileBytes > 0 && cfg.Import.MaxRows > 0 {
		validatorOpts = append(validatorOpts, ingest.WithLimits(cfg.Import.MaxFileBytes, cfg.Import.MaxRows))
	}
	validator := ingest.NewValidator(emailClassifier, validatorOpts...)

	storage := nats.NewStorage(natsClient)
	publisher := nats.NewMessagePublisher(natsClient)

	reader := service.NewReaderOrchestrator(
		service.WithRepositoryReader(storage),
		service.WithMemberReader(storage),
		service.WithImportReader(storage),
	)
	writer := service.NewWriterOrchestrator(
		service.WithRepositoryReaderForWriter(storage),
		service.WithRepositoryWriter(storage),
		service.WithMemberReaderForWriter(storage),
		service.WithMemberWriter(storage),
		service.WithPublisher(publisher),
		service.WithClassifier(emailClassifier),
	)
	governor := service.NewGrowthGovernor(storage, storage)
	engine := service.NewSnowballEngine(
		service.WithEngineRepositoryReader(storage),
		service.WithEngineMemberReader(storage),
		service.WithEngineMemberWriter(storage),
		service.WithEngineCandidateRepository(storage),
		service.WithEngineEventWriter(storage),
		service.WithEngineGovernor(governor),
		service.WithEnginePublisher(publisher),
		service.WithEngineClassifier(emailClassifier),
	)
	importer := service.NewImporter(
		service.WithImporterRepositoryReader(storage),
		service.WithImporterRepositoryWriter(storage),
		service.WithImporterImportReader(storage),
		service.WithImporterImportWriter(storage),
		service.WithImporterMemberReader(storage),
		service.WithImporterMemberWriter(storage),
		service.WithImporterPublisher(publisher),
		service.WithImporterValidator(validator),
	)
	analytics := service.NewAnalytics(
		service.WithAnalyticsRepositoryReader(storage),
		service.WithAnalyticsRepositoryWriter(storage),
		service.WithAnalyticsMemberReader(storage),
		service.WithAnalyticsCandidateRepository(storage),
		service.WithAnalyticsEventReader(storage),
	)
	sweeper := service.NewSweeper(storage, storage)

	var wg sync.WaitGroup
	if err := handleForwardEvents(ctx, &wg, natsClient, engine); err != nil {
		slog.ErrorContext(ctx, "failed to start forward event subscription", "error", err)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx, cfg.Sweeper.Interval)
	}()

	handler := &apiHandler{
		reader:     reader,
		writer:     writer,
		engine:     engine,
		importer:   importer,
		analytics:  analytics,
		validator:  validator,
		candidates: storage,
		nats:       natsClient,
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutdown signal received")
	case err := <-serverErr:
		slog.ErrorContext(ctx, "HTTP server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "HTTP server shutdown failed", "error", err)
	}

	// Let in-flight imports checkpoint their final state.
	importer.Wait()
	wg.Wait()

	slog.InfoContext(ctx, "snowball service stopped")
}
