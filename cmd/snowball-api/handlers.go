// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/ingest"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/nats"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/log"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// apiHandler carries the service dependencies for all HTTP handlers.
type apiHandler struct {
	reader     service.SnowballReader
	writer     service.SnowballWriter
	engine     service.SnowballEngine
	importer   *service.Importer
	analytics  *service.Analytics
	validator  *ingest.Validator
	candidates port.CandidateRepository
	nats       *nats.NATSClient
}

// principalContext stamps the on-behalf-of principal onto the request
// context so every log record emitted while serving it carries the caller.
func principalContext(c *gin.Context) {
	if principal := c.GetHeader(constants.XOnBehalfOfHeader); principal != "" {
		ctx := log.AppendCtx(c.Request.Context(), slog.String("principal", principal))
		c.Request = c.Request.WithContext(ctx)
	}
	c.Next()
}

// newRouter builds the gin engine with all routes registered.
func newRouter(h *apiHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), principalContext)

	r.GET("/livez", h.livez)
	r.GET("/readyz", h.readyz)

	repos := r.Group("/repositories")
	{
		repos.POST("", h.createRepository)
		repos.GET("/:uid", h.getRepository)
		repos.PUT("/:uid/settings", h.updateSettings)
		repos.POST("/:uid/archive", h.archiveRepository)
		repos.GET("/:uid/analytics", h.getAnalytics)

		repos.GET("/:uid/members", h.listMembers)
		repos.POST("/:uid/members", h.addMember)
		repos.GET("/:uid/members/:member_uid", h.getMember)
		repos.POST("/:uid/members/:member_uid/verify", h.verifyMember)
		repos.POST("/:uid/members/:member_uid/reinstate", h.reinstateMember)
		repos.DELETE("/:uid/members/:member_uid", h.removeMember)
		repos.GET("/:uid/digest-recipients", h.listDigestRecipients)
		repos.POST("/:uid/optout", h.optOut)
		repos.POST("/:uid/engagement", h.recordEngagement)
		repos.POST("/:uid/bounce", h.recordBounce)
		repos.POST("/:uid/complaint", h.recordComplaint)

		repos.GET("/:uid/candidates", h.listCandidates)
		repos.POST("/:uid/candidates/approve", h.approveCandidate)
		repos.POST("/:uid/forward", h.processForward)

		repos.POST("/:uid/imports", h.startImport)
		repos.POST("/:uid/imports/validate", h.validateCSV)
		repos.GET("/:uid/imports", h.listImports)
	}

	r.GET("/imports/:code", h.getImport)
	r.POST("/imports/:code/cancel", h.cancelImport)

	return r
}

// respondError maps the service error taxonomy to HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		validation  errs.Validation
		notFound    errs.NotFound
		conflict    errs.Conflict
		unavailable errs.ServiceUnavailable
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// revisionFromHeader parses the optimistic-concurrency revision from the
// If-Match header.
func revisionFromHeader(c *gin.Context) (uint64, error) {
	raw := c.GetHeader("If-Match")
	if raw == "" {
		return 0, errs.NewValidation("If-Match header with current revision is required")
	}
	revision, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.NewValidation("If-Match header must be a numeric revision")
	}
	return revision, nil
}

func (h *apiHandler) livez(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *apiHandler) readyz(c *gin.Context) {
	if err := h.nats.IsReady(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "NATS not ready"})
		return
	}
	c.String(http.StatusOK, "OK")
}

// ==================== repositories ====================

func (h *apiHandler) createRepository(c *gin.Context) {
	var req struct {
		Name        string                   `json:"name" binding:"required"`
		OwnerUID    string                   `json:"owner_uid" binding:"required"`
		Description string                   `json:"description"`
		Public      bool                     `json:"public"`
		Settings    model.RepositorySettings `json:"settings"`
		Snowball    model.SnowballSettings   `json:"snowball"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repository := &model.Repository{
		Name:        req.Name,
		OwnerUID:    req.OwnerUID,
		Description: req.Description,
		Public:      req.Public,
		Settings:    req.Settings,
		Snowball:    req.Snowball,
	}

	created, revision, err := h.writer.CreateRepository(c.Request.Context(), repository)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("ETag", strconv.FormatUint(revision, 10))
	c.JSON(http.StatusCreated, created)
}

func (h *apiHandler) getRepository(c *gin.Context) {
	repository, revision, err := h.reader.GetRepository(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatUint(revision, 10))
	c.JSON(http.StatusOK, repository)
}

func (h *apiHandler) updateSettings(c *gin.Context) {
	revision, err := revisionFromHeader(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Settings model.RepositorySettings `json:"settings"`
		Snowball model.SnowballSettings   `json:"snowball"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, newRevision, err := h.writer.UpdateRepositorySettings(
		c.Request.Context(), c.Param("uid"), req.Settings, req.Snowball, revision)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("ETag", strconv.FormatUint(newRevision, 10))
	c.JSON(http.StatusOK, updated)
}

func (h *apiHandler) archiveRepository(c *gin.Context) {
	revision, err := revisionFromHeader(c)
	if err != nil {
		respondError(c, err)
		return
	}

	archived, newRevision, err := h.writer.ArchiveRepository(c.Request.Context(), c.Param("uid"), revision)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("ETag", strconv.FormatUint(newRevision, 10))
	c.JSON(http.StatusOK, archived)
}

func (h *apiHandler) getAnalytics(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := utils.ValidateRFC3339(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		since = parsed
	}

	snapshot, err := h.analytics.Snapshot(c.Request.Context(), c.Param("uid"), since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ==================== members ====================

func (h *apiHandler) listMembers(c *gin.Context) {
	status := model.MemberStatus(c.Query("status"))
	members, err := h.reader.ListMembers(c.Request.Context(), c.Param("uid"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

func (h *apiHandler) addMember(c *gin.Context) {
	var req struct {
		Email        string   `json:"email" binding:"required"`
		Name         string   `json:"name"`
		Organization string   `json:"organization"`
		Tags         []string `json:"tags"`
		AddedBy      string   `json:"added_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member := &model.MembershipRecord{
		RepositoryUID: c.Param("uid"),
		Email:         req.Email,
		Name:          req.Name,
		Organization:  req.Organization,
		Tags:          req.Tags,
		Source:        model.MemberSourceDirect,
		AddedBy:       req.AddedBy,
	}

	created, revision, err := h.writer.AddMember(c.Request.Context(), member)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("ETag", strconv.FormatUint(revision, 10))
	c.JSON(http.StatusCreated, created)
}

func (h *apiHandler) getMember(c *gin.Context) {
	member, revision, err := h.reader.GetMember(c.Request.Context(), c.Param("uid"), c.Param("member_uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatUint(revision, 10))
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) verifyMember(c *gin.Context) {
	member, err := h.writer.VerifyMember(c.Request.Context(), c.Param("uid"), c.Param("member_uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) reinstateMember(c *gin.Context) {
	member, err := h.writer.ReinstateMember(c.Request.Context(), c.Param("uid"), c.Param("member_uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) removeMember(c *gin.Context) {
	member, err := h.writer.RemoveMember(c.Request.Context(), c.Param("uid"), c.Param("member_uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) listDigestRecipients(c *gin.Context) {
	recipients, err := h.reader.ListDigestRecipients(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients, "total": len(recipients)})
}

func (h *apiHandler) optOut(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.writer.OptOutMember(c.Request.Context(), c.Param("uid"), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) recordEngagement(c *gin.Context) {
	var req struct {
		MemberUID string `json:"member_uid" binding:"required"`
		Kind      string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.writer.RecordEngagement(
		c.Request.Context(), c.Param("uid"), req.MemberUID, service.EngagementKind(req.Kind))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) recordBounce(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Hard  bool   `json:"hard"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.writer.RecordBounce(c.Request.Context(), c.Param("uid"), req.Email, req.Hard)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *apiHandler) recordComplaint(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.writer.RecordComplaint(c.Request.Context(), c.Param("uid"), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// ==================== snowball ====================

func (h *apiHandler) listCandidates(c *gin.Context) {
	candidates, err := h.candidates.ListCandidates(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "total": len(candidates)})
}

func (h *apiHandler) approveCandidate(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.engine.ApproveCandidate(c.Request.Context(), c.Param("uid"), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// processForward is the synchronous webhook variant of the NATS forward
// subscription, for inbound-email providers that deliver over HTTP.
func (h *apiHandler) processForward(c *gin.Context) {
	var event model.ForwardEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event.RepositoryUID = c.Param("uid")

	events, err := h.engine.ProcessForward(c.Request.Context(), &event)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// ==================== imports ====================

func (h *apiHandler) startImport(c *gin.Context) {
	payload, filename, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := h.importer.StartImport(
		c.Request.Context(), c.Param("uid"), filename,
		c.GetHeader(constants.XOnBehalfOfHeader), payload)
	if err != nil {
		// A failed validation still produced a record for auditing.
		if record != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "import": record})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"tracking_code": record.TrackingCode,
		"import":        record,
	})
}

func (h *apiHandler) validateCSV(c *gin.Context) {
	payload, _, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result := h.validator.Validate(c.Request.Context(), payload, int64(len(payload)))
	c.JSON(http.StatusOK, result)
}

func (h *apiHandler) listImports(c *gin.Context) {
	records, err := h.reader.ListImports(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": records, "total": len(records)})
}

func (h *apiHandler) getImport(c *gin.Context) {
	record, _, err := h.reader.GetImportByTrackingCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *apiHandler) cancelImport(c *gin.Context) {
	record, _, err := h.reader.GetImportByTrackingCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	cancelled, err := h.importer.CancelImport(c.Request.Context(), record.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

// readUpload extracts the CSV payload from either a multipart form field
// named "file" or a raw request body.
func readUpload(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("file")
	if err == nil {
		defer func() {
			_ = file.Close()
		}()
		payload, readErr := io.ReadAll(io.LimitReader(file, constants.MaxImportFileBytes+1))
		if readErr != nil {
			return nil, "", errs.NewUnexpected("failed to read upload", readErr)
		}
		return payload, header.Filename, nil
	}

	payload, readErr := io.ReadAll(io.LimitReader(c.Request.Body, constants.MaxImportFileBytes+1))
	if readErr != nil {
		return nil, "", errs.NewUnexpected("failed to read request body", readErr)
	}
	if len(payload) == 0 {
		return nil, "", errs.NewValidation("empty upload")
	}
	return payload, "upload.csv", nil
}
