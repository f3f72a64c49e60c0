// Package api exposes the document service over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docvault/internal/docs"
	"docvault/internal/model"
)

// Handler serves the document endpoints.
type Handler struct {
	svc    *docs.Service
	logger docs.Logger
}

func NewHandler(svc *docs.Service, logger docs.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// documentResponse is the caller-facing view of a record. Storage
// locators and key ids stay internal.
type documentResponse struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	DocumentType    string            `json:"document_type"`
	Version         int64             `json:"version"`
	Status          string            `json:"status"`
	OCRStatus       string            `json:"ocr_status"`
	OCRResult       *model.OCRFields  `json:"ocr_result,omitempty"`
	Checksum        string            `json:"checksum"`
	SizeBytes       int64             `json:"size_bytes"`
	ContentType     string            `json:"content_type"`
	UploadedAt      time.Time         `json:"uploaded_at"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty"`
	PurgeEligibleAt *time.Time        `json:"purge_eligible_at,omitempty"`
}

func toResponse(rec *model.DocumentRecord) documentResponse {
	return documentResponse{
		ID:              rec.ID,
		OwnerID:         rec.OwnerID,
		DocumentType:    rec.DocumentType,
		Version:         rec.Version,
		Status:          string(rec.Status),
		OCRStatus:       string(rec.OCRStatus),
		OCRResult:       rec.OCRResult,
		Checksum:        rec.Checksum,
		SizeBytes:       rec.SizeBytes,
		ContentType:     rec.ContentType,
		UploadedAt:      rec.UploadedAt,
		DeletedAt:       rec.DeletedAt,
		PurgeEligibleAt: rec.PurgeEligibleAt,
	}
}

// Upload handles POST /documents as a multipart form with fields
// owner_id, document_type, and file.
func (h *Handler) Upload(c *gin.Context) {
	ownerID := c.PostForm("owner_id")
	documentType := c.PostForm("document_type")

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file field"})
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")

	rec, err := h.svc.Upload(c.Request.Context(), ownerID, documentType, src, contentType)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(rec))
}

// Get handles GET /documents/:id, returning the decrypted content.
func (h *Handler) Get(c *gin.Context) {
	rec, content, err := h.svc.Retrieve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeContent(c, rec, content)
}

// GetMeta handles GET /documents/:id/meta.
func (h *Handler) GetMeta(c *gin.Context) {
	rec, err := h.svc.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(rec))
}

// GetCurrent handles GET /owners/:owner/documents/:type/current.
func (h *Handler) GetCurrent(c *gin.Context) {
	rec, content, err := h.svc.RetrieveCurrent(c.Request.Context(), c.Param("owner"), c.Param("type"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeContent(c, rec, content)
}

// ListVersions handles GET /owners/:owner/documents/:type/versions.
func (h *Handler) ListVersions(c *gin.Context) {
	recs, err := h.svc.ListVersions(c.Request.Context(), c.Param("owner"), c.Param("type"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]documentResponse, len(recs))
	for i, rec := range recs {
		out[i] = toResponse(rec)
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

// GetVersion handles GET /owners/:owner/documents/:type/versions/:version.
func (h *Handler) GetVersion(c *gin.Context) {
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil || version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}

	rec, content, err := h.svc.RetrieveVersion(c.Request.Context(), c.Param("owner"), c.Param("type"), version)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeContent(c, rec, content)
}

// Delete handles DELETE /documents/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeContent(c *gin.Context, rec *model.DocumentRecord, content []byte) {
	c.Header("X-Document-Id", rec.ID)
	c.Header("X-Document-Version", strconv.FormatInt(rec.Version, 10))
	c.Header("X-Checksum-Sha256", rec.Checksum)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID))
	c.Data(http.StatusOK, rec.ContentType, content)
}

// writeError maps service errors onto HTTP statuses. Security-relevant
// faults return a generic message; details stay in the logs.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docs.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
	case errors.Is(err, docs.ErrUnsupportedMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type"})
	case errors.Is(err, docs.ErrUnknownDocumentType), errors.Is(err, docs.ErrMissingOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, docs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, docs.ErrPurged):
		c.JSON(http.StatusGone, gin.H{"error": "document purged"})
	case errors.Is(err, docs.ErrKeyUnavailable), errors.Is(err, docs.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		// Includes decryption, integrity, and storage consistency
		// faults: no detail leaks to the caller.
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
