// Package handler contains the HTTP controllers.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"neuroscreen-go/internal/service"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// UploadHandler serves the chunked upload API.
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// InitUploadRequest is the body for session creation.
type InitUploadRequest struct {
	FileName string            `json:"fileName" binding:"required"`
	FileSize int64             `json:"fileSize" binding:"required"`
	MimeType string            `json:"mimeType"`
	ChunkSize int64            `json:"chunkSize"`
	Metadata map[string]string `json:"metadata"`
}

// InitUpload handles session creation.
func (h *UploadHandler) InitUpload(c *gin.Context) {
	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName and fileSize are required"})
		return
	}

	claims := c.MustGet("claims").(*token.CustomClaims)

	session, err := h.uploadService.InitUpload(c.Request.Context(), claims.UserID, req.FileName, req.FileSize, req.MimeType, req.ChunkSize, req.Metadata)
	if err != nil {
		log.Error("InitUpload: failed to create session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create upload session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "upload session created",
		"data": gin.H{
			"uploadId":      session.UploadID,
			"totalChunks":   session.TotalChunks,
			"chunkSize":     session.ChunkSize,
			"storagePrefix": session.StoragePrefix,
		},
	})
}

// UploadChunk handles one chunk of a session via multipart form.
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	uploadID := c.PostForm("uploadId")
	chunkIndexStr := c.PostForm("chunkIndex")
	if uploadID == "" || chunkIndexStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadId and chunkIndex are required"})
		return
	}
	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk index"})
		return
	}

	file, header, err := c.Request.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing chunk payload"})
		return
	}
	defer file.Close()

	claims := c.MustGet("claims").(*token.CustomClaims)

	report, err := h.uploadService.AcceptChunk(c.Request.Context(), claims.UserID, uploadID, chunkIndex, file, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUploadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
		case errors.Is(err, service.ErrUploadComplete):
			c.JSON(http.StatusConflict, gin.H{"error": "upload session already complete"})
		default:
			log.Error("UploadChunk: failed to accept chunk", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chunk upload failed: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "chunk accepted",
		"data":    report,
	})
}

// GetStatus returns a single session with its chunks, or the caller's whole
// session list when no uploadId is given.
func (h *UploadHandler) GetStatus(c *gin.Context) {
	claims := c.MustGet("claims").(*token.CustomClaims)

	uploadID := c.Query("uploadId")
	if uploadID == "" {
		sessions, err := h.uploadService.ListUploads(c.Request.Context(), claims.UserID)
		if err != nil {
			log.Error("GetStatus: failed to list sessions", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list upload sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code":    http.StatusOK,
			"message": "upload sessions listed",
			"data":    sessions,
		})
		return
	}

	session, err := h.uploadService.GetStatus(c.Request.Context(), claims.UserID, uploadID)
	if err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
			return
		}
		log.Error("GetStatus: failed to fetch session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch upload status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "upload status fetched",
		"data":    session,
	})
}

// Retrieve streams the reassembled bytes of a complete upload.
func (h *UploadHandler) Retrieve(c *gin.Context) {
	uploadID := c.Query("uploadId")
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploadId is required"})
		return
	}

	claims := c.MustGet("claims").(*token.CustomClaims)

	session, reader, err := h.uploadService.Retrieve(c.Request.Context(), claims.UserID, uploadID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUploadNotFound), errors.Is(err, service.ErrUploadNotComplete):
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found or not complete"})
		default:
			log.Error("Retrieve: failed to open upload stream", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve upload"})
		}
		return
	}
	defer reader.Close()

	contentType := session.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", session.FileName),
	}
	c.DataFromReader(http.StatusOK, session.FileSize, contentType, reader, extraHeaders)
}

// DeleteUpload removes a session, its chunk rows and its stored objects.
func (h *UploadHandler) DeleteUpload(c *gin.Context) {
	uploadID := c.Param("uploadId")
	claims := c.MustGet("claims").(*token.CustomClaims)

	if err := h.uploadService.DeleteUpload(c.Request.Context(), claims.UserID, uploadID); err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
			return
		}
		log.Error("DeleteUpload: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete upload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "upload deleted",
	})
}
