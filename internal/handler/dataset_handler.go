package handler

import (
	"errors"
	"net/http"

	"neuroscreen-go/internal/dataset"
	"neuroscreen-go/internal/pipeline"
	"neuroscreen-go/internal/repository"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// DatasetHandler serves dataset processing and threshold queries.
type DatasetHandler struct {
	processor   *pipeline.Processor
	profileRepo repository.ProfileRepository
	registry    *dataset.Registry
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(processor *pipeline.Processor, profileRepo repository.ProfileRepository, registry *dataset.Registry) *DatasetHandler {
	return &DatasetHandler{
		processor:   processor,
		profileRepo: profileRepo,
		registry:    registry,
	}
}

// ProcessRequest is the body for a processing run. RawData takes priority
// over UploadID when both are supplied.
type ProcessRequest struct {
	UploadID    string `json:"uploadId"`
	DatasetType string `json:"datasetType" binding:"required"`
	RawData     string `json:"rawData"`
}

// processResponse wraps the pipeline result with the success flag.
type processResponse struct {
	Success bool `json:"success"`
	*pipeline.ProcessResult
}

// Process runs the ingestion pipeline for one dataset.
func (h *DatasetHandler) Process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "datasetType is required"})
		return
	}

	claims := c.MustGet("claims").(*token.CustomClaims)

	result, err := h.processor.Process(c.Request.Context(), pipeline.ProcessRequest{
		UserID:      claims.UserID,
		DatasetType: req.DatasetType,
		UploadID:    req.UploadID,
		RawData:     req.RawData,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownDatasetType), errors.Is(err, pipeline.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, pipeline.ErrUploadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		default:
			log.Error("Process: dataset processing failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dataset processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "dataset processed",
		"data":    processResponse{Success: true, ProcessResult: result},
	})
}

// ListTypes returns the registered dataset types and their metric columns.
func (h *DatasetHandler) ListTypes(c *gin.Context) {
	types := h.registry.Types()
	data := make([]gin.H, 0, len(types))
	for _, t := range types {
		data = append(data, gin.H{
			"datasetType": t,
			"metrics":     h.registry.Metrics(t),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "dataset types listed",
		"data":    data,
	})
}

// GetThresholds returns the current calibrated thresholds for a dataset type.
func (h *DatasetHandler) GetThresholds(c *gin.Context) {
	datasetType := c.Query("datasetType")
	if !h.registry.Known(datasetType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown dataset type"})
		return
	}

	thresholds, err := h.profileRepo.FindThresholds(datasetType)
	if err != nil {
		log.Error("GetThresholds: query failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch thresholds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "thresholds fetched",
		"data":    thresholds,
	})
}
