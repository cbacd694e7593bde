package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"neuroscreen-go/internal/dataset"
	"neuroscreen-go/internal/model"
	"neuroscreen-go/internal/repository"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/storage"
	"neuroscreen-go/pkg/tasks"

	"gorm.io/gorm"
)

// readBlockSize is the unit in which stored inputs are fed to the parser.
const readBlockSize = 64 * 1024

var (
	// ErrUnauthenticated means the request carries no caller identity.
	ErrUnauthenticated = errors.New("unauthenticated processing request")
	// ErrUnknownDatasetType means the declared type is not registered.
	ErrUnknownDatasetType = errors.New("unknown dataset type")
	// ErrMissingInput means neither rawData nor an uploadID was supplied.
	ErrMissingInput = errors.New("either rawData or uploadId must be supplied")
	// ErrUploadNotFound means the referenced upload does not exist for the
	// caller.
	ErrUploadNotFound = errors.New("upload not found")
)

// ProcessRequest is one dataset processing invocation. RawData takes priority
// over UploadID when both are present.
type ProcessRequest struct {
	UserID      uint
	DatasetType string
	UploadID    string
	RawData     string
}

// ThresholdSummary is the rounded per-metric view returned to the caller.
type ThresholdSummary struct {
	Metric           string  `json:"metric"`
	OptimalThreshold float64 `json:"optimalThreshold"`
	Weight           float64 `json:"weight"`
	PositiveMean     float64 `json:"positiveMean"`
	NegativeMean     float64 `json:"negativeMean"`
}

// ProcessResult reports what one run actually did. Skipped/failed counts let
// callers distinguish a full ingest from a partial one.
type ProcessResult struct {
	ProfilesInserted   int                `json:"profilesInserted"`
	ProfilesDropped    int                `json:"profilesDropped"`
	ThresholdsComputed int                `json:"thresholdsComputed"`
	PositiveCount      int                `json:"positiveCount"`
	NegativeCount      int                `json:"negativeCount"`
	RecordsSkipped     int                `json:"recordsSkipped"`
	ChunksFailed       int                `json:"chunksFailed"`
	Metrics            []string           `json:"metrics"`
	Thresholds         []ThresholdSummary `json:"thresholdsSummary"`
}

// Processor coordinates one processing request: resolves the input source,
// drives the parser and accumulator, batches profile writes and calibrates
// thresholds. All state is request-scoped; a Processor is safe for concurrent
// Process calls.
type Processor struct {
	uploadRepo  repository.UploadRepository
	profileRepo repository.ProfileRepository
	store       storage.ObjectStore
	registry    *dataset.Registry
	calibrator  *dataset.Calibrator
	batchSize   int
}

// NewProcessor creates a Processor. batchSize <= 0 selects the default.
func NewProcessor(
	uploadRepo repository.UploadRepository,
	profileRepo repository.ProfileRepository,
	store storage.ObjectStore,
	registry *dataset.Registry,
	batchSize int,
) *Processor {
	return &Processor{
		uploadRepo:  uploadRepo,
		profileRepo: profileRepo,
		store:       store,
		registry:    registry,
		calibrator:  dataset.NewCalibrator(),
		batchSize:   batchSize,
	}
}

// ProcessTask adapts Kafka dataset tasks onto Process.
func (p *Processor) ProcessTask(ctx context.Context, task tasks.DatasetProcessingTask) error {
	_, err := p.Process(ctx, ProcessRequest{
		UserID:      task.UserID,
		DatasetType: task.DatasetType,
		UploadID:    task.UploadID,
	})
	return err
}

// Process runs the full pipeline for one request. Input validation and the
// caller-scoped authorization check happen before any storage access; errors
// local to a single record or chunk are absorbed and counted, while errors
// that prevent a coherent processing context abort the request.
func (p *Processor) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if req.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	if !p.registry.Known(req.DatasetType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatasetType, req.DatasetType)
	}
	if req.RawData == "" && req.UploadID == "" {
		return nil, ErrMissingInput
	}

	log.Infof("[Process] starting, type=%s, user=%d, uploadID=%q, inline=%t",
		req.DatasetType, req.UserID, req.UploadID, req.RawData != "")

	// Resolve the input source. Loading the session through the caller's
	// identity is the authorization check: another user's upload is simply
	// not found.
	var session *model.ChunkedUpload
	if req.RawData == "" {
		var err error
		session, err = p.uploadRepo.GetSessionWithChunks(req.UploadID, req.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUploadNotFound
			}
			return nil, fmt.Errorf("failed to load upload %s: %w", req.UploadID, err)
		}
	}

	// Reset the scope so reprocessing replaces rather than accumulates.
	if req.RawData != "" {
		if err := p.profileRepo.DeleteProfilesByTypeAndUser(req.DatasetType, req.UserID); err != nil {
			return nil, fmt.Errorf("failed to reset profiles: %w", err)
		}
	} else {
		if err := p.profileRepo.DeleteProfilesByTypeAndUpload(req.DatasetType, req.UploadID); err != nil {
			return nil, fmt.Errorf("failed to reset profiles: %w", err)
		}
	}

	parser := dataset.NewParser()
	accumulator := dataset.NewAccumulator()
	writer := NewProfileBatchWriter(p.profileRepo, p.batchSize)

	result := &ProcessResult{}
	ingest := func(records []dataset.Record) {
		p.ingestRecords(req, records, accumulator, writer, result)
	}

	// Stream the input through the parser in units, carrying header and
	// leftover-line state across unit boundaries.
	if req.RawData != "" {
		ingest(parser.Feed(req.RawData))
	} else {
		if err := p.streamUpload(ctx, session, parser, ingest, result); err != nil {
			return nil, err
		}
	}
	ingest(parser.Finish())
	result.RecordsSkipped = parser.Skipped()

	written, dropped := writer.Finish()
	result.ProfilesInserted = written
	result.ProfilesDropped = dropped

	// Calibrate from the values seen during this run; no table re-read.
	thresholds := make([]*model.ComputedThreshold, 0)
	for _, metric := range accumulator.Metrics() {
		pos := accumulator.Snapshot(metric, true)
		neg := accumulator.Snapshot(metric, false)
		row, ok := p.calibrator.Calibrate(req.DatasetType, metric, pos, neg)
		if !ok {
			continue
		}
		thresholds = append(thresholds, row)
	}

	result.Metrics = accumulator.Metrics()
	if err := p.profileRepo.ReplaceThresholds(req.DatasetType, thresholds); err != nil {
		// Best-effort posture: the run still reports, with zero thresholds
		// persisted.
		log.Errorf("[Process] failed to persist %d thresholds for type %s: %v", len(thresholds), req.DatasetType, err)
	} else {
		result.ThresholdsComputed = len(thresholds)
		for _, row := range thresholds {
			result.Thresholds = append(result.Thresholds, ThresholdSummary{
				Metric:           row.MetricName,
				OptimalThreshold: roundForDisplay(row.OptimalThreshold),
				Weight:           roundForDisplay(row.Weight),
				PositiveMean:     roundForDisplay(row.PositiveMean),
				NegativeMean:     roundForDisplay(row.NegativeMean),
			})
		}
	}
	if result.Metrics == nil {
		result.Metrics = []string{}
	}

	log.Infof("[Process] finished, type=%s, profiles=%d, thresholds=%d, skipped=%d, failedChunks=%d",
		req.DatasetType, result.ProfilesInserted, result.ThresholdsComputed, result.RecordsSkipped, result.ChunksFailed)
	return result, nil
}

// streamUpload feeds the parser from an assembled file when one exists,
// otherwise from the chunk sequence in index order. Chunk read failures are
// skipped and counted; the run continues with the remaining chunks.
func (p *Processor) streamUpload(ctx context.Context, session *model.ChunkedUpload, parser *dataset.Parser, ingest func([]dataset.Record), result *ProcessResult) error {
	assembled := fmt.Sprintf("%s/%s", session.StoragePrefix, session.FileName)
	if rc, err := p.store.Get(ctx, assembled); err == nil {
		defer rc.Close()
		log.Infof("[Process] streaming assembled file %s", assembled)
		if err := p.feedReader(rc, parser, ingest); err != nil {
			return fmt.Errorf("failed to read assembled file: %w", err)
		}
		return nil
	}

	if len(session.Chunks) == 0 {
		return fmt.Errorf("upload %s has no stored content", session.UploadID)
	}

	log.Infof("[Process] streaming %d chunks of upload %s", len(session.Chunks), session.UploadID)
	for _, chunk := range session.Chunks {
		rc, err := p.store.Get(ctx, chunk.StoragePath)
		if err != nil {
			log.Warnf("[Process] skipping chunk %d of upload %s: %v", chunk.ChunkIndex, session.UploadID, err)
			result.ChunksFailed++
			continue
		}
		if err := p.feedReader(rc, parser, ingest); err != nil {
			log.Warnf("[Process] read failed on chunk %d of upload %s: %v", chunk.ChunkIndex, session.UploadID, err)
			result.ChunksFailed++
		}
		_ = rc.Close()
	}
	return nil
}

// feedReader pushes a reader through the parser in bounded blocks.
func (p *Processor) feedReader(r io.Reader, parser *dataset.Parser, ingest func([]dataset.Record)) error {
	buf := make([]byte, readBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ingest(parser.Feed(string(buf[:n])))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ingestRecords pushes each record's features into the accumulator and hands
// the normalized profile to the batch writer.
func (p *Processor) ingestRecords(req ProcessRequest, records []dataset.Record, accumulator *dataset.Accumulator, writer *ProfileBatchWriter, result *ProcessResult) {
	for _, rec := range records {
		isPositive := dataset.IsPositiveLabel(req.DatasetType, rec.Label)
		if isPositive {
			result.PositiveCount++
		} else {
			result.NegativeCount++
		}

		for metric, value := range rec.Features {
			accumulator.Push(metric, isPositive, value)
		}

		profile := &model.ReferenceProfile{
			DatasetType:  req.DatasetType,
			SubjectLabel: rec.SubjectID,
			IsPositive:   isPositive,
			Features:     model.FeatureMap(rec.Features),
			UserID:       req.UserID,
		}
		if req.UploadID != "" && req.RawData == "" {
			uploadID := req.UploadID
			profile.UploadID = &uploadID
		}
		writer.Add(profile)
	}
}

// roundForDisplay rounds to four decimals for the human-readable summary.
func roundForDisplay(v float64) float64 {
	return math.Round(v*10000) / 10000
}
