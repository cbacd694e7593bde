// Package service contains the application business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"neuroscreen-go/internal/model"
	"neuroscreen-go/internal/repository"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/storage"
	"neuroscreen-go/pkg/tasks"
	"neuroscreen-go/pkg/token"

	"gorm.io/gorm"
)

const (
	// DefaultChunkSize is used when the client does not declare one (5MB).
	DefaultChunkSize = 5 * 1024 * 1024
)

var (
	// ErrUploadNotFound means no session exists for (uploadID, user).
	ErrUploadNotFound = errors.New("upload session not found")
	// ErrUploadComplete means the session no longer accepts chunks.
	ErrUploadComplete = errors.New("upload session already complete")
	// ErrUploadNotComplete means retrieval was requested before completion.
	ErrUploadNotComplete = errors.New("upload session not complete")
)

// ChunkReport is the per-chunk acceptance result.
type ChunkReport struct {
	ChunkIndex     int  `json:"chunkIndex"`
	ChunksUploaded int  `json:"chunksUploaded"`
	TotalChunks    int  `json:"totalChunks"`
	IsComplete     bool `json:"isComplete"`
}

// UploadService manages resumable chunked uploads: session creation, chunk
// acceptance, completion detection and reassembled retrieval.
type UploadService interface {
	InitUpload(ctx context.Context, userID uint, fileName string, fileSize int64, mimeType string, chunkSize int64, metadata map[string]string) (*model.ChunkedUpload, error)
	AcceptChunk(ctx context.Context, userID uint, uploadID string, chunkIndex int, chunk io.Reader, size int64) (*ChunkReport, error)
	GetStatus(ctx context.Context, userID uint, uploadID string) (*model.ChunkedUpload, error)
	ListUploads(ctx context.Context, userID uint) ([]model.ChunkedUpload, error)
	Retrieve(ctx context.Context, userID uint, uploadID string) (*model.ChunkedUpload, io.ReadCloser, error)
	DeleteUpload(ctx context.Context, userID uint, uploadID string) error
}

// TaskDispatchFunc publishes a processing task for a completed upload. Nil
// disables dispatch.
type TaskDispatchFunc func(task tasks.DatasetProcessingTask) error

type uploadService struct {
	uploadRepo repository.UploadRepository
	store      storage.ObjectStore
	dispatch   TaskDispatchFunc
}

// NewUploadService creates a new UploadService.
func NewUploadService(uploadRepo repository.UploadRepository, store storage.ObjectStore, dispatch TaskDispatchFunc) UploadService {
	return &uploadService{
		uploadRepo: uploadRepo,
		store:      store,
		dispatch:   dispatch,
	}
}

// InitUpload creates a new upload session in 'uploading' status. The storage
// prefix is keyed by user and timestamp so concurrent uploads of the same
// file name never collide.
func (s *uploadService) InitUpload(ctx context.Context, userID uint, fileName string, fileSize int64, mimeType string, chunkSize int64, metadata map[string]string) (*model.ChunkedUpload, error) {
	if fileName == "" {
		return nil, errors.New("fileName is required")
	}
	if fileSize <= 0 {
		return nil, errors.New("fileSize is required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	totalChunks := int(math.Ceil(float64(fileSize) / float64(chunkSize)))
	uploadID := token.GenerateRandomString(16)
	prefix := fmt.Sprintf("datasets/%d/%d_%s", userID, time.Now().Unix(), token.GenerateRandomString(6))

	session := &model.ChunkedUpload{
		UploadID:      uploadID,
		FileName:      fileName,
		FileSize:      fileSize,
		MimeType:      mimeType,
		ChunkSize:     chunkSize,
		TotalChunks:   totalChunks,
		Status:        model.UploadStatusUploading,
		StoragePrefix: prefix,
		Metadata:      metadata,
		UserID:        userID,
	}
	if err := s.uploadRepo.CreateSession(session); err != nil {
		log.Errorf("[InitUpload] failed to create upload session, user=%d, error: %v", userID, err)
		return nil, err
	}

	log.Infof("[InitUpload] session created, uploadID=%s, file=%s, size=%d, chunks=%d", uploadID, fileName, fileSize, totalChunks)
	return session, nil
}

// AcceptChunk stores one chunk and re-derives the session's progress from the
// persisted chunk rows. Safe under concurrent and duplicate invocation for
// the same index: the object write overwrites, the chunk row upserts, and the
// count is a distinct-index count.
func (s *uploadService) AcceptChunk(ctx context.Context, userID uint, uploadID string, chunkIndex int, chunk io.Reader, size int64) (*ChunkReport, error) {
	session, err := s.uploadRepo.GetSession(uploadID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		log.Errorf("[AcceptChunk] failed to load session %s: %v", uploadID, err)
		return nil, err
	}
	if session.Status == model.UploadStatusComplete {
		return nil, ErrUploadComplete
	}
	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, fmt.Errorf("chunk index %d out of range [0,%d)", chunkIndex, session.TotalChunks)
	}

	// Fast duplicate check against the Redis bitmap. A Redis failure only
	// costs us the short-circuit; the write below is idempotent anyway.
	marked, err := s.uploadRepo.IsChunkMarked(ctx, uploadID, chunkIndex)
	if err != nil {
		log.Warnf("[AcceptChunk] redis chunk-mark check failed, uploadID=%s, index=%d: %v", uploadID, chunkIndex, err)
		marked = false
	}

	if !marked {
		objectName := chunkObjectName(session.StoragePrefix, chunkIndex)
		if err := s.store.Put(ctx, objectName, chunk, size, "application/octet-stream"); err != nil {
			log.Errorf("[AcceptChunk] failed to store chunk, object=%s: %v", objectName, err)
			return nil, fmt.Errorf("failed to store chunk %d: %w", chunkIndex, err)
		}

		if err := s.uploadRepo.UpsertChunk(&model.UploadChunk{
			UploadID:    uploadID,
			ChunkIndex:  chunkIndex,
			StoragePath: objectName,
			ByteSize:    size,
		}); err != nil {
			log.Errorf("[AcceptChunk] failed to record chunk row, uploadID=%s, index=%d: %v", uploadID, chunkIndex, err)
			return nil, err
		}

		if err := s.uploadRepo.MarkChunk(ctx, uploadID, chunkIndex); err != nil {
			log.Warnf("[AcceptChunk] failed to mark chunk in redis, uploadID=%s, index=%d: %v", uploadID, chunkIndex, err)
		}
	}

	count, err := s.uploadRepo.CountChunks(uploadID)
	if err != nil {
		log.Errorf("[AcceptChunk] failed to count chunks, uploadID=%s: %v", uploadID, err)
		return nil, err
	}

	session.ChunksReceived = count
	isComplete := count >= session.TotalChunks
	if isComplete && session.Status != model.UploadStatusComplete {
		now := time.Now()
		session.Status = model.UploadStatusComplete
		session.CompletedAt = &now
	}
	if err := s.uploadRepo.UpdateSession(session); err != nil {
		log.Errorf("[AcceptChunk] failed to update session, uploadID=%s: %v", uploadID, err)
		return nil, err
	}

	if isComplete {
		log.Infof("[AcceptChunk] upload complete, uploadID=%s, chunks=%d", uploadID, count)
		if err := s.uploadRepo.ClearChunkMarks(ctx, uploadID); err != nil {
			log.Warnf("[AcceptChunk] failed to clear redis chunk marks, uploadID=%s: %v", uploadID, err)
		}
		s.dispatchIfDataset(session)
	} else {
		log.Infof("[AcceptChunk] chunk accepted, uploadID=%s, index=%d, progress=%d/%d", uploadID, chunkIndex, count, session.TotalChunks)
	}

	return &ChunkReport{
		ChunkIndex:     chunkIndex,
		ChunksUploaded: count,
		TotalChunks:    session.TotalChunks,
		IsComplete:     isComplete,
	}, nil
}

// GetStatus fetches one session with its chunk list.
func (s *uploadService) GetStatus(ctx context.Context, userID uint, uploadID string) (*model.ChunkedUpload, error) {
	session, err := s.uploadRepo.GetSessionWithChunks(uploadID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return session, nil
}

// ListUploads lists the caller's sessions.
func (s *uploadService) ListUploads(ctx context.Context, userID uint) ([]model.ChunkedUpload, error) {
	return s.uploadRepo.FindSessionsByUserID(userID)
}

// Retrieve opens the reassembled byte stream of a complete upload. Every
// chunk is opened before any byte is served so a missing chunk fails the
// whole retrieval rather than producing a truncated result.
func (s *uploadService) Retrieve(ctx context.Context, userID uint, uploadID string) (*model.ChunkedUpload, io.ReadCloser, error) {
	session, err := s.uploadRepo.GetSessionWithChunks(uploadID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUploadNotFound
		}
		return nil, nil, err
	}
	if session.Status != model.UploadStatusComplete {
		return nil, nil, ErrUploadNotComplete
	}

	readers := make([]io.Reader, 0, len(session.Chunks))
	closers := make([]io.Closer, 0, len(session.Chunks))
	for _, chunk := range session.Chunks {
		rc, err := s.store.Get(ctx, chunk.StoragePath)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			log.Errorf("[Retrieve] failed to open chunk %d of upload %s: %v", chunk.ChunkIndex, uploadID, err)
			return nil, nil, fmt.Errorf("failed to download chunk %d: %w", chunk.ChunkIndex, err)
		}
		readers = append(readers, rc)
		closers = append(closers, rc)
	}

	return session, &multiReadCloser{
		Reader:  io.MultiReader(readers...),
		closers: closers,
	}, nil
}

// DeleteUpload removes the session, its chunk rows, its Redis marks and its
// stored objects. Object deletions are best effort.
func (s *uploadService) DeleteUpload(ctx context.Context, userID uint, uploadID string) error {
	session, err := s.uploadRepo.GetSessionWithChunks(uploadID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUploadNotFound
		}
		return err
	}

	for _, chunk := range session.Chunks {
		if err := s.store.Remove(ctx, chunk.StoragePath); err != nil {
			log.Warnf("[DeleteUpload] failed to remove object %s: %v", chunk.StoragePath, err)
		}
	}
	if err := s.uploadRepo.ClearChunkMarks(ctx, uploadID); err != nil {
		log.Warnf("[DeleteUpload] failed to clear redis chunk marks, uploadID=%s: %v", uploadID, err)
	}
	if err := s.uploadRepo.DeleteSession(uploadID, userID); err != nil {
		log.Errorf("[DeleteUpload] failed to delete session %s: %v", uploadID, err)
		return err
	}
	log.Infof("[DeleteUpload] session deleted, uploadID=%s", uploadID)
	return nil
}

// dispatchIfDataset enqueues a processing task when a completed upload's
// metadata declares a dataset type. Dispatch failures are logged, never
// surfaced: the client can still trigger processing explicitly.
func (s *uploadService) dispatchIfDataset(session *model.ChunkedUpload) {
	if s.dispatch == nil {
		return
	}
	datasetType, ok := session.Metadata["dataset_type"]
	if !ok || datasetType == "" {
		return
	}
	task := tasks.DatasetProcessingTask{
		UploadID:    session.UploadID,
		DatasetType: datasetType,
		FileName:    session.FileName,
		UserID:      session.UserID,
	}
	if err := s.dispatch(task); err != nil {
		log.Errorf("[AcceptChunk] failed to dispatch processing task, uploadID=%s: %v", session.UploadID, err)
	} else {
		log.Infof("[AcceptChunk] processing task dispatched, uploadID=%s, type=%s", session.UploadID, datasetType)
	}
}

// chunkObjectName builds the storage slot for a chunk index.
func chunkObjectName(prefix string, chunkIndex int) string {
	return fmt.Sprintf("%s/chunk_%05d", prefix, chunkIndex)
}

// multiReadCloser concatenates chunk readers and closes them together.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
