// Package repository defines the data access interfaces and their
// GORM/Redis implementations.
package repository

import (
	"context"
	"errors"

	"neuroscreen-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// UploadRepository persists upload sessions and their chunks. The database
// is the completion authority: received counts come from counting persisted
// chunk rows, never from a client-supplied counter. Redis carries a bitmap
// mirror used only as a cheap duplicate-chunk short-circuit.
type UploadRepository interface {
	// Session operations
	CreateSession(session *model.ChunkedUpload) error
	GetSession(uploadID string, userID uint) (*model.ChunkedUpload, error)
	GetSessionWithChunks(uploadID string, userID uint) (*model.ChunkedUpload, error)
	UpdateSession(session *model.ChunkedUpload) error
	FindSessionsByUserID(userID uint) ([]model.ChunkedUpload, error)
	DeleteSession(uploadID string, userID uint) error

	// Chunk operations
	UpsertChunk(chunk *model.UploadChunk) error
	GetChunks(uploadID string) ([]model.UploadChunk, error)
	CountChunks(uploadID string) (int, error)

	// Redis fast-path chunk marks
	IsChunkMarked(ctx context.Context, uploadID string, chunkIndex int) (bool, error)
	MarkChunk(ctx context.Context, uploadID string, chunkIndex int) error
	ClearChunkMarks(ctx context.Context, uploadID string) error
}

// uploadRepository is the GORM+Redis implementation of UploadRepository.
type uploadRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *gorm.DB, redisClient *redis.Client) UploadRepository {
	return &uploadRepository{db: db, redisClient: redisClient}
}

func (r *uploadRepository) chunkMarkKey(uploadID string) string {
	return "upload:chunks:" + uploadID
}

// CreateSession inserts a new upload session row.
func (r *uploadRepository) CreateSession(session *model.ChunkedUpload) error {
	return r.db.Create(session).Error
}

// GetSession fetches a session scoped to its owning user.
func (r *uploadRepository) GetSession(uploadID string, userID uint) (*model.ChunkedUpload, error) {
	var session model.ChunkedUpload
	err := r.db.Where("upload_id = ? AND user_id = ?", uploadID, userID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionWithChunks fetches a session together with its chunk rows in
// index order.
func (r *uploadRepository) GetSessionWithChunks(uploadID string, userID uint) (*model.ChunkedUpload, error) {
	var session model.ChunkedUpload
	err := r.db.Preload("Chunks", func(db *gorm.DB) *gorm.DB {
		return db.Order("chunk_index asc")
	}).Where("upload_id = ? AND user_id = ?", uploadID, userID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession saves the full session row.
func (r *uploadRepository) UpdateSession(session *model.ChunkedUpload) error {
	return r.db.Save(session).Error
}

// FindSessionsByUserID lists all sessions owned by a user, newest first.
func (r *uploadRepository) FindSessionsByUserID(userID uint) ([]model.ChunkedUpload, error) {
	var sessions []model.ChunkedUpload
	err := r.db.Where("user_id = ?", userID).Order("created_at desc").Find(&sessions).Error
	return sessions, err
}

// DeleteSession removes a session and its chunk rows. The chunk delete is
// explicit so engines without enforced foreign keys behave like the cascade.
func (r *uploadRepository) DeleteSession(uploadID string, userID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", uploadID).Delete(&model.UploadChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("upload_id = ? AND user_id = ?", uploadID, userID).Delete(&model.ChunkedUpload{}).Error
	})
}

// UpsertChunk records a chunk, overwriting the row for an already-seen index
// so client retries never duplicate.
func (r *uploadRepository) UpsertChunk(chunk *model.UploadChunk) error {
	var existing model.UploadChunk
	err := r.db.Where("upload_id = ? AND chunk_index = ?", chunk.UploadID, chunk.ChunkIndex).First(&existing).Error
	if err == nil {
		existing.StoragePath = chunk.StoragePath
		existing.ByteSize = chunk.ByteSize
		return r.db.Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.db.Create(chunk).Error
}

// GetChunks returns all chunk rows for an upload ordered by index.
func (r *uploadRepository) GetChunks(uploadID string) ([]model.UploadChunk, error) {
	var chunks []model.UploadChunk
	err := r.db.Where("upload_id = ?", uploadID).Order("chunk_index asc").Find(&chunks).Error
	return chunks, err
}

// CountChunks counts the persisted chunk rows for an upload. The unique
// (upload_id, chunk_index) index makes this a distinct-index count, safe
// under concurrent and duplicate uploads.
func (r *uploadRepository) CountChunks(uploadID string) (int, error) {
	var count int64
	err := r.db.Model(&model.UploadChunk{}).Where("upload_id = ?", uploadID).Count(&count).Error
	return int(count), err
}

// IsChunkMarked checks the Redis bitmap for an already-uploaded index.
func (r *uploadRepository) IsChunkMarked(ctx context.Context, uploadID string, chunkIndex int) (bool, error) {
	val, err := r.redisClient.GetBit(ctx, r.chunkMarkKey(uploadID), int64(chunkIndex)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// MarkChunk sets the bitmap bit for an uploaded index.
func (r *uploadRepository) MarkChunk(ctx context.Context, uploadID string, chunkIndex int) error {
	return r.redisClient.SetBit(ctx, r.chunkMarkKey(uploadID), int64(chunkIndex), 1).Err()
}

// ClearChunkMarks drops the bitmap key once a session is complete or deleted.
func (r *uploadRepository) ClearChunkMarks(ctx context.Context, uploadID string) error {
	return r.redisClient.Del(ctx, r.chunkMarkKey(uploadID)).Err()
}
