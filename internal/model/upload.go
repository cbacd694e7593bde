// Package model defines the Go structs mapped to database tables.
package model

import "time"

// Upload session lifecycle states.
const (
	UploadStatusPending   = "pending"
	UploadStatusUploading = "uploading"
	UploadStatusComplete  = "complete"
	UploadStatusFailed    = "failed"
)

// ChunkedUpload is the ORM model for the 'chunked_uploads' table. One row per
// client-initiated transfer; mutated by each accepted chunk and immutable
// once complete.
type ChunkedUpload struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	UploadID       string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"uploadId"`
	FileName       string      `gorm:"type:varchar(255);not null" json:"fileName"`
	FileSize       int64       `gorm:"not null" json:"fileSize"`
	MimeType       string      `gorm:"type:varchar(100)" json:"mimeType"`
	ChunkSize      int64       `gorm:"not null" json:"chunkSize"`
	TotalChunks    int         `gorm:"not null" json:"totalChunks"`
	ChunksReceived int         `gorm:"not null;default:0" json:"chunksReceived"`
	Status         string      `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	StoragePrefix  string      `gorm:"type:varchar(255);not null" json:"storagePrefix"`
	Metadata       MetadataMap `gorm:"type:json" json:"metadata"`
	UserID         uint        `gorm:"not null;index" json:"userId"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	CompletedAt    *time.Time  `gorm:"default:null" json:"completedAt"`

	Chunks []UploadChunk `gorm:"foreignKey:UploadID;references:UploadID;constraint:OnDelete:CASCADE" json:"chunks,omitempty"`
}

// TableName maps the model to its table.
func (ChunkedUpload) TableName() string {
	return "chunked_uploads"
}

// UploadChunk is the ORM model for the 'upload_chunks' table. One physical
// slice of an upload. (upload_id, chunk_index) is unique: re-uploading the
// same index overwrites instead of duplicating.
type UploadChunk struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	UploadID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_upload_chunk,priority:1" json:"uploadId"`
	ChunkIndex  int       `gorm:"not null;uniqueIndex:idx_upload_chunk,priority:2" json:"chunkIndex"`
	StoragePath string    `gorm:"type:varchar(255);not null" json:"storagePath"`
	ByteSize    int64     `gorm:"not null" json:"byteSize"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName maps the model to its table.
func (UploadChunk) TableName() string {
	return "upload_chunks"
}
