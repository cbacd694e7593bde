// Package tasks defines the payload structures sent over Kafka.
package tasks

// DatasetProcessingTask asks the processing pipeline to ingest a completed
// upload for the given dataset type on behalf of the uploading user.
type DatasetProcessingTask struct {
	UploadID    string `json:"upload_id"`
	DatasetType string `json:"dataset_type"`
	FileName    string `json:"file_name"`
	UserID      uint   `json:"user_id"`
}
