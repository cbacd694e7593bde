// Package storage provides access to the object storage service (MinIO).
package storage

import (
	"context"
	"io"
	"time"

	"neuroscreen-go/internal/config"
	"neuroscreen-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient is the global MinIO client instance.
var MinioClient *minio.Client

// ObjectStore is the narrow object-storage surface the upload service and the
// dataset processor depend on. Chunk writes must overwrite cleanly so client
// retries of the same index are safe.
type ObjectStore interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectName string) error
}

// InitMinIO builds the MinIO client and makes sure the bucket exists.
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("failed to initialize MinIO client", err)
	}

	log.Info("MinIO client initialized successfully")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("failed to check MinIO bucket", err)
	}

	if !exists {
		log.Infof("bucket '%s' does not exist, creating...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("failed to create MinIO bucket", err)
		}
		log.Infof("bucket '%s' created successfully", bucketName)
	} else {
		log.Infof("bucket '%s' already exists", bucketName)
	}
}

// minioStore adapts the global MinIO client to the ObjectStore interface for
// a single bucket.
type minioStore struct {
	bucketName string
}

// NewObjectStore returns an ObjectStore backed by the global MinIO client.
func NewObjectStore(bucketName string) ObjectStore {
	return &minioStore{bucketName: bucketName}
}

// Put writes an object, replacing any existing object under the same name.
func (s *minioStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	_, err := MinioClient.PutObject(ctx, s.bucketName, objectName, reader, size, opts)
	return err
}

// Get opens an object for reading. MinIO defers most errors to the first
// Read, so callers must treat read errors as download failures too.
func (s *minioStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := MinioClient.GetObject(ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// Stat forces the lazy GetObject call to surface missing-object errors
	// before the caller starts streaming.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

// Remove deletes a single object.
func (s *minioStore) Remove(ctx context.Context, objectName string) error {
	return MinioClient.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
}

// GetPresignedURL generates a presigned URL for a given object.
func GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
