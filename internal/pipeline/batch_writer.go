// Package pipeline implements the dataset processing flow: input resolution,
// streaming parse, running statistics, batched persistence and threshold
// calibration.
package pipeline

import (
	"neuroscreen-go/internal/model"
	"neuroscreen-go/internal/repository"
	"neuroscreen-go/pkg/log"
)

// DefaultProfileBatchSize bounds the in-memory profile buffer when no batch
// size is configured.
const DefaultProfileBatchSize = 50

// ProfileBatchWriter buffers normalized profiles and flushes them in fixed
// size batches, decoupling parse rate from storage write rate and bounding
// peak memory regardless of dataset size.
//
// A failed batch is logged and dropped, never retried; Finish reports both
// the written and the dropped counts so callers can tell a partial ingest
// from a full one.
type ProfileBatchWriter struct {
	profileRepo repository.ProfileRepository
	batchSize   int

	buffer  []*model.ReferenceProfile
	written int
	failed  int
}

// NewProfileBatchWriter creates a writer flushing every batchSize profiles.
func NewProfileBatchWriter(profileRepo repository.ProfileRepository, batchSize int) *ProfileBatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultProfileBatchSize
	}
	return &ProfileBatchWriter{
		profileRepo: profileRepo,
		batchSize:   batchSize,
		buffer:      make([]*model.ReferenceProfile, 0, batchSize),
	}
}

// Add buffers one profile, flushing synchronously when the batch is full.
func (w *ProfileBatchWriter) Add(profile *model.ReferenceProfile) {
	w.buffer = append(w.buffer, profile)
	if len(w.buffer) >= w.batchSize {
		w.flush()
	}
}

// Finish flushes the remainder and returns the total counts of profiles
// written and dropped.
func (w *ProfileBatchWriter) Finish() (written, failed int) {
	w.flush()
	return w.written, w.failed
}

func (w *ProfileBatchWriter) flush() {
	if len(w.buffer) == 0 {
		return
	}
	batch := w.buffer
	w.buffer = make([]*model.ReferenceProfile, 0, w.batchSize)

	if err := w.profileRepo.BatchCreateProfiles(batch); err != nil {
		log.Errorf("[ProfileBatchWriter] failed to write batch of %d profiles: %v", len(batch), err)
		w.failed += len(batch)
		return
	}
	w.written += len(batch)
}
