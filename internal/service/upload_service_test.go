package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"neuroscreen-go/internal/model"
	"neuroscreen-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memUploadRepo is a stateful in-memory UploadRepository.
type memUploadRepo struct {
	sessions map[string]*model.ChunkedUpload
	chunks   map[string]map[int]*model.UploadChunk
	marks    map[string]map[int]bool

	redisDown bool
}

func newMemUploadRepo() *memUploadRepo {
	return &memUploadRepo{
		sessions: make(map[string]*model.ChunkedUpload),
		chunks:   make(map[string]map[int]*model.UploadChunk),
		marks:    make(map[string]map[int]bool),
	}
}

func (m *memUploadRepo) CreateSession(session *model.ChunkedUpload) error {
	m.sessions[session.UploadID] = session
	return nil
}

func (m *memUploadRepo) GetSession(uploadID string, userID uint) (*model.ChunkedUpload, error) {
	s, ok := m.sessions[uploadID]
	if !ok || s.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (m *memUploadRepo) GetSessionWithChunks(uploadID string, userID uint) (*model.ChunkedUpload, error) {
	s, err := m.GetSession(uploadID, userID)
	if err != nil {
		return nil, err
	}
	chunks, _ := m.GetChunks(uploadID)
	s.Chunks = chunks
	return s, nil
}

func (m *memUploadRepo) UpdateSession(session *model.ChunkedUpload) error {
	m.sessions[session.UploadID] = session
	return nil
}

func (m *memUploadRepo) FindSessionsByUserID(userID uint) ([]model.ChunkedUpload, error) {
	var out []model.ChunkedUpload
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memUploadRepo) DeleteSession(uploadID string, userID uint) error {
	delete(m.sessions, uploadID)
	delete(m.chunks, uploadID)
	return nil
}

func (m *memUploadRepo) UpsertChunk(chunk *model.UploadChunk) error {
	byIndex, ok := m.chunks[chunk.UploadID]
	if !ok {
		byIndex = make(map[int]*model.UploadChunk)
		m.chunks[chunk.UploadID] = byIndex
	}
	byIndex[chunk.ChunkIndex] = chunk
	return nil
}

func (m *memUploadRepo) GetChunks(uploadID string) ([]model.UploadChunk, error) {
	byIndex := m.chunks[uploadID]
	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]model.UploadChunk, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, *byIndex[i])
	}
	return out, nil
}

func (m *memUploadRepo) CountChunks(uploadID string) (int, error) {
	return len(m.chunks[uploadID]), nil
}

func (m *memUploadRepo) IsChunkMarked(ctx context.Context, uploadID string, chunkIndex int) (bool, error) {
	if m.redisDown {
		return false, errors.New("redis unavailable")
	}
	return m.marks[uploadID][chunkIndex], nil
}

func (m *memUploadRepo) MarkChunk(ctx context.Context, uploadID string, chunkIndex int) error {
	if m.redisDown {
		return errors.New("redis unavailable")
	}
	byIndex, ok := m.marks[uploadID]
	if !ok {
		byIndex = make(map[int]bool)
		m.marks[uploadID] = byIndex
	}
	byIndex[chunkIndex] = true
	return nil
}

func (m *memUploadRepo) ClearChunkMarks(ctx context.Context, uploadID string) error {
	delete(m.marks, uploadID)
	return nil
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	objects  map[string]string
	puts     int
	failGets map[string]bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]string), failGets: make(map[string]bool)}
}

func (m *memStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[objectName] = string(data)
	m.puts++
	return nil
}

func (m *memStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if m.failGets[objectName] {
		return nil, errors.New("object unavailable")
	}
	data, ok := m.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (m *memStore) Remove(ctx context.Context, objectName string) error {
	delete(m.objects, objectName)
	return nil
}

type uploadFixture struct {
	repo       *memUploadRepo
	store      *memStore
	dispatched []tasks.DatasetProcessingTask
	service    UploadService
}

func newUploadFixture() *uploadFixture {
	f := &uploadFixture{repo: newMemUploadRepo(), store: newMemStore()}
	f.service = NewUploadService(f.repo, f.store, func(task tasks.DatasetProcessingTask) error {
		f.dispatched = append(f.dispatched, task)
		return nil
	})
	return f
}

func (f *uploadFixture) sendChunk(t *testing.T, uploadID string, index int, data string) *ChunkReport {
	t.Helper()
	report, err := f.service.AcceptChunk(context.Background(), 7, uploadID, index, strings.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return report
}

func TestInitUploadComputesTotalChunks(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()

	session, err := f.service.InitUpload(ctx, 7, "data.csv", 1050, "text/csv", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, session.TotalChunks) // ceil(1050/100)
	assert.Equal(t, model.UploadStatusUploading, session.Status)
	assert.NotEmpty(t, session.UploadID)
	assert.Contains(t, session.StoragePrefix, "datasets/7/")

	// Exact multiple.
	session, err = f.service.InitUpload(ctx, 7, "data.csv", 1000, "text/csv", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, session.TotalChunks)

	// Default chunk size for small files.
	session, err = f.service.InitUpload(ctx, 7, "data.csv", 1000, "text/csv", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultChunkSize), session.ChunkSize)
	assert.Equal(t, 1, session.TotalChunks)
}

func TestInitUploadValidation(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()

	_, err := f.service.InitUpload(ctx, 7, "", 100, "", 0, nil)
	assert.Error(t, err)
	_, err = f.service.InitUpload(ctx, 7, "data.csv", 0, "", 0, nil)
	assert.Error(t, err)
	_, err = f.service.InitUpload(ctx, 7, "data.csv", -5, "", 0, nil)
	assert.Error(t, err)
}

func TestAcceptChunkProgressAndCompletion(t *testing.T) {
	f := newUploadFixture()
	session, err := f.service.InitUpload(context.Background(), 7, "data.csv", 30, "text/csv", 10, nil)
	require.NoError(t, err)

	report := f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	assert.Equal(t, 1, report.ChunksUploaded)
	assert.False(t, report.IsComplete)

	// Out of order is fine.
	report = f.sendChunk(t, session.UploadID, 2, "cccccccccc")
	assert.Equal(t, 2, report.ChunksUploaded)
	assert.False(t, report.IsComplete)

	report = f.sendChunk(t, session.UploadID, 1, "bbbbbbbbbb")
	assert.Equal(t, 3, report.ChunksUploaded)
	assert.True(t, report.IsComplete)

	stored := f.repo.sessions[session.UploadID]
	assert.Equal(t, model.UploadStatusComplete, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	// Completion clears the Redis bitmap.
	assert.Empty(t, f.repo.marks[session.UploadID])
}

func TestAcceptChunkDuplicateDoesNotInflateCount(t *testing.T) {
	f := newUploadFixture()
	session, err := f.service.InitUpload(context.Background(), 7, "data.csv", 30, "text/csv", 10, nil)
	require.NoError(t, err)

	f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	putsAfterFirst := f.store.puts

	// Retry of the same index: count stays, object not rewritten (bitmap
	// short-circuit).
	report := f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	assert.Equal(t, 1, report.ChunksUploaded)
	assert.False(t, report.IsComplete)
	assert.Equal(t, putsAfterFirst, f.store.puts)
}

func TestAcceptChunkDuplicateWithRedisDownStillIdempotent(t *testing.T) {
	f := newUploadFixture()
	f.repo.redisDown = true
	session, err := f.service.InitUpload(context.Background(), 7, "data.csv", 20, "text/csv", 10, nil)
	require.NoError(t, err)

	f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	// Without the fast path the write is repeated, but the upsert keeps the
	// distinct count correct.
	report := f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	assert.Equal(t, 1, report.ChunksUploaded)
	assert.Equal(t, 2, f.store.puts)
}

func TestAcceptChunkValidation(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	session, err := f.service.InitUpload(ctx, 7, "data.csv", 20, "text/csv", 10, nil)
	require.NoError(t, err)

	_, err = f.service.AcceptChunk(ctx, 7, "nope", 0, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrUploadNotFound)

	// Another user's session is invisible.
	_, err = f.service.AcceptChunk(ctx, 8, session.UploadID, 0, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrUploadNotFound)

	_, err = f.service.AcceptChunk(ctx, 7, session.UploadID, -1, strings.NewReader("x"), 1)
	assert.Error(t, err)
	_, err = f.service.AcceptChunk(ctx, 7, session.UploadID, 2, strings.NewReader("x"), 1)
	assert.Error(t, err)

	f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	f.sendChunk(t, session.UploadID, 1, "bbbbbbbbbb")
	_, err = f.service.AcceptChunk(ctx, 7, session.UploadID, 0, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrUploadComplete)
}

func TestCompletionDispatchesDatasetTask(t *testing.T) {
	f := newUploadFixture()
	session, err := f.service.InitUpload(context.Background(), 7, "data.csv", 10, "text/csv", 10,
		map[string]string{"dataset_type": "dyslexia"})
	require.NoError(t, err)

	f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")

	require.Len(t, f.dispatched, 1)
	task := f.dispatched[0]
	assert.Equal(t, session.UploadID, task.UploadID)
	assert.Equal(t, "dyslexia", task.DatasetType)
	assert.Equal(t, "data.csv", task.FileName)
	assert.Equal(t, uint(7), task.UserID)
}

func TestCompletionWithoutDatasetMetadataDoesNotDispatch(t *testing.T) {
	f := newUploadFixture()
	session, err := f.service.InitUpload(context.Background(), 7, "data.csv", 10, "text/csv", 10, nil)
	require.NoError(t, err)

	f.sendChunk(t, session.UploadID, 0, "aaaaaaaaaa")
	assert.Empty(t, f.dispatched)
}

func TestRetrieveReassemblesInOrder(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	session, err := f.service.InitUpload(ctx, 7, "data.csv", 15, "text/csv", 5, nil)
	require.NoError(t, err)

	// Uploaded out of order, retrieved in index order.
	f.sendChunk(t, session.UploadID, 2, "33333")
	f.sendChunk(t, session.UploadID, 0, "11111")
	f.sendChunk(t, session.UploadID, 1, "22222")

	got, rc, err := f.service.Retrieve(ctx, 7, session.UploadID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, session.UploadID, got.UploadID)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "111112222233333", string(data))
}

func TestRetrieveIncompleteUpload(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	session, err := f.service.InitUpload(ctx, 7, "data.csv", 15, "text/csv", 5, nil)
	require.NoError(t, err)
	f.sendChunk(t, session.UploadID, 0, "11111")

	_, _, err = f.service.Retrieve(ctx, 7, session.UploadID)
	assert.ErrorIs(t, err, ErrUploadNotComplete)

	_, _, err = f.service.Retrieve(ctx, 7, "missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestRetrieveFailsWholeWhenAnyChunkMissing(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	session, err := f.service.InitUpload(ctx, 7, "data.csv", 10, "text/csv", 5, nil)
	require.NoError(t, err)
	f.sendChunk(t, session.UploadID, 0, "11111")
	f.sendChunk(t, session.UploadID, 1, "22222")

	chunks, _ := f.repo.GetChunks(session.UploadID)
	f.store.failGets[chunks[1].StoragePath] = true

	_, rc, err := f.service.Retrieve(ctx, 7, session.UploadID)
	assert.Error(t, err)
	assert.Nil(t, rc)
}

func TestDeleteUploadRemovesEverything(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	session, err := f.service.InitUpload(ctx, 7, "data.csv", 10, "text/csv", 5, nil)
	require.NoError(t, err)
	f.sendChunk(t, session.UploadID, 0, "11111")
	require.NotEmpty(t, f.store.objects)

	require.NoError(t, f.service.DeleteUpload(ctx, 7, session.UploadID))
	assert.Empty(t, f.store.objects)
	_, err = f.service.GetStatus(ctx, 7, session.UploadID)
	assert.ErrorIs(t, err, ErrUploadNotFound)

	assert.ErrorIs(t, f.service.DeleteUpload(ctx, 7, "missing"), ErrUploadNotFound)
}

func TestListUploadsScopedToUser(t *testing.T) {
	f := newUploadFixture()
	ctx := context.Background()
	_, err := f.service.InitUpload(ctx, 7, "a.csv", 10, "text/csv", 5, nil)
	require.NoError(t, err)
	_, err = f.service.InitUpload(ctx, 8, "b.csv", 10, "text/csv", 5, nil)
	require.NoError(t, err)

	mine, err := f.service.ListUploads(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a.csv", mine[0].FileName)
}

func TestChunkObjectNamePadding(t *testing.T) {
	assert.Equal(t, "p/chunk_00000", chunkObjectName("p", 0))
	assert.Equal(t, "p/chunk_00042", chunkObjectName("p", 42))
	assert.Equal(t, fmt.Sprintf("p/chunk_%05d", 123), chunkObjectName("p", 123))
}
