package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"piperag-go/internal/model"
	"piperag-go/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memDocRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*model.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: make(map[uuid.UUID]*model.Document)}
}

func (r *memDocRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocRepo) Save(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocRepo) FindByID(id uuid.UUID) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocRepo) FindByProject(projectID uuid.UUID) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memDocRepo) FindPendingByProject(projectID uuid.UUID) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.ProjectID == projectID && d.Status != model.DocumentStatusEmbedded {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memDocRepo) MarkEmbedded(ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if d, ok := r.docs[id]; ok {
			d.Status = model.DocumentStatusEmbedded
			d.ProcessedAt = &now
		}
	}
	return nil
}

func (r *memDocRepo) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type memChunkRepo struct {
	mu     sync.Mutex
	chunks []*model.DocumentChunk
}

func (r *memChunkRepo) BatchCreate(chunks []*model.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		cp := *c
		r.chunks = append(r.chunks, &cp)
	}
	return nil
}

func (r *memChunkRepo) FindByDocuments(documentIDs []uuid.UUID) ([]*model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentChunk
	for _, docID := range documentIDs {
		for _, c := range r.chunks {
			if c.DocumentID == docID {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *memChunkRepo) UpdateEmbedding(chunkID uuid.UUID, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chunks {
		if c.ID == chunkID {
			c.Embedding = vector
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memChunkRepo) CountByDocument(documentID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (r *memChunkRepo) FindPageByDocument(documentID uuid.UUID, offset, limit int) ([]model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.DocumentChunk
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			all = append(all, *c)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memChunkRepo) SearchByKeyword(projectID uuid.UUID, keyword string, limit int) ([]repository.KeywordHit, error) {
	return nil, nil
}

func (r *memChunkRepo) DeleteByDocument(documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*model.DocumentChunk
	for _, c := range r.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	r.chunks = kept
	return nil
}

type memPipelineRepo struct {
	mu        sync.Mutex
	pipelines map[uuid.UUID]*model.Pipeline
}

func newMemPipelineRepo() *memPipelineRepo {
	return &memPipelineRepo{pipelines: make(map[uuid.UUID]*model.Pipeline)}
}

func (r *memPipelineRepo) GetOrCreateDefault(projectID uuid.UUID) (*model.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipelines {
		if p.ProjectID == projectID {
			cp := *p
			return &cp, nil
		}
	}
	p := &model.Pipeline{ID: uuid.New(), ProjectID: projectID, Name: "Default Pipeline"}
	r.pipelines[p.ID] = p
	cp := *p
	return &cp, nil
}

func (r *memPipelineRepo) CreateRun(run *model.PipelineRun) error          { return nil }
func (r *memPipelineRepo) FindRunByID(uuid.UUID) (*model.PipelineRun, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *memPipelineRepo) SaveRun(run *model.PipelineRun) error { return nil }
func (r *memPipelineRepo) FindRunsByProject(uuid.UUID) ([]model.PipelineRun, error) {
	return nil, nil
}

// memFileStore 把对象内容放在内存里。
type memFileStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{objects: make(map[string][]byte)}
}

func (s *memFileStore) Save(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return objectName, nil
}

func (s *memFileStore) Get(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storagePath]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", storagePath)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memFileStore) Delete(ctx context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, storagePath)
	return nil
}

// passExtractor 把文件内容原样当作文本，内容含 corrupt 时模拟抽取失败。
type passExtractor struct{}

func (passExtractor) ExtractText(ctx context.Context, fileReader io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(fileReader)
	if err != nil {
		return "", err
	}
	if strings.Contains(string(data), "corrupt") {
		return "", errors.New("unreadable file")
	}
	return string(data), nil
}

type captureEnqueuer struct {
	calls []uuid.UUID
}

func (e *captureEnqueuer) Enqueue(ctx context.Context, projectID uuid.UUID) (*model.PipelineRun, error) {
	e.calls = append(e.calls, projectID)
	return &model.PipelineRun{ID: uuid.New(), ProjectID: projectID, Status: model.PipelineRunStatusQueued}, nil
}

type noopRemover struct{}

func (noopRemover) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error { return nil }

func newDocFixture() (DocumentService, *memDocRepo, *memChunkRepo, *captureEnqueuer) {
	docRepo := newMemDocRepo()
	chunkRepo := &memChunkRepo{}
	enqueuer := &captureEnqueuer{}
	svc := NewDocumentService(docRepo, chunkRepo, newMemPipelineRepo(), newMemFileStore(), passExtractor{}, noopRemover{}, enqueuer)
	return svc, docRepo, chunkRepo, enqueuer
}

func uploadFile(name, content string) UploadFile {
	return UploadFile{FileName: name, Size: int64(len(content)), Reader: strings.NewReader(content)}
}

func TestUploadChunksAndQueuesRun(t *testing.T) {
	svc, docRepo, chunkRepo, enqueuer := newDocFixture()
	projectID := uuid.New()

	summary, err := svc.Upload(context.Background(), projectID, model.TierFree, []UploadFile{
		uploadFile("notes.txt", "First sentence here. Second sentence follows."),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Documents, 1)

	doc, err := docRepo.FindByID(summary.Documents[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusChunked, doc.Status)
	assert.Equal(t, 7, doc.TokenCount)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.NotNil(t, doc.ProcessedAt)
	assert.NotEmpty(t, doc.StoragePath)

	count, err := chunkRepo.CountByDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 批次内有新分块时自动排队一次运行
	require.Len(t, enqueuer.calls, 1)
	assert.Equal(t, projectID, enqueuer.calls[0])
}

func TestUploadRejectsUnsupportedAndOversized(t *testing.T) {
	svc, _, _, enqueuer := newDocFixture()
	projectID := uuid.New()

	summary, err := svc.Upload(context.Background(), projectID, model.TierFree, []UploadFile{
		{FileName: "malware.exe", Size: 10, Reader: strings.NewReader("xxxxxxxxxx")},
		{FileName: "big.txt", Size: 51 * 1024 * 1024, Reader: strings.NewReader("too big")},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, summary.Documents)
	assert.Empty(t, enqueuer.calls)
}

func TestUploadIsolatesPerFileFailure(t *testing.T) {
	svc, docRepo, _, enqueuer := newDocFixture()
	projectID := uuid.New()

	summary, err := svc.Upload(context.Background(), projectID, model.TierFree, []UploadFile{
		uploadFile("bad.txt", "corrupt payload"),
		uploadFile("good.txt", "A perfectly fine sentence."),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Documents, 2)

	bad, err := docRepo.FindByID(summary.Documents[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, bad.Status)

	good, err := docRepo.FindByID(summary.Documents[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusChunked, good.Status)

	// 好文件产生了分块，仍然排队运行
	assert.Len(t, enqueuer.calls, 1)
}

func TestPreviewChunksPagination(t *testing.T) {
	svc, docRepo, chunkRepo, _ := newDocFixture()
	projectID := uuid.New()

	doc := &model.Document{ID: uuid.New(), ProjectID: projectID, FileName: "a.txt", Status: model.DocumentStatusChunked}
	require.NoError(t, docRepo.Create(doc))
	chunks := make([]*model.DocumentChunk, 25)
	for i := range chunks {
		chunks[i] = &model.DocumentChunk{DocumentID: doc.ID, ChunkIndex: i, Content: fmt.Sprintf("chunk %d", i), TokenCount: 2}
	}
	require.NoError(t, chunkRepo.BatchCreate(chunks))

	page, err := svc.PreviewChunks(projectID, doc.ID, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.TotalCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Chunks, 10)
	assert.Equal(t, 10, page.Chunks[0].ChunkIndex)

	// 非法分页参数被钳制
	page, err = svc.PreviewChunks(projectID, doc.ID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Len(t, page.Chunks, 20)
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	svc, docRepo, chunkRepo, _ := newDocFixture()
	projectID := uuid.New()

	summary, err := svc.Upload(context.Background(), projectID, model.TierFree, []UploadFile{
		uploadFile("notes.txt", "First sentence here. Second sentence follows."),
	})
	require.NoError(t, err)
	docID := summary.Documents[0].ID

	require.NoError(t, svc.Delete(context.Background(), projectID, docID))

	_, err = docRepo.FindByID(docID)
	assert.Error(t, err)
	count, err := chunkRepo.CountByDocument(docID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
