package pipeline

import (
	"context"
	"time"

	"piperag-go/internal/model"
	"piperag-go/internal/repository"
	"piperag-go/pkg/embedding"
	"piperag-go/pkg/es"
	"piperag-go/pkg/kafka"
	"piperag-go/pkg/log"

	"github.com/google/uuid"
)

// embedBatchSize 是每次调用嵌入接口的分块批量。
const embedBatchSize = 20

// VectorIndexer 将带向量的分块写入相似度索引。
type VectorIndexer interface {
	IndexChunk(ctx context.Context, doc es.ChunkDocument) error
}

// Orchestrator 负责嵌入流水线的全生命周期：入队运行、
// 单消费者顺序执行、推进文档与运行状态。同一时刻最多只有
// 一个运行在执行，以换取状态更新的顺序性并避免同项目的
// 重复嵌入竞争。
type Orchestrator struct {
	queue        *Queue
	docRepo      repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	pipelineRepo repository.PipelineRepository
	embedder     embedding.Provider
	indexer      VectorIndexer
	statusCache  StatusCache

	embeddingModel string
}

// NewOrchestrator 创建流水线编排器。
func NewOrchestrator(
	queue *Queue,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	pipelineRepo repository.PipelineRepository,
	embedder embedding.Provider,
	indexer VectorIndexer,
	statusCache StatusCache,
	embeddingModel string,
) *Orchestrator {
	return &Orchestrator{
		queue:          queue,
		docRepo:        docRepo,
		chunkRepo:      chunkRepo,
		pipelineRepo:   pipelineRepo,
		embedder:       embedder,
		indexer:        indexer,
		statusCache:    statusCache,
		embeddingModel: embeddingModel,
	}
}

// Enqueue 为项目创建一个 Queued 运行并推入工作队列。
// 队列满时阻塞等待，直到有空位或 ctx 取消。
func (o *Orchestrator) Enqueue(ctx context.Context, projectID uuid.UUID) (*model.PipelineRun, error) {
	log.Infof("[Pipeline] 步骤1: 为项目创建运行, projectID: %s", projectID)
	pl, err := o.pipelineRepo.GetOrCreateDefault(projectID)
	if err != nil {
		return nil, err
	}

	run := &model.PipelineRun{
		PipelineID: pl.ID,
		ProjectID:  projectID,
		Status:     model.PipelineRunStatusQueued,
	}
	if err := o.pipelineRepo.CreateRun(run); err != nil {
		return nil, err
	}
	o.mirrorStatus(ctx, run)

	log.Infof("[Pipeline] 步骤2: 运行入队, runID: %s", run.ID)
	if err := o.queue.Enqueue(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// Start 启动后台单消费者循环，按入队顺序逐个执行运行，
// 直到 ctx 取消。
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		log.Info("[Pipeline] 消费者循环启动")
		for {
			runID, err := o.queue.Dequeue(ctx)
			if err != nil {
				log.Info("[Pipeline] 消费者循环退出")
				return
			}
			o.ExecuteRun(ctx, runID)
		}
	}()
}

// ExecuteRun 执行一次流水线运行：收集项目内尚未嵌入的文档的
// 全部分块，分批嵌入并写入索引，最后推进文档与运行状态。
// 单次运行内的任何错误只终结该运行，不会使消费者循环崩溃。
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID uuid.UUID) {
	run, err := o.pipelineRepo.FindRunByID(runID)
	if err != nil {
		log.Error("[Pipeline] 查找运行失败", err)
		return
	}

	// 执行开始前观察到取消
	if ctx.Err() != nil {
		o.finishRun(ctx, run, model.PipelineRunStatusCancelled, "")
		return
	}

	now := time.Now()
	run.Status = model.PipelineRunStatusRunning
	run.StartedAt = &now
	if err := o.pipelineRepo.SaveRun(run); err != nil {
		log.Error("[Pipeline] 更新运行状态失败", err)
		return
	}
	o.mirrorStatus(ctx, run)
	log.Infof("[Pipeline] 步骤3: 运行开始执行, runID: %s", run.ID)

	docs, err := o.docRepo.FindPendingByProject(run.ProjectID)
	if err != nil {
		o.finishRun(ctx, run, model.PipelineRunStatusFailed, "failed to load pending documents: "+err.Error())
		return
	}

	docNames := make(map[uuid.UUID]string, len(docs))
	docIDs := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		docNames[d.ID] = d.FileName
		docIDs = append(docIDs, d.ID)
	}

	chunks, err := o.chunkRepo.FindByDocuments(docIDs)
	if err != nil {
		o.finishRun(ctx, run, model.PipelineRunStatusFailed, "failed to load chunks: "+err.Error())
		return
	}
	log.Infof("[Pipeline] 步骤4: 待嵌入分块数: %d, 文档数: %d", len(chunks), len(docs))

	embeddedDocs := make(map[uuid.UUID]bool)

	for start := 0; start < len(chunks); start += embedBatchSize {
		// 批次之间观察到取消，保留已累计的计数
		if ctx.Err() != nil {
			o.finishRun(ctx, run, model.PipelineRunStatusCancelled, "")
			return
		}

		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := o.embedder.EmbedBatch(ctx, texts, o.embeddingModel)
		if err != nil {
			// 已写入的向量保留，文档状态不回退
			o.finishRun(ctx, run, model.PipelineRunStatusFailed, "embedding batch failed: "+err.Error())
			return
		}

		for i, c := range batch {
			if err := o.chunkRepo.UpdateEmbedding(c.ID, vectors[i]); err != nil {
				o.finishRun(ctx, run, model.PipelineRunStatusFailed, "failed to persist embedding: "+err.Error())
				return
			}
			if err := o.indexer.IndexChunk(ctx, es.ChunkDocument{
				ChunkID:      c.ID,
				DocumentID:   c.DocumentID,
				DocumentName: docNames[c.DocumentID],
				ProjectID:    run.ProjectID,
				ChunkIndex:   c.ChunkIndex,
				Content:      c.Content,
				Vector:       vectors[i],
				ModelVersion: o.embeddingModel,
			}); err != nil {
				o.finishRun(ctx, run, model.PipelineRunStatusFailed, "failed to index chunk: "+err.Error())
				return
			}
			run.ChunksCreated++
			embeddedDocs[c.DocumentID] = true
		}
	}

	// 所有分块处理完成后统一推进文档状态。只推进本次运行中
	// 实际嵌入过分块的文档：Failed 文档只能通过重新上传恢复，
	// 不能被后续运行顺带推进。
	docIDsDone := make([]uuid.UUID, 0, len(embeddedDocs))
	for id := range embeddedDocs {
		docIDsDone = append(docIDsDone, id)
	}
	if err := o.docRepo.MarkEmbedded(docIDsDone); err != nil {
		o.finishRun(ctx, run, model.PipelineRunStatusFailed, "failed to mark documents embedded: "+err.Error())
		return
	}
	run.DocumentsProcessed = len(embeddedDocs)

	o.finishRun(ctx, run, model.PipelineRunStatusCompleted, "")
	log.Infof("[Pipeline] 步骤5: 运行完成, runID: %s, 文档: %d, 分块: %d",
		run.ID, run.DocumentsProcessed, run.ChunksCreated)
}

// finishRun 将运行推进到终态并镜像状态、发布事件。
func (o *Orchestrator) finishRun(ctx context.Context, run *model.PipelineRun, status model.PipelineRunStatus, errMsg string) {
	now := time.Now()
	run.Status = status
	run.ErrorMessage = errMsg
	run.CompletedAt = &now
	if err := o.pipelineRepo.SaveRun(run); err != nil {
		log.Error("[Pipeline] 保存运行终态失败", err)
	}
	o.mirrorStatus(ctx, run)
	if errMsg != "" {
		log.Errorf("[Pipeline] 运行失败, runID: %s, 原因: %s", run.ID, errMsg)
	}
}

// mirrorStatus 将运行状态写入缓存并发布生命周期事件。
// 两者都只是通知性质，失败不会影响流水线本身。
func (o *Orchestrator) mirrorStatus(ctx context.Context, run *model.PipelineRun) {
	if o.statusCache != nil {
		if err := o.statusCache.SetRunStatus(ctx, run); err != nil {
			log.Warnf("[Pipeline] 镜像运行状态到缓存失败: %v", err)
		}
	}
	kafka.PublishRunEvent(ctx, kafka.RunEvent{
		RunID:              run.ID,
		ProjectID:          run.ProjectID,
		Status:             run.Status,
		DocumentsProcessed: run.DocumentsProcessed,
		ChunksCreated:      run.ChunksCreated,
		ErrorMessage:       run.ErrorMessage,
	})
}
