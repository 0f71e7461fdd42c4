// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"piperag-go/internal/config"
	"piperag-go/internal/handler"
	"piperag-go/internal/middleware"
	"piperag-go/internal/model"
	"piperag-go/internal/pipeline"
	"piperag-go/internal/repository"
	"piperag-go/internal/service"
	"piperag-go/pkg/database"
	"piperag-go/pkg/embedding"
	"piperag-go/pkg/es"
	"piperag-go/pkg/kafka"
	"piperag-go/pkg/llm"
	"piperag-go/pkg/log"
	"piperag-go/pkg/storage"
	"piperag-go/pkg/tika"
	"piperag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(
		&model.Document{},
		&model.DocumentChunk{},
		&model.Pipeline{},
		&model.PipelineRun{},
		&model.ChatSession{},
		&model.ChatMessage{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB)
	pipelineRepo := repository.NewPipelineRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)

	// 5. 初始化外部 Provider 与 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingProvider := embedding.NewProvider(cfg.Embedding)
	llmProvider := llm.NewProvider(cfg.LLM)
	esStore := es.NewStore(cfg.Elasticsearch.IndexName)

	modelRouter := service.NewModelRouter()
	memoryService := service.NewMemoryService(chatRepo)
	retrievalService := service.NewRetrievalService(embeddingProvider, esStore, chunkRepo)
	queryService := service.NewQueryService(modelRouter, memoryService, retrievalService, llmProvider)

	// 6. 初始化嵌入流水线：有界队列 + 单消费者
	statusCache := pipeline.NewRedisStatusCache(database.RDB)
	queue := pipeline.NewQueue(cfg.Pipeline.QueueSize)
	orchestrator := pipeline.NewOrchestrator(
		queue,
		docRepo,
		chunkRepo,
		pipelineRepo,
		embeddingProvider,
		esStore,
		statusCache,
		modelRouter.Resolve(model.TierFree).EmbeddingModel,
	)

	documentService := service.NewDocumentService(
		docRepo,
		chunkRepo,
		pipelineRepo,
		service.NewMinioFileStore(cfg.MinIO.BucketName),
		tikaClient,
		esStore,
		orchestrator,
	)

	// 7. 启动后台消费者循环
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	orchestrator.Start(consumerCtx)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	documentHandler := handler.NewDocumentHandler(documentService)
	pipelineHandler := handler.NewPipelineHandler(orchestrator, statusCache, pipelineRepo)
	chatHandler := handler.NewChatHandler(queryService, memoryService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		projects := apiV1.Group("/projects/:projectId")
		{
			documents := projects.Group("/documents")
			{
				documents.POST("", documentHandler.Upload)
				documents.GET("", documentHandler.List)
				documents.GET("/:documentId", documentHandler.Get)
				documents.DELETE("/:documentId", documentHandler.Delete)
				documents.GET("/:documentId/chunks", documentHandler.GetChunks)
			}

			runs := projects.Group("/pipeline/runs")
			{
				runs.POST("", pipelineHandler.TriggerRun)
				runs.GET("", pipelineHandler.ListRuns)
			}

			projects.POST("/chat", chatHandler.Chat)
			projects.POST("/chat/stream", chatHandler.ChatStream)
			projects.GET("/sessions", chatHandler.GetSessions)
		}

		apiV1.GET("/pipeline/runs/:runId", pipelineHandler.GetRunStatus)
		apiV1.GET("/sessions/:sessionId/messages", chatHandler.GetMessages)
		apiV1.DELETE("/sessions/:sessionId", chatHandler.DeleteSession)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先停掉流水线消费者，未开始的运行在下次启动后重新入队
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
