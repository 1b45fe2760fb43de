package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"sheetorders_dev_v1_202608/internal/controller"
	"sheetorders_dev_v1_202608/internal/model"
	"sheetorders_dev_v1_202608/internal/repository"
	"sheetorders_dev_v1_202608/internal/router"
	"sheetorders_dev_v1_202608/internal/service"
	"sheetorders_dev_v1_202608/internal/task"
	"sheetorders_dev_v1_202608/pkg/database"
	"sheetorders_dev_v1_202608/pkg/gsheet"
	"sheetorders_dev_v1_202608/pkg/logging"
)

func main() {
	// .env 不存在时静默跳过，容器里直接用环境变量
	_ = godotenv.Load()
	logging.Setup(getEnv("LOG_JSON", "") == "true", getEnv("LOG_LEVEL", "info"))

	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动定时任务
	initTasks(deps)

	// 4. 初始化路由
	r := router.SetupRouter(deps.Controllers)

	// 5. 启动服务
	startServer(r, deps)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
	SyncTask    *task.SyncCronTask
}

// Repositories 仓库集合
type Repositories struct {
	Client  repository.ClientRepository
	Product repository.ProductRepository
	Order   repository.OrderRepository
	RowHash repository.RowHashRepository
}

// Services 服务集合
type Services struct {
	Engine *service.SyncEngine
	Dedup  *service.DedupService
	Report *service.ReportService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase() *gorm.DB {
	return database.InitDB(
		getEnv("DATABASE_DSN", "host=localhost user=postgres dbname=sheetorders sslmode=disable"),
		// 业务实体
		&model.Client{}, &model.Product{},
		&model.Order{}, &model.OrderItem{},
		// 增量账本
		&model.RowHashRecord{}, &model.SheetProgress{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	log := logging.GetLogger()

	// -------- Repo 层 --------
	repos := &Repositories{
		Client:  repository.NewClientRepository(db),
		Product: repository.NewProductRepository(db),
		Order:   repository.NewOrderRepository(db),
		RowHash: repository.NewRowHashRepository(db),
	}

	// -------- 数据源网关 --------
	// 凭证/鉴权失败是致命错误：没有数据源这个服务没有存在意义
	gateway, err := gsheet.NewClient(context.Background(),
		getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		getEnv("SPREADSHEET_ID", ""),
	)
	if err != nil {
		log.Fatalf("数据源网关初始化失败: %v", err)
	}

	// -------- 业务服务 --------
	services := &Services{
		Dedup:  service.NewDedupService(db),
		Report: service.NewReportService(getEnv("REPORT_WEBHOOK_URL", "")),
	}
	services.Engine = service.NewSyncEngine(
		gateway,
		service.NewChangeLedger(repos.RowHash),
		service.NewRowParser(),
		service.NewOrderUpsertEngine(db),
		services.Dedup,
		services.Report,
		repos.RowHash,
	)

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Sync: controller.NewSyncController(services.Engine),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
		SyncTask:    task.NewSyncCronTask(services.Engine),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	if getEnv("SYNC_CRON_ENABLED", "true") != "true" {
		logging.GetLogger().Info("定时跑批未启用")
		return
	}
	deps.SyncTask.Start()
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine, deps *Dependencies) {
	log := logging.GetLogger()
	addr := getEnv("HTTP_ADDR", ":8080")

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Infof("服务启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 先停新触发源，再请求在跑的跑批在行边界停下
	deps.SyncTask.Stop()
	deps.Services.Engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Info("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
