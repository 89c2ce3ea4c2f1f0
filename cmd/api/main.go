// @title DIDEX API
// @version 1.0
// @description API сервиса DIDEX
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"didex/config"
	"didex/internal/db"
	"didex/internal/deal"
	"didex/internal/escrowwatcher"
	"didex/internal/handlers"
	"didex/internal/ledger"
	"didex/internal/notifications"
	"didex/internal/services"
	"didex/internal/services/storage"

	docs "didex/docs"
)

func main() {
	// 1. Загружаем конфиг из .env / окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// 1.1 Определяем режим запуска (dev/prod)
	env := os.Getenv("APP_ENV")
	if env == "prod" || env == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 2. Открываем GORM-подключение
	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	notifications.SetDB(gormDB)

	// 3. Клиенты блокчейн-сетей
	clients := map[string]ledger.Client{}
	if cfg.TronNodeURL != "" {
		clients["tron"] = ledger.NewTronClient(cfg.TronNodeURL, 0)
	}
	if cfg.EVMRPCURL != "" {
		evm, err := ledger.NewEVMClient(cfg.EVMRPCURL)
		if err != nil {
			log.Fatalf("evm client failed: %v", err)
		}
		clients["ethereum"] = evm
	}

	// 4. Хранилище вложений
	store, err := storage.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	// 5. Кеш истории событий сделок
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		handlers.SetDealEventCache(services.NewDealEventCache(rdb, 100))
	}

	engine := deal.NewEngine(gormDB)

	// 6. Наблюдатель эскроу: активация счетов и авто-выплаты
	watcher := escrowwatcher.New(gormDB, engine, clients, cfg.WatcherInterval)
	watcher.Start()
	defer watcher.Stop()

	docs.SwaggerInfo.BasePath = "/"

	// 7. Роутер
	r := gin.Default()
	r.Use(cors.Default())
	r.GET("/health", handlers.Health(gormDB))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := r.Group("/auth")
	auth.POST("/register", handlers.Register(gormDB, cfg.TokenTypeTTL))
	auth.POST("/login", handlers.Login(gormDB, cfg.TokenTypeTTL))
	auth.POST("/refresh", handlers.Refresh(gormDB, cfg.TokenTypeTTL))
	auth.GET("/recover/:username", handlers.RecoverChallenge(gormDB))
	auth.POST("/recover", handlers.Recover(gormDB, cfg.TokenTypeTTL))
	auth.Use(handlers.AuthMiddleware(gormDB))
	auth.GET("/profile", handlers.Profile(gormDB))
	auth.POST("/logout", handlers.Logout(gormDB))
	auth.POST("/pincode", handlers.SetPinCode(gormDB))
	auth.POST("/2fa/enable", handlers.Enable2FA(gormDB))
	auth.POST("/password", handlers.ChangePassword(gormDB))

	api := r.Group("/")
	api.Use(handlers.AuthMiddleware(gormDB))
	api.GET("/countries", handlers.GetCountries(gormDB))

	api.POST("/escrows", handlers.RegisterEscrow(gormDB))
	api.GET("/escrows", handlers.ListEscrows(gormDB))
	api.GET("/escrows/:id", handlers.GetEscrow(gormDB))
	api.POST("/escrows/:id/arbiter", handlers.ReassignArbiter(gormDB))
	api.POST("/escrows/:id/deactivate", handlers.DeactivateEscrow(gormDB))

	api.POST("/deals", handlers.CreateDeal(engine, gormDB))
	api.GET("/deals", handlers.ListDeals(gormDB))
	api.GET("/deals/:id", handlers.GetDeal(engine))
	api.GET("/deals/:id/actions", handlers.GetDealActions(gormDB))
	api.GET("/deals/:id/history", handlers.DealHistory(gormDB))
	api.GET("/deals/:id/ws", handlers.DealStatusWS(gormDB))
	api.PUT("/deals/:id/requisites", handlers.SubmitDealRequisites(engine, gormDB))
	api.POST("/deals/:id/deposit", handlers.ReportDeposit(engine, gormDB, clients))
	api.POST("/deals/:id/approve", handlers.ApproveDeal(engine, gormDB))
	api.POST("/deals/:id/appeal", handlers.AppealDeal(engine, gormDB))
	api.POST("/deals/:id/appeal/resolve", handlers.ResolveDealAppeal(engine, gormDB))
	api.POST("/deals/:id/payout", handlers.ConfirmDealPayout(engine, gormDB))
	api.POST("/deals/:id/attachments", handlers.UploadDealAttachment(gormDB, store))
	api.GET("/deals/:id/attachments", handlers.ListDealAttachments(gormDB, store))
	api.DELETE("/deals/:id/attachments/:attachmentId", handlers.DeleteDealAttachment(gormDB, store))

	api.GET("/notifications", handlers.ListNotifications(gormDB))
	api.GET("/notifications/ws", handlers.NotificationsWS(gormDB))
	api.POST("/notifications/read-all", handlers.ReadAllNotifications(gormDB))
	api.PATCH("/notifications/:id/read", handlers.ReadNotification(gormDB))

	// 8. Запускаем сервер
	addr := ":" + cfg.Port
	log.Printf("listening on %s …", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
