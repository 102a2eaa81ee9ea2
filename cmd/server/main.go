package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quocanhngo/tripzi/internal/config"
	"github.com/quocanhngo/tripzi/internal/dedup"
	"github.com/quocanhngo/tripzi/internal/handler"
	"github.com/quocanhngo/tripzi/internal/middleware"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/repository/memstore"
	"github.com/quocanhngo/tripzi/internal/service"
	"github.com/quocanhngo/tripzi/internal/session"
	"github.com/quocanhngo/tripzi/internal/ws"
	"github.com/quocanhngo/tripzi/migrations"
	"github.com/quocanhngo/tripzi/pkg/auth"
	"github.com/quocanhngo/tripzi/pkg/logger"
	"github.com/quocanhngo/tripzi/pkg/notification"
	"github.com/quocanhngo/tripzi/pkg/storage"
)

// @title           Tripzi Chat API
// @version         1.0
// @description     Direct and group chat for Tripzi travelers: messages, receipts, live location and media, with a WebSocket channel for the live chat screens.

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// chatStores are the document-store repositories behind the chat
type chatStores struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	shares        repository.LiveShareRepository
	close         func()
}

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	logger.Setup(cfg.App.Env)
	log.WithField("env", cfg.App.Env).Info("🚀 Starting Tripzi chat server")

	ctx := context.Background()

	// ==================== Firebase ====================
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to initialize Firebase")
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to initialize Firebase Auth")
	}
	log.Info("✅ Firebase initialized")

	stores := openChatStores(ctx, cfg, app)
	defer stores.close()

	// ==================== Database (PostgreSQL) ====================
	gormLog := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.Env == "production" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Warn)
	}
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{Logger: gormLog})
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to database")
	}
	log.Info("✅ Connected to PostgreSQL")

	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.WithError(err).Fatal("❌ Failed to migrate profile schema")
	}

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to Redis")
	}
	log.Info("✅ Connected to Redis")

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	userRepo := repository.NewUserRepository(db)

	// Push: FCM for native builds, Expo for Expo Go
	var fcm notification.FCMSender
	if client, err := app.Messaging(ctx); err != nil {
		log.WithError(err).Warn("⚠️  FCM not available (native push disabled)")
	} else {
		fcm = client
	}
	push := notification.NewPushService(fcm, expo.NewPushClient(nil), userRepo)

	// WebSocket hub, fanned out across instances through Redis Pub/Sub
	hub := ws.NewHub(rdb, func(userID string, online bool) {
		if err := userRepo.UpdateOnlineStatus(context.Background(), userID, online); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("⚠️  Failed to update online status")
		}
	})
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	var registry dedup.Registry
	switch cfg.Dedup.Driver {
	case config.DedupMemory:
		registry = dedup.NewMemoryRegistry(cfg.Dedup.Window, nil)
	default:
		registry = dedup.NewRedisRegistry(rdb, cfg.Dedup.Window)
	}

	chatService := service.NewChatService(stores.conversations, userRepo)
	messageService := service.NewMessageService(stores.conversations, stores.messages, registry, hub, push, nil, cfg.Chat.DeleteWindow)
	liveService := service.NewLiveLocationService(stores.shares, messageService, nil)
	authService := service.NewAuthService(auth.NewFirebaseVerifier(authClient), userRepo, jwtManager, rdb, cfg.Chat.ProfileTimeout)

	// MinIO storage; uploads are disabled when it is unreachable
	var uploadHandler *handler.UploadHandler
	minioStorage, err := storage.NewMinIO(storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.WithError(err).Warn("⚠️  MinIO not available (attachments disabled)")
	} else {
		log.Info("✅ Connected to MinIO")
		attachmentService := service.NewAttachmentService(minioStorage, messageService, nil)
		uploadHandler = handler.NewUploadHandler(chatService, attachmentService, userRepo)
	}

	deps := session.Deps{
		Conversations: stores.conversations,
		Messages:      stores.messages,
		Shares:        stores.shares,
		Chats:         chatService,
		MessageSvc:    messageService,
		Live:          liveService,
	}
	sessionCfg := session.Config{
		PageSize:         cfg.Chat.PageSize,
		SendLockRelease:  cfg.Chat.SendLockRelease,
		TypingClear:      cfg.Chat.TypingClear,
		TypingStale:      cfg.Chat.TypingStale,
		LocationInterval: cfg.Chat.LocationInterval,
		LocationDistance: cfg.Chat.LocationDistance,
	}

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	limiter := middleware.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateBurst)
	handler.RegisterRoutes(router, handler.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Chat:    handler.NewChatHandler(chatService, userRepo),
		Message: handler.NewMessageHandler(chatService, messageService, liveService, userRepo),
		Upload:  uploadHandler,
		WS:      handler.NewWSHandler(hub, jwtManager, rdb, userRepo, deps, sessionCfg),
	}, middleware.AuthMiddleware(jwtManager, rdb), limiter.Middleware())

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Server failed")
		}
	}()

	log.Infof("🌐 Tripzi chat running on http://0.0.0.0:%s", cfg.App.Port)
	log.Infof("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Infof("🔌 WebSocket: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("❌ Server forced to shutdown")
	}
	hubCancel()
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("⚠️  Failed to close Redis")
	}
	log.Info("✅ Server exited gracefully")
}

// openChatStores picks the chat document store. The in-memory store serves
// a single instance and loses everything on restart.
func openChatStores(ctx context.Context, cfg *config.Config, app *firebase.App) chatStores {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn("⚠️  Using the in-memory chat store (single instance, not persisted)")
		store := memstore.New(nil)
		return chatStores{
			conversations: store.Conversations(),
			messages:      store.Messages(),
			shares:        store.LiveShares(),
			close:         func() {},
		}
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to Firestore")
	}
	log.Info("✅ Connected to Firestore")
	return chatStores{
		conversations: repository.NewConversationRepository(client),
		messages:      repository.NewMessageRepository(client),
		shares:        repository.NewLiveShareRepository(client),
		close: func() {
			if err := client.Close(); err != nil {
				log.WithError(err).Warn("⚠️  Failed to close Firestore")
			}
		},
	}
}
