package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/api"
	"github.com/brainskev/houseListing2-sub000/internal/cache"
	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/email"
	"github.com/brainskev/houseListing2-sub000/internal/realtime"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newEmailSender always includes the SMTP (or logging) sender, plus mail capture
// when MOCK_SERVICES is on and a file log when LOG_EMAILS is set.
func newEmailSender(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) email.Sender {
	composite := email.NewCompositeEmailSender(email.NewSMTPSender(cfg, logger))
	if cfg.MockServices {
		logger.Info("MOCK_SERVICES enabled, capturing outgoing mail in Redis")
		composite.AddSender(email.NewRedisSender(rdb, cfg, logger))
	}
	if cfg.LogEmailsPath != "" {
		fileSender, err := email.NewFileEmailSender(cfg.LogEmailsPath, logger)
		if err != nil {
			logger.Warn("file email logger disabled", zap.String("path", cfg.LogEmailsPath), zap.Error(err))
		} else {
			composite.AddSender(fileSender)
		}
	}
	return composite
}

func listen(wg *sync.WaitGroup, logger *zap.Logger, name string, srv *http.Server) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info(name+" listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(name+" ListenAndServe error", zap.Error(err))
		}
		logger.Info(name + " stopped")
	}()
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, logger); err != nil {
			logger.Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		cancelIndex()
		logger.Fatal("failed to ensure indexes", zap.Error(err))
	}
	cancelIndex()

	redisClient, err := cache.ConnectRedis(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, logger); err != nil {
			logger.Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	userService := services.NewUserService(mongoDb)
	propertyService := services.NewPropertyService(mongoDb)

	taskClient := tasks.NewClient(redisClient)
	defer func() { _ = taskClient.Close() }()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// Mail capture lookups only make sense when capture is on.
	var captureClient *redis.Client
	if cfg.MockServices {
		captureClient = redisClient
	}
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(logger, captureClient, shutdownChan),
	}
	listen(&wg, logger, "service API", serviceSrv)

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server

	logger.Info("starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		hub := realtime.NewHub(logger)
		relay := realtime.NewRedisRelay(redisClient, cfg.ChatRedisChannel, hub, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("chat relay stopped", zap.Error(err))
			}
		}()

		var notifier services.IEnquiryNotifier
		if cfg.ChatNotifyNewEnquiry {
			notifier = tasks.NewEnquiryNotifier(taskClient, logger)
		}
		chatService := services.NewChatService(cfg, logger,
			services.NewConversationStore(mongoDb),
			services.NewMessageStore(mongoDb),
			userService, propertyService, relay, notifier)
		inboxService := services.NewInboxService(chatService, services.NewDirectMessageStore(mongoDb), cfg.ChatInboxDefaultLimit)

		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, logger, chatService, inboxService, userService, hub),
		}
		listen(&wg, logger, "main API", mainApiSrv)
	}

	bgMode := func() {
		processor := tasks.NewTaskProcessor(cfg, logger, newEmailSender(cfg, redisClient, logger),
			userService, propertyService, taskClient)
		backgroundTaskSrv = tasks.SetupServer(redisClient, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("background task server starting")
			if err := backgroundTaskSrv.Run(tasks.NewServeMux(processor)); err != nil {
				logger.Fatal("background task server error", zap.Error(err))
			}
			logger.Info("background task server stopped")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		logger.Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		logger.Info("shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	cancelRun()
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("service API shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("main API shutdown error", zap.Error(err))
		}
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info("server gracefully stopped")
}
