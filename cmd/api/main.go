package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/blob"
	"github.com/harentsoaR/onlyfix-api/internal/config"
	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/handlers"
	"github.com/harentsoaR/onlyfix-api/internal/ledger"
	"github.com/harentsoaR/onlyfix-api/internal/logger"
	"github.com/harentsoaR/onlyfix-api/internal/metrics"
	"github.com/harentsoaR/onlyfix-api/internal/middleware"
	"github.com/harentsoaR/onlyfix-api/internal/services"
	"github.com/harentsoaR/onlyfix-api/internal/store"
	"github.com/harentsoaR/onlyfix-api/internal/store/memstore"
	"github.com/harentsoaR/onlyfix-api/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	var (
		users    directory.UserStore
		checkups ledger.CheckupStore
		db       *mongo.Database
	)
	switch cfg.Storage.Backend {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("connecting to mongodb: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
			return fmt.Errorf("pinging mongodb: %w", err)
		}

		db = client.Database(cfg.Mongo.Database)
		if err := store.EnsureIndexes(connectCtx, db); err != nil {
			return err
		}
		users = store.NewUserStore(db)
		checkups = store.NewCheckupStore(db)
		zlog.Info("connected to mongodb", zap.String("database", cfg.Mongo.Database))
	default:
		users = memstore.NewUserStore()
		checkups = memstore.NewCheckupStore()
		zlog.Warn("using in-memory storage; data is lost on restart")
	}

	blobs, err := newBlobStore(ctx, cfg.Storage, db)
	if err != nil {
		return err
	}

	// --- Services ---
	m := metrics.NewCollector("onlyfix")
	dir := directory.New(users, cfg.BcryptCost, zlog.Named("directory"))

	sms := services.NewNotificationService(cfg.Events.TextbeltAPIKey, cfg.Events.TextbeltURL, dir, zlog.Named("sms"))
	dispatcher := services.NewDispatcher(zlog.Named("events"), m, sms)
	if len(cfg.Events.KafkaBrokers) > 0 {
		writer := services.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, zlog.Named("kafka"))
		kafkaPub := services.NewKafkaPublisher(writer, zlog.Named("kafka"))
		defer func() { _ = kafkaPub.Close() }()
		dispatcher.Add(kafkaPub)
	}
	if !sms.Enabled() {
		zlog.Info("TEXTBELT_API_KEY not set, sms notifications disabled")
	}

	led := ledger.New(checkups, dir, blobs, dispatcher, zlog.Named("ledger"))

	if cfg.SeedSampleDentists {
		n, err := dir.SeedSampleDentists(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			zlog.Info("seeded sample dentists", zap.Int("count", n))
		}
	}

	tokens := utils.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	h := handlers.NewHandler(dir, led, tokens, m, zlog.Named("http"))
	h.PollInterval = cfg.PollInterval
	if db != nil {
		h.Ping = func(ctx context.Context) error {
			return db.Client().Ping(ctx, readpref.Primary())
		}
	}

	// --- Gin Router ---
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(zlog.Named("access")),
		middleware.Metrics(m),
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			ExposeHeaders:    []string{"Content-Disposition", middleware.RequestIDHeader},
			AllowCredentials: true,
		}),
	)

	h.RegisterRoutes(r, handlers.RouteOptions{
		AuthLimiter:  middleware.NewIPRateLimiter(cfg.AuthRatePerMinute).Middleware(),
		SeedEndpoint: cfg.SeedSampleDentists,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listening: %w", err)
		}
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	sms.Wait()
	return nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig, db *mongo.Database) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "gridfs":
		if db == nil {
			return nil, errors.New("BLOB_BACKEND=gridfs requires STORE_BACKEND=mongo")
		}
		return blob.NewGridFSStore(db, "checkupImages")
	case "s3":
		client, err := blob.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return blob.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	}
	return blob.NewMemoryStore(), nil
}
