package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"dealroom/config"
	"dealroom/internal/commands"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/events"
	"dealroom/internal/handler"
	"dealroom/internal/outbox"
	"dealroom/internal/proxy"
	"dealroom/internal/redis"
	"dealroom/internal/repository"
	"dealroom/internal/repository/memory"
	"dealroom/internal/server"
	"dealroom/internal/services"
	"dealroom/internal/storage"
	"dealroom/internal/websocket"
	"dealroom/pkg/database"
	"dealroom/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// repositories groups the persistence backends chosen by STORE_DRIVER.
type repositories struct {
	negotiations repository.NegotiationRepository
	messages     repository.MessageRepository
	memberships  repository.MembershipRepository
	unread       repository.UnreadRepository
	outbox       repository.OutboxRepository
	bookings     repository.BookingRepository
	identities   repository.IdentityRepository
}

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	appLogger := logger.New(mode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.HealthCheck{}

	repos, db := openRepositories(ctx, cfg, appLogger)
	if db != nil {
		defer db.Close()
		checks["database"] = func(ctx context.Context) error { return database.HealthCheck(ctx, db) }
	}

	policy, err := negotiation.ParsePolicy(cfg.NegotiationLimit, cfg.NegotiationHardFloor)
	if err != nil {
		log.Fatalf("Invalid negotiation policy: %v", err)
	}

	hub := websocket.NewHub()
	var (
		publisher events.Publisher           = websocket.NewLocalPublisher(hub)
		viewports services.ViewportTracker   = hub
		limiter   *redis.RateLimiter
		redisConn *goredis.Client
	)
	if cfg.RedisEnabled() {
		redisConn, err = redis.NewClient(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisConn.Close()
		checks["redis"] = func(ctx context.Context) error { return redisConn.Ping(ctx).Err() }

		publisher = redis.NewPublisher(redisConn)
		viewports = redis.NewViewportStore(redisConn, redis.DefaultViewportTTL)
		repos.bookings = redis.NewPartiesCache(repos.bookings, redisConn, cfg.PartiesCacheTTL)

		rl := redis.DefaultRateLimitConfig()
		rl.MessageLimit = cfg.MessageRateLimit
		rl.OfferLimit = cfg.OfferRateLimit
		rl.ConnectLimit = cfg.ConnectRateLimit
		limiter = redis.NewRateLimiter(redisConn, rl)

		bridge := websocket.NewRedisBridge(redis.NewSubscriber(redisConn), hub)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				appLogger.Logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	bus := commands.NewBus(proxy.NewAccessControl(repos.bookings))

	messages := services.NewMessageStore(repos.messages, cfg.MaxMessageLength)
	unread := services.NewUnreadTracker(repos.unread, messages, viewports, publisher, appLogger)
	negotiations := services.NewNegotiationService(repos.negotiations, repos.bookings, policy, cfg.NegotiationTTL, appLogger, bus)
	channels := services.NewChannelService(services.ChannelDeps{
		Bookings:    repos.bookings,
		Memberships: repos.memberships,
		Identities:  repos.identities,
		Messages:    messages,
		Unread:      unread,
		Registry:    hub,
		Viewports:   viewports,
		Publisher:   publisher,
	}, appLogger, bus)

	var gatewayLimiter services.Limiter
	if limiter != nil {
		gatewayLimiter = limiter
	}
	gateway := services.NewGateway(bus, negotiations, channels, unread, gatewayLimiter, appLogger)
	authService := services.NewAuthService(cfg.JWTSecret)

	var (
		archiver    outbox.Archiver
		transcripts handler.TranscriptLinker
	)
	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			log.Fatalf("Failed to configure S3: %v", err)
		}
		archiver = services.NewTranscriptArchiver(repos.negotiations, messages, s3Client, appLogger)
		transcripts = s3Client
	}

	outbox.NewRunner(outbox.DefaultProcessor(cfg, repos.outbox, publisher, repos.bookings, archiver, appLogger)).Start(ctx)
	go services.NewSweeper(negotiations, channels, cfg.SweepInterval, cfg.MembershipIdleTTL, appLogger).Run(ctx)

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Negotiation: handler.NewNegotiationHandler(gateway, transcripts),
		Channel:     handler.NewChannelHandler(gateway),
		Health:      handler.NewHealthHandler(checks),
		WebSocket:   websocket.NewHandler(authService, gateway, websocket.NewConnLogger(appLogger)),
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, l *logger.Logger) (repositories, *sql.DB) {
	if cfg.StoreDriver == config.StoreMemory {
		l.Logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return repositories{
			negotiations: store.Negotiations(),
			messages:     store.Messages(),
			memberships:  store.Memberships(),
			unread:       store.Unread(),
			outbox:       store.Outbox(),
			bookings:     store.Bookings(),
			identities:   store.Identities(),
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.Connect(connectCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplyMigrations(connectCtx, db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	return repositories{
		negotiations: repository.NewNegotiationRepository(db),
		messages:     repository.NewMessageRepository(db),
		memberships:  repository.NewMembershipRepository(db),
		unread:       repository.NewUnreadRepository(db),
		outbox:       repository.NewOutboxRepository(db),
		bookings:     repository.NewBookingRepository(db),
		identities:   repository.NewUserRepository(db),
	}, db
}
