package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mutombe/cargo-space/internal/catalog"
	"github.com/Mutombe/cargo-space/internal/config"
	"github.com/Mutombe/cargo-space/internal/dispatch"
	"github.com/Mutombe/cargo-space/internal/eta"
	"github.com/Mutombe/cargo-space/internal/events"
	"github.com/Mutombe/cargo-space/internal/geo"
	httpapi "github.com/Mutombe/cargo-space/internal/http"
	"github.com/Mutombe/cargo-space/internal/logging"
	"github.com/Mutombe/cargo-space/internal/matcher"
	"github.com/Mutombe/cargo-space/internal/messaging"
	"github.com/Mutombe/cargo-space/internal/payments"
	"github.com/Mutombe/cargo-space/internal/service"
	"github.com/Mutombe/cargo-space/internal/session"
	"github.com/Mutombe/cargo-space/internal/storage"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error", logging.FileOptions{}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.NewLogger(cfg.LogLevel, logging.FileOptions{Path: cfg.LogFile})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) error {
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}

	var g geo.Geo = geo.NewIndex()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		g = geo.NewRedisGeo(rdb, cfg.RedisGeoKey, cfg.MatchRadiusM)
		logger.Info("using redis geo index", zap.String("addr", cfg.RedisAddr))
	}
	if err := matcher.Seed(ctx, g, cat.Drivers); err != nil {
		return err
	}

	var store storage.BookingStore = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			changed, err := storage.Migrate(cfg.PGDSN, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			logger.Info("migrations checked", zap.Bool("applied", changed))
		}
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	}

	var pub events.Publisher = &events.Memory{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing booking events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer pub.Close()

	var card payments.Processor
	if cfg.StripeKey != "" {
		card = payments.Card{Gateway: payments.NewStripeClient(cfg.StripeKey)}
	}

	inbox, err := messaging.DefaultInbox()
	if err != nil {
		return err
	}

	ws := dispatch.NewWSRegistry(logger)
	defer ws.CloseAll()
	push := dispatch.NewPushDispatcher(cfg.PushWebhook, ws, logger)

	m := &matcher.Service{
		Geo:             g,
		Dispatch:        push,
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		TopN:            cfg.MatcherTopN,
		LoadDelay:       cfg.DriverLoadDelay,
		ETACache:        eta.NewCache(5 * time.Minute),
	}
	if cfg.OSRMEndpoint != "" {
		m.ETAClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	svc, err := service.New(service.Deps{
		Store:     store,
		Events:    pub,
		Matcher:   m,
		Payments:  payments.NewRouter(card, cfg.PaymentDelay),
		Push:      push,
		Catalog:   cat,
		Inbox:     inbox,
		Log:       logger,
		PostDelay: cfg.PostDelay,
		RegDelay:  cfg.RegistrationDelay,
		Currency:  cfg.CardCurrency,
		Tracking:  cfg.Tracking,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}
	sessions, err := session.NewService(cfg.JWTSecret, cfg.SessionTTL, cfg.LoginDelay)
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(svc, sessions, ws, logger, httpapi.Options{LoginRate: cfg.LoginRateLimit})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		logger.Info("cargo-space listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return grp.Wait()
}
