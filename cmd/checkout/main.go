package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payu"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLoggerV2("checkout-service")

	logging.Infof("Starting checkout-service on port %d", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	mongoClient, err := initMongo(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", logging.Fields{"error": err.Error()})
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	orderRepo := repository.NewPostgresOrderRepository(db, logger)
	notificationStore := repository.NewMongoNotificationStore(mongoClient, cfg.Mongo, logger)

	redisCache := repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL)

	// Interface-typed so a disabled feature is a true nil.
	var orderCache repository.OrderCache
	if cfg.Features.EnableOrderCaching {
		orderCache = redisCache
	}

	var eventPublisher interfaces.OrderEventPublisher
	if cfg.Features.EnableOrderEvents {
		publisher := events.NewKafkaPublisher(cfg.Kafka, logger)
		defer publisher.Close()
		eventPublisher = publisher
	}

	providerMailer, err := clients.NewMailer(cfg.Email, logger)
	if err != nil {
		logger.Fatal("Failed to configure email provider", logging.Fields{"error": err.Error()})
	}

	var (
		mailer       interfaces.EmailDispatcher = providerMailer
		mailConsumer *events.MailConsumer
	)
	if cfg.Email.Delivery == config.EmailDeliveryQueue {
		queue := events.NewKafkaMailQueue(cfg.Kafka, logger)
		defer queue.Close()
		mailConsumer = events.NewMailConsumer(cfg.Kafka, queue, providerMailer, cfg.Email.SendTimeout, logger)
		mailer = queue
	}

	gateway := payu.NewGateway(cfg.PayU, logger)
	userClient := clients.NewHTTPUserClient(cfg.UserService, logger)

	orderService := service.NewOrderService(
		orderRepo,
		orderCache,
		gateway,
		userClient,
		mailer,
		notificationStore,
		eventPublisher,
		cfg,
	)

	h := handlers.NewHandlers(orderService, cfg,
		handlers.ReadinessCheck{Name: "postgres", Ping: db.PingContext},
		handlers.ReadinessCheck{Name: "redis", Ping: redisCache.Ping},
		handlers.ReadinessCheck{Name: "mongodb", Ping: notificationStore.Ping},
	)

	srv := server.New(h, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", logging.Fields{
			"port":           cfg.Server.Port,
			"payu_env":       cfg.PayU.Environment,
			"email_provider": cfg.Email.Provider,
			"email_delivery": cfg.Email.Delivery,
			"order_caching":  cfg.Features.EnableOrderCaching,
			"order_events":   cfg.Features.EnableOrderEvents,
		})
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if mailConsumer != nil {
		g.Go(func() error {
			defer mailConsumer.Close()
			if err := mailConsumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
		}

		// Let in-flight emails and notifications finish before the clients close.
		orderService.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logging.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})

	return db, nil
}

func initMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, err
	}

	logging.Info("MongoDB connected", logging.Fields{"database": cfg.Mongo.Database})
	return client, nil
}
