package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/wichananm65/homemeal-backend/internal/auth"
	"github.com/wichananm65/homemeal-backend/internal/cart"
	"github.com/wichananm65/homemeal-backend/internal/checkout"
	"github.com/wichananm65/homemeal-backend/internal/config"
	"github.com/wichananm65/homemeal-backend/internal/customer"
	"github.com/wichananm65/homemeal-backend/internal/delivery"
	"github.com/wichananm65/homemeal-backend/internal/geo"
	"github.com/wichananm65/homemeal-backend/internal/idempotency"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/cache"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/database/postgres"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/logging"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/outbound"
	"github.com/wichananm65/homemeal-backend/internal/infrastructure/shutdown"
	"github.com/wichananm65/homemeal-backend/internal/meal"
	"github.com/wichananm65/homemeal-backend/internal/monthly"
	"github.com/wichananm65/homemeal-backend/internal/order"
	"github.com/wichananm65/homemeal-backend/internal/payment"
	"github.com/wichananm65/homemeal-backend/internal/referral"
	"github.com/wichananm65/homemeal-backend/internal/seller"
	"github.com/wichananm65/homemeal-backend/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		return err
	}

	// Redis backs sessions and intent de-duplication. Without it both fall
	// back to process memory, which is only safe for a single instance.
	var (
		sessionStorage fiber.Storage
		intents        checkout.IdempotencyStore = idempotency.NewMemoryStore(2 * idempotency.Bucket)
	)
	rdb, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable, using in-memory sessions", "error", err)
	} else {
		defer rdb.Close()
		sessionStorage = cache.NewSessionStorage(rdb, "sess:")
		intents = idempotency.NewStore(rdb, 2*idempotency.Bucket)
	}

	sessions := session.NewStore(session.Config{Storage: sessionStorage, Expiration: cfg.SessionTTL})
	locker := session.NewLocker()

	retried := outbound.Config{Timeout: cfg.Outbound.Timeout, MaxRetries: cfg.Outbound.MaxRetries}
	geoClient := geo.NewClient(geo.Config{
		BaseURL: cfg.Geo.BaseURL,
		APIKey:  cfg.Geo.APIKey,
		Country: cfg.Geo.Country,
	}, outbound.New("ors", retried))
	gateway := payment.NewClient(payment.Config{
		BaseURL:       cfg.Payment.BaseURL,
		IFSCBaseURL:   cfg.Payment.IFSCBaseURL,
		KeyID:         cfg.Payment.KeyID,
		KeySecret:     cfg.Payment.KeySecret,
		PayoutAccount: cfg.Payment.PayoutAccount,
		Currency:      cfg.Payment.Currency,
	}, outbound.New("razorpay", retried), outbound.New("ifsc", retried))

	var notifier referral.Notifier = referral.NewLogNotifier(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := referral.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Warn("kafka unavailable, referral events are only logged", "error", err)
		} else {
			kn := referral.NewKafkaNotifier(producer, cfg.Kafka.ReferralTopic, log)
			defer kn.Close()
			notifier = kn
		}
	}

	customerService := customer.NewService(customer.NewPostgresRepository(db))
	sellerService := seller.NewService(seller.NewPostgresRepository(db), gateway)
	mealService := meal.NewService(meal.NewPostgresRepository(db))
	orderRepo := order.NewPostgresRepository(db)
	engine := delivery.NewEngine(geoClient)

	checkoutService := checkout.NewService(checkout.Deps{
		Pricer:      engine,
		Gateway:     gateway,
		Idempotency: intents,
		Sellers:     sellerService,
		Customers:   customerService,
		Orders:      orderRepo,
		Notifier:    notifier,
		Log:         log,
	})

	monthlyService := monthly.NewService(monthly.Deps{
		Repo:      monthly.NewPostgresRepository(db),
		Gateway:   gateway,
		Customers: customerService,
		Log:       log,
	})

	customerHandler := customer.NewHandler(customerService, cfg.JWTSecret, cfg.TokenTTL, cfg.PublicBaseURL, log)
	sellerHandler := seller.NewHandler(sellerService, cfg.JWTSecret, cfg.TokenTTL, log)
	deliveryHandler := delivery.NewHandler(engine, geoClient, log)
	cartHandler := cart.NewHandler(sessions, mealService, locker, log)
	checkoutHandler := checkout.NewHandler(checkoutService, sessions, locker, cfg.Payment.KeyID, log)
	orderHandler := order.NewHandler(order.NewService(orderRepo), log)
	monthlyHandler := monthly.NewHandler(monthlyService, sessions, locker, cfg.Payment.KeyID, log)

	app := fiber.New(fiber.Config{
		AppName:      "homemeal",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.PublicBaseURL,
		AllowMethods:     "GET,POST,DELETE",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	customerHandler.RegisterPublicRoutes(app)
	sellerHandler.RegisterPublicRoutes(app)
	deliveryHandler.RegisterPublicRoutes(app)
	monthlyHandler.RegisterPublicRoutes(app)

	app.Use(auth.Middleware(cfg.JWTSecret))

	customerHandler.RegisterProtectedRoutes(app)
	sellerHandler.RegisterProtectedRoutes(app)
	cartHandler.RegisterProtectedRoutes(app)
	checkoutHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	monthlyHandler.RegisterProtectedRoutes(app)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		errCh <- app.Listen(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
