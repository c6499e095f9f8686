package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/JoaoGuiPan/bank-account/internal/config"
	"github.com/JoaoGuiPan/bank-account/internal/events"
	"github.com/JoaoGuiPan/bank-account/internal/handler"
	"github.com/JoaoGuiPan/bank-account/internal/middleware"
	redisclient "github.com/JoaoGuiPan/bank-account/internal/redis"
	"github.com/JoaoGuiPan/bank-account/internal/repository"
	"github.com/JoaoGuiPan/bank-account/internal/service"
)

func main() {
	cfg := config.Load()

	// Database connection (write store)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if cfg.Migrate {
		if err := repository.Migrate(context.Background(), db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations applied")
	}

	// Redis connection (read model store + event streaming)
	redis, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	var publisher service.EventPublisher
	if cfg.EventBus == "kafka" {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Publishing account events to Kafka brokers %v", cfg.KafkaBrokers)
	} else {
		publisher = events.NewPublisher(redis.Client)
	}

	store := repository.NewAccountRepository(db)
	readRepo := repository.NewAccountReadRepository(db, redis.Client)

	accountService := service.NewAccountService(store, publisher)
	accountHandler := handler.NewAccountHandler(accountService, readRepo)

	router := gin.Default()
	router.Use(middleware.LoggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/accounts")
	{
		api.POST("/open", accountHandler.OpenAccount)
		api.GET("/balances", accountHandler.GetAllAccountBalances)
		// Read-model lookup. Lives under /views because the router cannot
		// mix a path parameter with the static /balances segment.
		api.GET("/views/:id", accountHandler.GetAccount)
		api.PUT("/:id/withdraw", accountHandler.WithdrawAmount)
		api.PUT("/:id/deposit", accountHandler.DepositAmount)
		api.PUT("/:id/transfer", accountHandler.TransferAmount)
	}

	if cfg.JWTSecret != "" {
		admin := router.Group("/api/accounts", middleware.AuthMiddleware([]byte(cfg.JWTSecret)))
		admin.DELETE("", accountHandler.DeleteAllAccounts)
	} else {
		log.Println("JWT_SECRET not set, admin reset endpoint disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The projector keeps the Redis account views in sync with Postgres.
	// With the Kafka bus selected nothing feeds this stream, so views are
	// served from the Postgres fallback instead.
	if cfg.EventBus != "kafka" {
		projector := service.NewBalanceProjector(readRepo)
		go func() {
			subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
				Group:    "bank-account-projector",
				Consumer: "projector-1",
				Stream:   events.AccountEventsStream,
				Handler:  projector.HandleEvent,
			})
			if err := subscriber.Start(ctx); err != nil {
				log.Printf("Subscriber stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	log.Printf("Bank account service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
