package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/hyunsoo-lee/roomstay/internal/config"
	"github.com/hyunsoo-lee/roomstay/internal/database"
	"github.com/hyunsoo-lee/roomstay/internal/handler"
	"github.com/hyunsoo-lee/roomstay/internal/payment"
	"github.com/hyunsoo-lee/roomstay/internal/queue"
	"github.com/hyunsoo-lee/roomstay/internal/repository"
	"github.com/hyunsoo-lee/roomstay/internal/router"
	"github.com/hyunsoo-lee/roomstay/internal/service"
)

func main() {
	// Load .env if present; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil disables cache/ratelimit

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	rooms := repository.NewRoomTypeRepo(db)
	orders := repository.NewOrderRepo(db)
	store := repository.NewStore(db)

	// Payment gateway client and the settlement workflow service.
	gateway := payment.NewClient(cfg.TossSecretKey, cfg.TossBaseURL)
	publisher := service.NewAmqpPublisher()
	orderSvc := service.NewOrderService(store, gateway, publisher)

	// Handlers.
	authH := handler.NewAuthHandler(cfg, users, tokens)
	orderH := handler.NewOrderHandler(orderSvc, orders)
	adminH := handler.NewAdminOrderHandler(orders)
	roomH := handler.NewRoomHandler(rooms)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterRooms(e, roomH, rdb)
	router.RegisterOrders(e, orderH, cfg.JWTSecret)
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	// Hourly housekeeping: drop refresh token rows whose expiry has
	// passed.  Revoked-but-unexpired rows stay until they expire.
	go func() {
		tick := time.NewTicker(time.Hour)
		defer tick.Stop()
		for range tick.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			n, err := tokens.DeleteExpired(ctx)
			cancel()
			if err != nil {
				log.Printf("token purge: %v", err)
			} else if n > 0 {
				log.Printf("token purge: removed %d expired tokens", n)
			}
		}
	}()

	// Paid-order fanout consumer; runs until the process exits and
	// reconnects on broker failures.
	go func() {
		if err := queue.StartOrderPaidConsumer(); err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
