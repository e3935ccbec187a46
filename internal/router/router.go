package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/hyunsoo-lee/roomstay/internal/config"
	"github.com/hyunsoo-lee/roomstay/internal/handler"
	"github.com/hyunsoo-lee/roomstay/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the session endpoints.  Unauthenticated operations
// live under /v1/auth; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout takes the refresh token in the body, so no JWT is needed;
	// clients with an expired access token can still terminate sessions.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("CUSTOMER", "ADMIN"))
	auth.GET("/me", a.Me)
}

// RegisterRooms exposes the public room-type catalog.  These are
// read-only guest endpoints, so they sit behind the Redis response
// cache and the token-bucket rate limiter instead of any auth.
func RegisterRooms(e *echo.Echo, h *handler.RoomHandler, rdb *redis.Client) {
	g := e.Group("/v1/rooms")
	g.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	g.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// RegisterOrders wires the order settlement workflow for authenticated
// customers: intake, payment confirmation, listing, detail and
// cancellation.
func RegisterOrders(e *echo.Echo, h *handler.OrderHandler, jwtSecret string) {
	g := e.Group("/v1/orders")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("CUSTOMER", "ADMIN"))

	g.POST("", h.CreateOrder)
	g.POST("/confirm", h.ConfirmPayment)
	g.GET("", h.ListMyOrders)
	g.GET("/:id", h.GetOrderDetail)
	g.POST("/:id/cancel", h.CancelOrder)
}

// RegisterAdmin wires the back-office order console.  Every route
// requires the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminOrderHandler, jwtSecret string) {
	g := e.Group("/v1/admin/orders")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN"))

	g.GET("", h.List)
	g.GET("/:id", h.Detail)
	g.PATCH("/:id/status", h.UpdateStatus)
}
