package main

import (
	"log"
	"net/http"

	"pawmart-be/internal/catalog"
	"pawmart-be/internal/config"
	"pawmart-be/internal/db"
	"pawmart-be/internal/httpx"
	"pawmart-be/internal/logger"
	"pawmart-be/internal/middleware"
	"pawmart-be/internal/order"
	"pawmart-be/internal/payment"
	"pawmart-be/internal/payment/webhook"
	"pawmart-be/internal/user"
)

func setupRouter(h *httpx.Handler, wh *webhook.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.OrderDetail)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.Handle("PATCH /api/admin/orders/{id}/status",
		middleware.RequireAdmin(http.HandlerFunc(h.UpdateOrderStatus)))

	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)

	mux.HandleFunc("POST /webhook/payos", wh.WebhookHandler)
	mux.HandleFunc("POST /internal/orders/sweep", h.SweepExpired)

	return logger.RequestIDMiddleware(
		middleware.AuthMiddleware(
			middleware.RateLimitMiddleware(
				logger.LoggingMiddleware(mux),
			),
		),
	)
}

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	catalogRepo := catalog.NewRepository(database)
	catalogSvc := catalog.NewService(catalogRepo)

	paymentRepo := payment.NewRepository(database)
	gateway := payment.NewPayOSGateway(cfg.PayOSClientID, cfg.PayOSAPIKey, cfg.PayOSChecksumKey, cfg.ReturnURL, cfg.CancelURL)

	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, catalogSvc, paymentRepo, gateway)

	userRepo := user.NewRepository(database)
	userSvc := user.NewService(userRepo)

	h := httpx.NewHandler(orderSvc, catalogSvc, userSvc, cfg.InternalAuthKey)
	wh := webhook.NewWebhookHandler(orderSvc, gateway, paymentRepo)

	handler := setupRouter(h, wh)

	log.Printf("server running at http://localhost:%s/", cfg.AppPort)
	log.Fatal(http.ListenAndServe(":"+cfg.AppPort, handler))
}
