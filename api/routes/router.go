package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tecnoshop/storefront-backend/api/controllers"
	webhookcontrollers "github.com/tecnoshop/storefront-backend/api/controllers/webhooks"
	"github.com/tecnoshop/storefront-backend/api/middleware"
	"github.com/tecnoshop/storefront-backend/internal/auth"
	"github.com/tecnoshop/storefront-backend/internal/billing"
	checkoutsvc "github.com/tecnoshop/storefront-backend/internal/checkout"
	"github.com/tecnoshop/storefront-backend/internal/inventory"
	"github.com/tecnoshop/storefront-backend/internal/orders"
	product "github.com/tecnoshop/storefront-backend/internal/products"
	"github.com/tecnoshop/storefront-backend/internal/stores"
	"github.com/tecnoshop/storefront-backend/pkg/config"
	"github.com/tecnoshop/storefront-backend/pkg/db"
	"github.com/tecnoshop/storefront-backend/pkg/logger"
	"github.com/tecnoshop/storefront-backend/pkg/redis"
	"github.com/tecnoshop/storefront-backend/pkg/square"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	authService auth.Service,
	storeService stores.Service,
	productService product.Service,
	inventoryService inventory.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	billingService billing.Service,
	squareClient *square.Client,
	webhookGuard *webhookcontrollers.RedisEventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	authMW := middleware.Auth(cfg.JWT, logg)
	idemMW := middleware.Idempotency(redisClient, logg)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(billingService, squareClient, webhookGuard, cfg.Square.NotificationURL, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))
		r.With(authMW).Post("/logout", controllers.AuthLogout(authService, logg))
	})

	// Storefront reads stay public; store ownership actions require auth.
	r.Route("/api/v1/stores", func(r chi.Router) {
		r.Get("/{storeId}", controllers.StoreGet(storeService, logg))
		r.Get("/slug/{slug}", controllers.StoreGetBySlug(storeService, logg))
		r.Get("/{storeId}/products", controllers.StoreProductsList(productService, logg))
		r.With(authMW, idemMW).Post("/", controllers.StoreCreate(storeService, logg))
		r.With(authMW, idemMW).Put("/{storeId}", controllers.StoreUpdate(storeService, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/{productId}", controllers.ProductGet(productService, logg))
	})

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Get("/plans", controllers.PlansList(billingService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authMW)
		r.Use(idemMW)

		r.Get("/ping", controllers.PrivatePing())

		r.Get("/v1/me/orders", controllers.MyOrdersList(ordersService, logg))
		r.Post("/v1/checkout", controllers.CheckoutCreate(checkoutService, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.OrderGet(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(ordersService, logg))
		})

		r.Route("/v1/seller", func(r chi.Router) {
			r.Route("/stores/{storeId}", func(r chi.Router) {
				r.Post("/products", controllers.SellerProductCreate(productService, logg))
				r.Patch("/products/{productId}", controllers.SellerProductUpdate(productService, logg))
				r.Post("/products/{productId}/status", controllers.SellerProductSetStatus(productService, logg))
				r.Put("/products/{productId}/stock", controllers.SellerStockSet(inventoryService, productService, storeService, logg))
				r.Get("/products/{productId}/stock", controllers.SellerStockGet(inventoryService, productService, storeService, logg))
				r.Get("/orders", controllers.SellerOrdersList(ordersService, logg))
				r.Post("/billing/subscription", controllers.SellerSubscribe(billingService, logg))
				r.Get("/billing/subscription", controllers.SellerSubscriptionGet(billingService, logg))
				r.Post("/billing/subscription/cancel", controllers.SellerSubscriptionCancel(billingService, logg))
			})
			r.Post("/orders/{orderId}/fulfill", controllers.SellerOrderFulfill(ordersService, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMW)
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(idemMW)

		r.Get("/ping", controllers.AdminPing())
		r.Post("/v1/billing/plans", controllers.AdminPlanUpsert(billingService, logg))
		r.Post("/v1/stores/{storeId}/suspend", controllers.AdminStoreSuspend(storeService, logg))
		r.Post("/v1/stores/{storeId}/activate", controllers.AdminStoreActivate(storeService, logg))
	})

	return r
}
