package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/MikeMC777/bikerhub/docs"
	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/product"
)

// services are the route dependencies; main wires the concrete ones.
type services struct {
	accounts  accountService
	products  product.Repository
	orders    orderService
	payments  paymentService
	uploads   uploadService
	analytics analyticsService
	cart      cartService
	health    healthChecker
}

type routerOptions struct {
	cfg     *config.Config
	log     *zap.Logger
	limiter httpx.Limiter
	tracing gin.HandlerFunc
	// staticDir is served at cfg.Upload.PublicPath when set.
	staticDir string
}

func newRouter(opts routerOptions, svc services) *gin.Engine {
	cfg := opts.cfg
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpx.SetupValidator()

	r := gin.New()
	if !cfg.Server.TrustProxy {
		_ = r.SetTrustedProxies(nil)
	}
	r.MaxMultipartMemory = cfg.Upload.MaxFileSize

	if opts.tracing != nil {
		r.Use(opts.tracing)
	}
	r.Use(
		httpx.RequestID(),
		httpx.Logger(opts.log),
		httpx.Recovery(opts.log, cfg.IsProduction()),
		httpx.ErrorHandler(httpx.ErrorConfig{
			Logger:     opts.log,
			Production: cfg.IsProduction(),
			Translate:  translateError,
		}),
		httpx.SecurityHeaders(cfg.IsProduction()),
		httpx.CORS(httpx.DefaultCORSConfig(cfg.Security.CORSOrigins)),
		httpx.BodyLimit(cfg.Security.BodyLimit, httpx.PathLimit{Prefix: "/api/uploads", Limit: uploadBodyLimit(cfg.Upload)}),
	)
	r.NoRoute(httpx.NoRoute())

	r.GET("/health", healthHandler(svc.health, cfg.Server.Env))
	if cfg.Swagger.Enabled {
		r.GET("/api-docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if opts.staticDir != "" {
		r.Static(cfg.Upload.PublicPath, opts.staticDir)
	}

	api := r.Group("/api")
	if opts.limiter != nil {
		api.Use(httpx.RateLimit(opts.limiter))
	}
	authed := httpx.Auth(svc.accounts)
	staff := httpx.ModeratorOrAdmin()
	admin := httpx.AdminOnly()

	a := api.Group("/auth")
	a.GET("/test", authTestHandler())
	a.POST("/register", registerHandler(svc.accounts))
	a.POST("/login", loginHandler(svc.accounts))
	a.POST("/refresh", refreshHandler(svc.accounts))
	a.POST("/logout", authed, logoutHandler(svc.accounts))
	a.GET("/me", authed, profileHandler(svc.accounts))

	u := api.Group("/users", authed)
	u.GET("", admin, listUsersHandler(svc.accounts))
	u.GET("/profile", profileHandler(svc.accounts))
	u.PUT("/profile", updateProfileHandler(svc.accounts))
	u.PATCH("/:id/role", admin, setRoleHandler(svc.accounts))
	u.PATCH("/:id/status", admin, setStatusHandler(svc.accounts))
	u.DELETE("/:id", admin, deleteUserHandler(svc.accounts))

	p := api.Group("/products")
	p.GET("", listProductsHandler(svc.products))
	p.GET("/featured", highlightedHandler(svc.products, product.HighlightFeatured))
	p.GET("/trending", highlightedHandler(svc.products, product.HighlightTrending))
	p.GET("/best-sellers", highlightedHandler(svc.products, product.HighlightBestSellers))
	p.GET("/low-stock", authed, staff, lowStockHandler(svc.products))
	p.GET("/:id", getProductHandler(svc.products))
	p.POST("", authed, httpx.RequireRoles(auth.RoleSeller, auth.RoleAdmin), createProductHandler(svc.products))
	p.PUT("/:id", authed, updateProductHandler(svc.products))
	p.DELETE("/:id", authed, deleteProductHandler(svc.products))
	p.PATCH("/:id/stock", authed, updateStockHandler(svc.products))

	o := api.Group("/orders", authed)
	o.GET("", listOrdersHandler(svc.orders))
	o.GET("/stats", orderStatsHandler(svc.orders))
	o.GET("/seller", httpx.RequireRoles(auth.RoleSeller, auth.RoleAdmin), sellerOrdersHandler(svc.orders))
	o.GET("/:id", getOrderHandler(svc.orders))
	o.GET("/:id/status", staff, orderStatusHandler(svc.orders))
	o.POST("", placeOrderHandler(svc.orders))
	o.PATCH("/:id/status", staff, updateOrderStatusHandler(svc.orders))
	o.POST("/:id/cancel", cancelOrderHandler(svc.orders))
	o.POST("/:id/refund", admin, refundOrderHandler(svc.orders))

	pay := api.Group("/payments", authed)
	pay.POST("/process", processPaymentHandler(svc.payments))
	pay.GET("/status/:id", paymentStatusHandler(svc.payments))

	up := api.Group("/uploads", authed)
	up.POST("", uploadFilesHandler(svc.uploads))
	up.GET("", listUploadsHandler(svc.uploads))
	up.DELETE("/:key", deleteUploadHandler(svc.uploads))

	an := api.Group("/analytics", authed, admin)
	an.GET("", analyticsOverviewHandler(svc.analytics))
	an.GET("/sales", salesAnalyticsHandler(svc.analytics))

	ct := api.Group("/cart", authed)
	ct.GET("", getCartHandler(svc.cart))
	ct.DELETE("", clearCartHandler(svc.cart))
	ct.POST("/items", addToCartHandler(svc.cart))
	ct.PUT("/items/:productId", updateCartHandler(svc.cart))
	ct.DELETE("/items/:productId", removeFromCartHandler(svc.cart))
	ct.POST("/checkout", checkoutHandler(svc.cart))
	ct.GET("/wishlist", wishlistHandler(svc.cart))
	ct.POST("/wishlist/:productId", toggleWishlistHandler(svc.cart))

	return r
}

// uploadBodyLimit fits MaxFiles full size files plus multipart framing.
func uploadBodyLimit(u config.UploadConfig) int64 {
	return int64(u.MaxFiles)*u.MaxFileSize + 1<<20
}
