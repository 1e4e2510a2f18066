package server

import (
	"storefront-checkout/internal/handler"
	authmw "storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	echo            *echo.Echo
	jwtSecret       string
	cartHandler     *handler.CartHandler
	checkoutHandler *handler.CheckoutHandler
	storeHandler    *handler.StoreHandler
	billingHandler  *handler.BillingHandler
	webhookHandler  *handler.WebhookHandler
}

func NewServer(
	jwtSecret string,
	cartService service.CartService,
	stripeService service.StripeService,
	orderService service.OrderService,
	planService service.PlanService,
	webhookService service.WebhookService,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		jwtSecret:       jwtSecret,
		cartHandler:     handler.NewCartHandler(cartService),
		checkoutHandler: handler.NewCheckoutHandler(stripeService, orderService, cartService),
		storeHandler:    handler.NewStoreHandler(stripeService),
		billingHandler:  handler.NewBillingHandler(planService),
		webhookHandler:  handler.NewWebhookHandler(webhookService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- cart --------
	api.GET("/cart", s.cartHandler.GetCart)
	api.POST("/cart/items", s.cartHandler.AddItem)
	api.DELETE("/cart/items/:productID", s.cartHandler.RemoveItem)

	// -------- billing --------
	api.GET("/plans", s.billingHandler.GetPlans)
	billing := api.Group("/billing", authmw.AuthMiddleware(s.jwtSecret))
	billing.GET("/plan", s.billingHandler.GetPlan)
	billing.POST("/manage", s.billingHandler.ManagePlan)

	// -------- stores --------
	stores := api.Group("/stores")
	stores.GET("/:storeID/account", s.storeHandler.AccountStatus)
	stores.POST("/:storeID/connect", s.storeHandler.Connect, authmw.AuthMiddleware(s.jwtSecret))
	stores.GET("/:storeID/payment-intents", s.storeHandler.ListPaymentIntents, authmw.AuthMiddleware(s.jwtSecret))

	// -------- checkout --------
	stores.POST("/:storeID/checkout/payment-intent", s.checkoutHandler.CreatePaymentIntent)
	stores.GET("/:storeID/checkout/order-summary", s.checkoutHandler.OrderSummary)

	// -------- processor webhooks --------
	api.POST("/stripe/webhook", s.webhookHandler.StripeWebhook)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			util.GetLogger().Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Error(v.Error),
			)
			return nil
		},
	})
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
