package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/port"
)

type HTTPHandler struct {
	Items     *ItemHandler
	Users     *UserHandler
	Auth      *AuthHandler
	Signature SignatureConfig
	Replay    port.CacheRepository
	Logger    *zap.Logger
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Router wires every route. /api is signed; everything but /api/auth also needs a bearer token.
func (h *HTTPHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(h.Logger))

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api", Signature(h.Signature, h.Replay, h.Logger))
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)

		secured := api.Group("", BearerAuth(h.Auth.auth, h.Logger))

		users := secured.Group("/users")
		users.POST("", h.Users.CreateUser)
		users.GET("", h.Users.ListUsers)
		users.GET("/:id", h.Users.GetUser)
		users.PATCH("/:id", h.Users.UpdateUser)
		users.DELETE("/:id", h.Users.DeleteUser)

		items := secured.Group("/items")
		items.POST("", h.Items.CreateItem)
		items.GET("", h.Items.ListItems)
		items.GET("/report/stock", h.Items.StockReport)
		items.GET("/report/price", h.Items.PriceReport)
		items.GET("/:id", h.Items.GetItem)
		items.PATCH("/:id", h.Items.UpdateItem)
		items.DELETE("/:id", h.Items.DeleteItem)
		items.POST("/:id/stock", h.Items.AdjustStock)
		items.POST("/:id/price", h.Items.SetPrice)
		items.GET("/:id/stock-ledger", h.Items.StockLedger)
		items.GET("/:id/price-ledger", h.Items.PriceLedger)
	}

	return router
}
