// Package handlers exposes the trading engine over HTTP. It parses
// and validates request shapes, classifies service errors into status
// codes, and keeps all JSON money fields as 8-digit decimal strings.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gospotdev/gospot/internal/auth"
	"github.com/gospotdev/gospot/internal/health"
	"github.com/gospotdev/gospot/internal/httpmiddleware"
	"github.com/gospotdev/gospot/internal/service"
	"github.com/gospotdev/gospot/internal/storage"
	"github.com/gospotdev/gospot/internal/trace"
)

type Handler struct {
	Accounts *service.AccountService
	Orders   *service.OrderService
	Logger   *slog.Logger
}

func New(accounts *service.AccountService, orders *service.OrderService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Accounts: accounts, Orders: orders, Logger: logger}
}

type RouterConfig struct {
	Handler     *Handler
	JWTSecret   []byte
	Logger      *slog.Logger
	Health      *health.Manager
	ServiceName string
	// WSHandler serves GET /api/ws when set.
	WSHandler gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(cfg.Logger))
	r.Use(httpmiddleware.Recovery(cfg.Logger))
	r.Use(trace.Middleware(cfg.ServiceName))

	r.GET("/healthz", health.LivenessHandler)
	r.GET("/readyz", health.ReadinessHandler(cfg.Health))

	h := cfg.Handler
	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)

	authed := api.Group("/", auth.Middleware(cfg.JWTSecret))
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.GET("/profile", h.Profile)
	authed.POST("/orders", h.CreateOrder)
	authed.GET("/orders", h.ListOrders)
	authed.POST("/orders/:id/cancel", h.CancelOrder)
	authed.GET("/orderbook", h.OrderBook)
	if cfg.WSHandler != nil {
		authed.GET("/ws", cfg.WSHandler)
	}

	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError classifies a service error into a wire code and status.
// Anything outside the taxonomy is an internal error: log it, hide the
// detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("internal error", "path", c.Request.URL.Path, "error", err)
		c.JSON(status, errorResponse{Code: code, Message: "internal error"})
		return
	}
	c.JSON(status, errorResponse{Code: code, Message: err.Error()})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return "VALIDATION_ERROR", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInsufficientAssets):
		return "INSUFFICIENT_ASSETS", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInsufficientLocked):
		return "INSUFFICIENT_LOCKED", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrOwnership):
		return "OWNERSHIP_VIOLATION", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrIllegalState):
		return "ILLEGAL_STATE", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrPartialMatch):
		return "UNSUPPORTED_PARTIAL_MATCH", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return "UNAUTHORIZED", http.StatusUnauthorized
	case errors.Is(err, service.ErrTransient):
		return "TRANSIENT_ERROR", http.StatusServiceUnavailable
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}

type userItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func userJSON(u storage.User) userItem {
	return userItem{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type orderItem struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func orderJSON(o storage.Order) orderItem {
	return orderItem{
		ID:        o.ID.String(),
		UserID:    o.UserID.String(),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     o.Price.String(),
		Amount:    o.Amount.String(),
		Status:    o.Status,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func ordersJSON(orders []storage.Order) []orderItem {
	items := make([]orderItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, orderJSON(o))
	}
	return items
}
