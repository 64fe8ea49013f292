package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/auth"
	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/service"
)

type createOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, service.ErrValidation)
		return
	}

	price, err := money.Parse(req.Price)
	if err != nil {
		h.writeError(c, validationField("price", err))
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		h.writeError(c, validationField("amount", err))
		return
	}

	order, err := h.Orders.CreateOrder(c.Request.Context(), userID, req.Symbol, req.Side, price, amount, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": orderJSON(order)})
}

func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	orders, err := h.Orders.ListOrders(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": ordersJSON(orders)})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.writeError(c, service.ErrNotFound)
		return
	}

	order, err := h.Orders.CancelOrder(c.Request.Context(), orderID, userID, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderJSON(order)})
}

func (h *Handler) OrderBook(c *gin.Context) {
	book, err := h.Orders.OrderBook(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":      book.Symbol,
		"buy_orders":  ordersJSON(book.BuyOrders),
		"sell_orders": ordersJSON(book.SellOrders),
	})
}

func validationField(field string, err error) error {
	return service.ValidationError(field + ": " + err.Error())
}
