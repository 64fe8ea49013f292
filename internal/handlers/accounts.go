package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gospotdev/gospot/internal/auth"
	"github.com/gospotdev/gospot/internal/service"
	"github.com/gospotdev/gospot/internal/storage"
)

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  userItem `json:"user"`
	Token string   `json:"token"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, service.ErrValidation)
		return
	}

	user, token, err := h.Accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.PasswordConfirmation, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{User: userJSON(user), Token: token})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	user, token, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: userJSON(user), Token: token})
}

func (h *Handler) Logout(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}
	h.Accounts.Logout(c.Request.Context(), userID, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Me(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	user, err := h.Accounts.Me(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(user)})
}

type assetItem struct {
	Symbol          string `json:"symbol"`
	Amount          string `json:"amount"`
	LockedAmount    string `json:"locked_amount"`
	TotalAmount     string `json:"total_amount"`
	AvailableAmount string `json:"available_amount"`
}

func (h *Handler) Profile(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		h.writeError(c, service.ErrUnauthorized)
		return
	}

	user, assets, err := h.Accounts.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]assetItem, 0, len(assets))
	for _, a := range assets {
		items = append(items, assetJSON(a))
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          userJSON(user),
		"balance":       user.Balance.String(),
		"available_usd": user.Balance.String(),
		"assets":        items,
	})
}

func assetJSON(a storage.Asset) assetItem {
	return assetItem{
		Symbol:          a.Symbol,
		Amount:          a.Amount.String(),
		LockedAmount:    a.LockedAmount.String(),
		TotalAmount:     a.Amount.String(),
		AvailableAmount: a.Available().String(),
	}
}
