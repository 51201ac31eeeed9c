package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/models"
	"github.com/thereayou/abstrio/internal/services"
	ws "github.com/thereayou/abstrio/internal/websocket"
)

type UserHandler struct {
	users  services.UserStore
	events Publisher
	logger *zap.Logger
}

func NewUserHandler(users services.UserStore, events Publisher, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, events: events, logger: logger}
}

// GetUser возвращает профиль по адресу кошелька. Клиент использует 404 как
// сигнал повторить регистрацию.
func (h *UserHandler) GetUser(c *gin.Context) {
	address := strings.TrimSpace(c.Query("accountAddress"))
	if address == "" {
		respondError(c, apperror.Validation("accountAddress is required"))
		return
	}

	user, err := h.users.FindUserByAddress(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UserResponse{User: user})
}

// Update обновляет только переданные поля
func (h *UserHandler) Update(c *gin.Context) {
	address, err := requireAccount(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req dto.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.Validation("invalid request body"))
		return
	}

	upd := models.ProfileUpdate{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		X:     strings.TrimSpace(req.X),
		Image: strings.TrimSpace(req.Image),
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), address, upd)
	if err != nil {
		respondError(c, err)
		return
	}

	publish(h.events, h.logger, user.Address, ws.TypeUserUpdated, user)

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Update successful"})
}
