package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/middleware"
	"github.com/thereayou/abstrio/internal/services"
	ws "github.com/thereayou/abstrio/internal/websocket"
	"github.com/thereayou/abstrio/pkg/auth"
	"github.com/thereayou/abstrio/pkg/wallet"
)

type AuthHandler struct {
	users    services.UserStore
	sessions *auth.SessionManager
	revoker  services.TokenRevoker
	events   Publisher
	logger   *zap.Logger
}

func NewAuthHandler(users services.UserStore, sessions *auth.SessionManager, revoker services.TokenRevoker, events Publisher, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, revoker: revoker, events: events, logger: logger}
}

// Authenticate проверяет подпись challenge-сообщения и выдаёт сессионный токен.
// Ничего не сохраняет: запись пользователя создаёт Register.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	address := strings.TrimSpace(c.Query("accountAddress"))

	var req dto.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil || address == "" || req.Signature == "" {
		respondError(c, apperror.Validation("accountAddress and signature are required"))
		return
	}

	if err := wallet.Verify(address, req.Signature); err != nil {
		respondError(c, apperror.Wrap(apperror.KindAuthentication, "signature verification failed", err))
		return
	}

	token, err := h.sessions.Generate(wallet.NormalizeAddress(address))
	if err != nil {
		respondError(c, apperror.Internal("could not generate token", err))
		return
	}

	c.JSON(http.StatusOK, dto.AuthenticateResponse{Message: "Authentication success", Token: token})
}

// Register создаёт запись пользователя при первом входе. Повторный вызов
// ничего не меняет и отвечает 409.
func (h *AuthHandler) Register(c *gin.Context) {
	address, err := requireAccount(c)
	if err != nil {
		respondError(c, err)
		return
	}

	user, created, err := h.users.RegisterUser(c.Request.Context(), address, c.GetString(middleware.SessionTokenKey))
	if err != nil {
		respondError(c, err)
		return
	}
	if !created {
		respondError(c, apperror.Conflict("user already registered"))
		return
	}

	h.logger.Info("user registered", zap.String("address", user.Address))
	publish(h.events, h.logger, user.Address, ws.TypeUserRegistered, user)

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Registration successful"})
}

// Logout ставит токен в черный список в Redis до истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.revoker == nil {
		respondError(c, apperror.Internal("logout is not available", nil))
		return
	}

	rawToken := c.GetString(middleware.SessionTokenKey)
	exp, err := h.sessions.Expiry(rawToken)
	if err != nil {
		respondError(c, apperror.Authentication("invalid token"))
		return
	}

	var ttl time.Duration
	if !exp.IsZero() {
		ttl = time.Until(exp)
	}
	if err := h.revoker.Revoke(c.Request.Context(), rawToken, ttl); err != nil {
		respondError(c, apperror.Upstream("could not revoke token", err))
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Logout successful"})
}
