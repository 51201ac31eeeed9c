package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/services"
	ws "github.com/thereayou/abstrio/internal/websocket"
	"github.com/thereayou/abstrio/pkg/auth"
)

type EmailHandler struct {
	users         services.UserStore
	verifications *auth.VerificationManager
	mailer        services.Mailer
	locker        services.SignupLocker
	events        Publisher
	logger        *zap.Logger
}

func NewEmailHandler(users services.UserStore, verifications *auth.VerificationManager, mailer services.Mailer, locker services.SignupLocker, events Publisher, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		users:         users,
		verifications: verifications,
		mailer:        mailer,
		locker:        locker,
		events:        events,
		logger:        logger,
	}
}

// Signup привязывает email к адресу и отправляет письмо с ссылкой подтверждения
func (h *EmailHandler) Signup(c *gin.Context) {
	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperror.Validation("valid email and address are required"))
		return
	}
	email := strings.TrimSpace(req.Email)
	address := strings.TrimSpace(req.Address)
	ctx := c.Request.Context()

	if h.locker != nil {
		release, err := h.locker.AcquireSignup(ctx, address)
		if err != nil {
			respondError(c, err)
			return
		}
		defer release()
	}

	token, err := h.verifications.Generate(email)
	if err != nil {
		respondError(c, apperror.Internal("could not generate verification token", err))
		return
	}

	user, err := h.users.MarkEmailPending(ctx, address, email, token)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.mailer.SendVerification(ctx, email, token); err != nil {
		respondError(c, err)
		return
	}

	publish(h.events, h.logger, user.Address, ws.TypeEmailPending, user)

	c.JSON(http.StatusOK, dto.SignupResponse{Status: http.StatusOK, Message: "Verification email sent"})
}

// VerifyEmail принимает токен из письма. Токен одноразовый.
func (h *EmailHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" && c.Request.Method == http.MethodPost {
		var req dto.TokenRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = strings.TrimSpace(req.Token)
		}
	}
	if token == "" {
		respondError(c, apperror.Validation("token is required"))
		return
	}

	claims, err := h.verifications.Verify(token)
	if err != nil {
		respondError(c, apperror.Wrap(apperror.KindInvalidToken, "Invalid or expired token", err))
		return
	}

	user, err := h.users.MarkEmailVerified(c.Request.Context(), claims.Email, token)
	if err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindInvalidToken, apperror.KindNotFound:
			respondError(c, apperror.Wrap(apperror.KindInvalidToken, "Invalid or expired token", err))
		default:
			respondError(c, err)
		}
		return
	}

	h.logger.Info("email verified", zap.String("address", user.Address))
	publish(h.events, h.logger, user.Address, ws.TypeEmailVerified, user)

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Email verified successfully"})
}
