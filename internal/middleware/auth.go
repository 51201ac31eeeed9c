package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/services"
	"github.com/thereayou/abstrio/pkg/auth"
)

const (
	AccountAddressKey = "accountAddress"
	SessionTokenKey   = "sessionToken"

	maxTokenBody = 1 << 20
)

// AuthMiddleware проверяет сессионный JWT из тела запроса или заголовка
func AuthMiddleware(sessions *auth.SessionManager, revoker services.TokenRevoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := tokenFromBody(c)
		if err != nil {
			abort(c, err)
			return
		}
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		authorize(c, token, sessions, revoker)
	}
}

// WSAuthMiddleware специальный middleware для WebSocket: браузер не может
// передать заголовок при апгрейде, поэтому токен приходит в query
func WSAuthMiddleware(sessions *auth.SessionManager, revoker services.TokenRevoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		authorize(c, token, sessions, revoker)
	}
}

func authorize(c *gin.Context, token string, sessions *auth.SessionManager, revoker services.TokenRevoker) {
	if token == "" {
		abort(c, apperror.Authentication("missing token"))
		return
	}

	// Проверяем, не в черном списке ли токен
	if revoker != nil {
		revoked, err := revoker.IsRevoked(c.Request.Context(), token)
		if err != nil {
			abort(c, apperror.Upstream("session check unavailable", err))
			return
		}
		if revoked {
			abort(c, apperror.Authentication("token is revoked"))
			return
		}
	}

	claims, err := sessions.Verify(token)
	if err != nil || claims.AccountAddress == "" {
		abort(c, apperror.Authentication("invalid token"))
		return
	}

	c.Set(AccountAddressKey, claims.AccountAddress)
	c.Set(SessionTokenKey, token)
	c.Next()
}

// AccountAddress returns the address the session middleware authenticated.
func AccountAddress(c *gin.Context) (string, bool) {
	v, ok := c.Get(AccountAddressKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// tokenFromBody reads {"token": ...} and puts the body back for the handler.
// Bodies over maxTokenBody are rejected.
func tokenFromBody(c *gin.Context) (string, error) {
	r := c.Request
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, r.Body, maxTokenBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", apperror.Validation("request body too large")
		}
		return "", apperror.Validation("unreadable request body")
	}
	if len(raw) == 0 {
		return "", nil
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", nil
	}
	return body.Token, nil
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperror.HTTPStatus(apperror.KindOf(err)), dto.NewErrorResponse(err))
}
