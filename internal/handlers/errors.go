package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/middleware"
	ws "github.com/thereayou/abstrio/internal/websocket"
)

// Publisher pushes profile events to the wallet's open websocket streams.
type Publisher interface {
	Publish(address string, typ ws.EventType, data any) error
}

// respondError пишет единый конверт ошибки
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal || kind == apperror.KindUpstream {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apperror.HTTPStatus(kind), dto.NewErrorResponse(err))
}

// requireAccount checks the accountAddress query parameter against the
// session token's address.
func requireAccount(c *gin.Context) (string, error) {
	address := strings.TrimSpace(c.Query("accountAddress"))
	if address == "" {
		return "", apperror.Validation("accountAddress is required")
	}
	tokenAddress, ok := middleware.AccountAddress(c)
	if !ok || !strings.EqualFold(address, tokenAddress) {
		return "", apperror.Authentication("token does not match accountAddress")
	}
	return address, nil
}

func publish(p Publisher, logger *zap.Logger, address string, typ ws.EventType, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(address, typ, data); err != nil {
		logger.Warn("publish event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
