package main

import (
	"github.com/gin-gonic/gin"

	"github.com/thereayou/abstrio/internal/handlers"
	"github.com/thereayou/abstrio/internal/middleware"
	"github.com/thereayou/abstrio/internal/revocation"
	"github.com/thereayou/abstrio/internal/services"
)

func (s *Server) newRouter(revoker *revocation.Store, mail services.Mailer, images services.ImageStore, idx services.Indexer) *gin.Engine {
	if s.cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxImageSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger.Named("http")))
	r.Use(middleware.CORS(s.cfg.CORSAllowedOrigins))

	logger := s.logger.Named("handlers")
	wsOrigins := s.cfg.CORSAllowedOrigins
	if len(wsOrigins) == 1 && wsOrigins[0] == "*" {
		wsOrigins = nil
	}

	handlers.APIEndpoints(r, handlers.Routes{
		Auth:    handlers.NewAuthHandler(s.Users, s.Sessions, revoker, s.Hub, logger),
		User:    handlers.NewUserHandler(s.Users, s.Hub, logger),
		Email:   handlers.NewEmailHandler(s.Users, s.Verifications, mail, revoker, s.Hub, logger),
		Upload:  handlers.NewUploadHandler(images),
		Indexer: handlers.NewIndexerHandler(idx),
		WS:      handlers.NewWSHandler(s.Hub, wsOrigins),

		SessionAuth: middleware.AuthMiddleware(s.Sessions, revoker),
		WSAuth:      middleware.WSAuthMiddleware(s.Sessions, revoker),
		Health:      s.health,
	})

	return r
}
