package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes bundles the handlers and guards mounted by APIEndpoints.
type Routes struct {
	Auth    *AuthHandler
	User    *UserHandler
	Email   *EmailHandler
	Upload  *UploadHandler
	Indexer *IndexerHandler
	WS      *WSHandler

	SessionAuth gin.HandlerFunc
	WSAuth      gin.HandlerFunc
	Health      gin.HandlerFunc
}

func APIEndpoints(r *gin.Engine, h Routes) {
	health := h.Health
	if health == nil {
		health = func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	}
	r.GET("/healthz", health)

	api := r.Group("/api")

	// Auth endpoints
	api.POST("/authentication", h.Auth.Authenticate)
	api.POST("/register", h.SessionAuth, h.Auth.Register)
	api.POST("/logout", h.SessionAuth, h.Auth.Logout)

	// Profile
	api.GET("/user", h.User.GetUser)
	api.POST("/update", h.SessionAuth, h.User.Update)

	// Email verification
	api.POST("/signup", h.Email.Signup)
	api.POST("/verify-email", h.Email.VerifyEmail)
	api.GET("/verify-email", h.Email.VerifyEmail)

	if h.Upload != nil {
		api.POST("/upload", h.Upload.Upload)
	}

	if h.Indexer != nil {
		api.GET("/getOwnerWallet", h.Indexer.GetOwnerWallet)
		api.GET("/getActivity", h.Indexer.GetActivity)
		api.GET("/getWalletToken", h.Indexer.GetWalletToken)
		api.GET("/getTrending", h.Indexer.GetTrending)
		api.GET("/getOwnerFavorites", h.Indexer.GetOwnerFavorites)
	}

	if h.WS != nil && h.WSAuth != nil {
		api.GET("/ws", h.WSAuth, h.WS.Serve)
	}
}
