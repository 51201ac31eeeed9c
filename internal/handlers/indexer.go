package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/services"
)

const (
	defaultLimit = 100
	defaultPage  = 1
	defaultSort  = "time-desc"
)

// IndexerHandler proxies the NFT indexing APIs for the marketplace pages.
type IndexerHandler struct {
	indexer services.Indexer
}

func NewIndexerHandler(indexer services.Indexer) *IndexerHandler {
	return &IndexerHandler{indexer: indexer}
}

func (h *IndexerHandler) GetOwnerWallet(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	q := services.WalletQuery{
		Owner:           owner,
		OwnerAltAddress: c.Query("ownerAltAddress"),
		Limit:           queryInt(c, "limit", defaultLimit),
		Page:            queryInt(c, "page", defaultPage),
		Sort:            c.DefaultQuery("sort", defaultSort),
	}

	data, err := h.indexer.OwnerWallet(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *IndexerHandler) GetActivity(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	data, err := h.indexer.Activity(c.Request.Context(), owner, queryInt(c, "limit", defaultLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *IndexerHandler) GetWalletToken(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	holdings, err := h.indexer.WalletTokens(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, holdings)
}

func (h *IndexerHandler) GetTrending(c *gin.Context) {
	data, err := h.indexer.Trending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *IndexerHandler) GetOwnerFavorites(c *gin.Context) {
	data, err := h.indexer.OwnerFavorites(c.Request.Context(), c.Query("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func requireOwner(c *gin.Context) (string, bool) {
	owner := c.Query("owner")
	if owner == "" {
		respondError(c, apperror.Validation("owner is required"))
		return "", false
	}
	return owner, true
}

// queryInt falls back to def for missing, malformed or non-positive values.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
