// Package handler exposes the whitelist and generated PAC files over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qpac/internal/artifact"
	"github.com/jmerrifield20/qpac/internal/auth"
	"github.com/jmerrifield20/qpac/internal/pac"
	"github.com/jmerrifield20/qpac/internal/whitelist"
	"go.uber.org/zap"
)

// ChangeNotifier is told about every successful whitelist mutation.
// Satisfied by *coalescer.Coalescer.
type ChangeNotifier interface {
	Notify()
}

// PACHandler serves PAC files and the whitelist admin endpoints.
type PACHandler struct {
	store   whitelist.Store
	cache   artifact.Cache
	changes ChangeNotifier
	guards  []gin.HandlerFunc // run before mutating routes
	logger  *zap.Logger
}

// NewPACHandler creates a PACHandler. Mutating routes are open until
// SetVerifier is called.
func NewPACHandler(store whitelist.Store, cache artifact.Cache, changes ChangeNotifier, logger *zap.Logger) *PACHandler {
	return &PACHandler{
		store:   store,
		cache:   cache,
		changes: changes,
		logger:  logger,
	}
}

// SetVerifier requires a valid bearer token on /add and /remove.
func (h *PACHandler) SetVerifier(v auth.Verifier) {
	h.guards = append(h.guards, auth.Middleware(v))
}

// SetRateLimit applies a per-IP token bucket to /add and /remove. The
// limiter's cleanup goroutine stops when ctx is done.
func (h *PACHandler) SetRateLimit(ctx context.Context, rps, burst int) {
	h.guards = append([]gin.HandlerFunc{RateLimiter(ctx, rps, burst)}, h.guards...)
}

// Register mounts the PAC routes on r.
func (h *PACHandler) Register(r gin.IRouter) {
	r.GET("/", h.GetLatest)
	r.GET("/list", h.List)
	r.GET("/:hash", h.GetByHash)

	admin := r.Group("/", h.guards...)
	admin.POST("/add", h.Add)
	admin.POST("/remove", h.Remove)
}

type hostRequest struct {
	Host string `json:"host" binding:"required"`
}

// GetLatest handles GET /. It serves the latest PAC file; Content-Location
// points at the immutable /{hash} URL of the same body.
func (h *PACHandler) GetLatest(c *gin.Context) {
	a, err := h.cache.Latest(c.Request.Context())
	if err != nil {
		h.respondError(c, "get latest pac", err)
		return
	}
	c.Header("Content-Location", "/"+a.Hash)
	c.Header("ETag", etag(a.Hash))
	c.Header("Cache-Control", "no-cache")
	h.serve(c, a)
}

// GetByHash handles GET /:hash and serves one immutable PAC file.
func (h *PACHandler) GetByHash(c *gin.Context) {
	a, err := h.cache.Get(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.respondError(c, "get pac by hash", err)
		return
	}
	c.Header("ETag", etag(a.Hash))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	h.serve(c, a)
}

func (h *PACHandler) serve(c *gin.Context, a pac.Artifact) {
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag(a.Hash) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, pac.ContentType, []byte(a.Body))
}

// List handles GET /list with the whitelist as an ordered JSON array.
func (h *PACHandler) List(c *gin.Context) {
	hosts, err := h.store.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "list hosts", err)
		return
	}
	c.JSON(http.StatusOK, hosts)
}

// Add handles POST /add.
func (h *PACHandler) Add(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Add(c.Request.Context(), req.Host); err != nil {
		h.respondError(c, "add host", err)
		return
	}
	h.changes.Notify()
	h.logger.Info("host added", zap.String("host", req.Host))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Remove handles POST /remove.
func (h *PACHandler) Remove(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Remove(c.Request.Context(), req.Host); err != nil {
		h.respondError(c, "remove host", err)
		return
	}
	h.changes.Notify()
	h.logger.Info("host removed", zap.String("host", req.Host))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// NotFound is the fallback for unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

// respondError maps domain errors to status codes. Unknown errors become a
// 500 whose detail is logged but not returned.
func (h *PACHandler) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, whitelist.ErrAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, whitelist.ErrInvalidHost):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, whitelist.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func etag(hash string) string {
	return `"` + hash + `"`
}
