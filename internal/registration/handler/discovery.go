package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/service"
)

// DiscoveryHandler handles HTTP requests for LAN rendezvous.
type DiscoveryHandler struct {
	svc    *service.DiscoveryService
	logger *zap.Logger
}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler(svc *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{svc: svc, logger: logger}
}

// Register mounts the discovery routes on the given router group.
func (h *DiscoveryHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/ping", h.Ping)
	rg.GET("/adddiscovery", h.AddDiscovery)
	rg.GET("/revokediscovery", h.RevokeDiscovery)
	rg.GET("/discovery", h.Discover)
}

// Ping handles GET /ping: servers co-located with the caller's public IP.
func (h *DiscoveryHandler) Ping(c *gin.Context) {
	results, err := h.svc.Ping(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.logger.Error("ping", zap.Error(err))
		badRequest(c, "store failure")
		return
	}
	c.JSON(http.StatusOK, results)
}

// AddDiscovery handles GET /adddiscovery?token=...&disco=...
func (h *DiscoveryHandler) AddDiscovery(c *gin.Context) {
	token := c.Query("token")
	disco := c.Query("disco")
	if token == "" || disco == "" {
		badRequest(c, "missing token or disco")
		return
	}

	err := h.svc.AddDiscovery(c.Request.Context(), token, disco)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token")
			return
		}
		h.logger.Error("adddiscovery", zap.Error(err))
		badRequest(c, "store failure")
		return
	}

	c.Status(http.StatusOK)
}

// RevokeDiscovery handles GET /revokediscovery?token=...&disco=...
// The discovery id must belong to the supplied token.
func (h *DiscoveryHandler) RevokeDiscovery(c *gin.Context) {
	token := c.Query("token")
	disco := c.Query("disco")
	if token == "" || disco == "" {
		badRequest(c, "missing token or disco")
		return
	}

	err := h.svc.RevokeDiscovery(c.Request.Context(), token, disco)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token or disco")
			return
		}
		h.logger.Error("revokediscovery", zap.Error(err))
		badRequest(c, "store failure")
		return
	}

	c.Status(http.StatusOK)
}

// Discover handles GET /discovery?disco=..., resolving a discovery id from the
// caller's network vantage point.
func (h *DiscoveryHandler) Discover(c *gin.Context) {
	disco := c.Query("disco")
	if disco == "" {
		badRequest(c, "missing disco")
		return
	}

	results, err := h.svc.Discover(c.Request.Context(), disco, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown disco")
			return
		}
		h.logger.Error("discovery", zap.Error(err))
		badRequest(c, "store failure")
		return
	}

	c.JSON(http.StatusOK, results)
}
