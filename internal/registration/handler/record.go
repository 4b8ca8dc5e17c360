package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/service"
)

// RecordHandler handles HTTP requests for the record lifecycle.
//
// The wire protocol is GET with query parameters, matching the clients in the
// field; the token is the sole credential for every mutating call.
type RecordHandler struct {
	svc    *service.RecordService
	logger *zap.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(svc *service.RecordService, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{svc: svc, logger: logger}
}

// Register mounts the record lifecycle routes on the given router group.
func (h *RecordHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/subscribe", h.Subscribe)
	rg.GET("/register", h.RegisterRecord)
	rg.GET("/dnsconfig", h.DNSConfig)
	rg.GET("/unsubscribe", h.Unsubscribe)
	rg.GET("/info", h.Info)
}

// Subscribe handles GET /subscribe?name=...&desc=...
func (h *RecordHandler) Subscribe(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		badRequest(c, "missing name")
		return
	}

	nt, err := h.svc.Subscribe(c.Request.Context(), name, c.Query("desc"))
	if err != nil {
		if errors.Is(err, service.ErrNameUnavailable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "UnavailableName"})
			return
		}
		h.logger.Error("subscribe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.JSON(http.StatusOK, nt)
}

// RegisterRecord handles GET /register?token=...&local_ip=...
// The public IP is taken from the connection, not from a parameter.
func (h *RecordHandler) RegisterRecord(c *gin.Context) {
	token := c.Query("token")
	localIP := c.Query("local_ip")
	if token == "" || localIP == "" {
		badRequest(c, "missing token or local_ip")
		return
	}

	err := h.svc.Register(c.Request.Context(), token, localIP, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token")
			return
		}
		h.logger.Error("register", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.Status(http.StatusOK)
}

// DNSConfig handles GET /dnsconfig?token=...&challenge=...
func (h *RecordHandler) DNSConfig(c *gin.Context) {
	token := c.Query("token")
	challenge := c.Query("challenge")
	if token == "" || challenge == "" {
		badRequest(c, "missing token or challenge")
		return
	}

	err := h.svc.SetDNSConfig(c.Request.Context(), token, challenge)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token")
			return
		}
		h.logger.Error("dnsconfig", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.Status(http.StatusOK)
}

// Unsubscribe handles GET /unsubscribe?token=...
func (h *RecordHandler) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, "missing token")
		return
	}

	err := h.svc.Unsubscribe(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token")
			return
		}
		h.logger.Error("unsubscribe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.Status(http.StatusOK)
}

// Info handles GET /info?token=... and returns the full record.
func (h *RecordHandler) Info(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		badRequest(c, "missing token")
		return
	}

	rec, err := h.svc.Info(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			badRequest(c, "unknown token")
			return
		}
		h.logger.Error("info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failure"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// badRequest writes a 400 with an error body.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
