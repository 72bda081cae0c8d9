package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/model"
	"github.com/jack/golang-shortlink-service/internal/scheduler"
	"github.com/jack/golang-shortlink-service/internal/service"
	"github.com/jack/golang-shortlink-service/internal/shortcode"
)

// HealthChecker pings one downstream dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	service *service.ShortcodeService
	auth    *service.AuthService
	sweeper *scheduler.ExpirySweeper
	deps    map[string]HealthChecker
	logger  *zap.Logger
}

func NewHandler(
	svc *service.ShortcodeService,
	auth *service.AuthService,
	sweeper *scheduler.ExpirySweeper,
	deps map[string]HealthChecker,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		service: svc,
		auth:    auth,
		sweeper: sweeper,
		deps:    deps,
		logger:  logger,
	}
}

func (h *Handler) CreateShortcode(c *gin.Context) {
	var req model.CreateShortcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	record, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": err.Error(),
			})
		case errors.Is(err, service.ErrCodeUnavailable):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "code_unavailable",
				"message": "The requested shortcode is reserved or already in use",
			})
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "The requested shortcode was claimed by a concurrent request",
			})
		case errors.Is(err, shortcode.ErrExhaustedAttempts):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "generation_exhausted",
				"message": "Could not allocate a shortcode, please retry",
			})
		default:
			h.logger.Error("create shortcode failed", zap.String("ip", c.ClientIP()), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "store_unavailable",
				"message": "Failed to create shortcode",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, model.CreateShortcodeResponse{
		Code:      record.Code,
		ShortLink: h.service.ShortLink(record.Code),
		ExpiresAt: record.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) Redirect(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Shortcode is required",
		})
		return
	}

	reqCtx := model.RequestContext{
		IP:        c.ClientIP(),
		Referrer:  c.GetHeader("Referer"),
		UserAgent: c.GetHeader("User-Agent"),
	}

	targetURL, err := h.service.Resolve(c.Request.Context(), code, reqCtx)
	if err != nil {
		h.respondLookupError(c, code, err, "redirect failed")
		return
	}

	c.Redirect(http.StatusMovedPermanently, targetURL)
}

func (h *Handler) GetStats(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Shortcode is required",
		})
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), code)
	if err != nil {
		h.respondLookupError(c, code, err, "get stats failed")
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) DeleteShortcode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Shortcode is required",
		})
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), code); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Shortcode not found",
			})
			return
		}
		h.logger.Error("delete shortcode failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Failed to delete shortcode",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    shortcode.Normalize(code),
		"deleted": true,
	})
}

func (h *Handler) Sweep(c *gin.Context) {
	count, err := h.sweeper.SweepNow()
	if err != nil {
		h.logger.Error("on-demand sweep failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Failed to sweep expired shortcodes",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deactivated": count,
	})
}

func (h *Handler) IssueToken(c *gin.Context) {
	var req model.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	token, expiresAt, err := h.auth.IssueToken(req.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAPIKey) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Unknown API key",
			})
			return
		}
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, model.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (h *Handler) HealthDetailed(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "healthy"}

	for name, dep := range h.deps {
		if err := dep.Health(c.Request.Context()); err != nil {
			body[name] = "unreachable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "connected"
	}

	c.JSON(status, body)
}

func (h *Handler) respondLookupError(c *gin.Context, code string, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Shortcode not found",
		})
	case errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusGone, gin.H{
			"error":   "expired",
			"message": "This shortcode has expired",
		})
	default:
		h.logger.Error(logMsg, zap.String("code", code), zap.String("ip", c.ClientIP()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Failed to resolve shortcode",
		})
	}
}
