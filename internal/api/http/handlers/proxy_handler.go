package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/auth"
	"github.com/sail-program/sail-gateway/internal/querycache"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

// HeaderCache tells the browser whether a response came from the cache.
const HeaderCache = "X-Cache"

// ProxyHandler forwards collaborator API calls upstream with the session's
// access token.
type ProxyHandler struct {
	upstream   string
	mountPoint string
	timeout    time.Duration
	store      tokenstore.Store
	cache      querycache.Cache
	logger     *zap.Logger
}

// ProxyConfig configures the proxy.
type ProxyConfig struct {
	Upstream   string
	MountPoint string
	Timeout    time.Duration
}

// NewProxyHandler constructs handler. cache may be nil.
func NewProxyHandler(cfg ProxyConfig, store tokenstore.Store, cache querycache.Cache, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ProxyHandler{
		upstream:   strings.TrimRight(cfg.Upstream, "/"),
		mountPoint: strings.TrimRight(cfg.MountPoint, "/"),
		timeout:    cfg.Timeout,
		store:      store,
		cache:      cache,
		logger:     logger,
	}
}

// Forward handles ANY /api/*.
func (h *ProxyHandler) Forward(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ctx := c.UserContext()

	// The guard may have just refreshed the token; read the stored one.
	cred, err := h.store.Load(ctx, principal.SessionID)
	if errors.Is(err, tokenstore.ErrNoCredential) {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	target := strings.TrimPrefix(c.OriginalURL(), h.mountPoint)
	cacheable := c.Method() == fiber.MethodGet && h.cache != nil

	if cacheable {
		entry, hit, err := h.cache.Get(ctx, principal.SessionID, target)
		if err != nil {
			h.logger.Warn("query cache read", zap.Error(err))
		}
		if hit {
			c.Set(HeaderCache, "HIT")
			if entry.ContentType != "" {
				c.Set(fiber.HeaderContentType, entry.ContentType)
			}
			return c.Status(entry.Status).Send(entry.Body)
		}
	}

	c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+cred.AccessToken)
	c.Request().Header.Del(fiber.HeaderCookie)
	if err := proxy.DoTimeout(c, h.upstream+target, h.timeout); err != nil {
		return apperrors.NewBadGateway("upstream api unavailable", err)
	}
	c.Response().Header.Del(fiber.HeaderSetCookie)
	status := c.Response().StatusCode()

	switch {
	case cacheable && status == fiber.StatusOK:
		c.Set(HeaderCache, "MISS")
		entry := querycache.Entry{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := h.cache.Set(ctx, principal.SessionID, target, entry); err != nil {
			h.logger.Warn("query cache write", zap.Error(err))
		}
	case h.cache != nil && isWrite(c.Method()) && status >= 200 && status < 300:
		// A write upstream makes cached reads of this session stale.
		if err := h.cache.Invalidate(ctx, principal.SessionID); err != nil {
			h.logger.Warn("query cache invalidate", zap.Error(err))
		}
	}
	return nil
}

func isWrite(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}
