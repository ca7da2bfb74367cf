package middleware

import (
	"net/http"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	Logger *zap.Logger
}

// RequireCapability rejects requests whose actor lacks capability. The stock
// service enforces the same check; this middleware answers early with 403.
func RequireCapability(capability identity.Capability) gin.HandlerFunc {
	return RequireCapabilityWithConfig(PermissionConfig{}, capability)
}

// RequireCapabilityWithConfig is RequireCapability with custom config
func RequireCapabilityWithConfig(cfg PermissionConfig, capability identity.Capability) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		actor := GetActor(c)
		if actor.Can(capability) {
			c.Next()
			return
		}

		log.Warn("Capability check failed",
			zap.String("actor_id", actor.ID),
			zap.String("capability", string(capability)),
			zap.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
			shared.CodeUnauthorized,
			"Actor lacks the "+string(capability)+" capability",
			GetRequestID(c),
		))
	}
}

// HasCapability reports whether the request's actor holds capability
func HasCapability(c *gin.Context, capability identity.Capability) bool {
	return GetActor(c).Can(capability)
}
