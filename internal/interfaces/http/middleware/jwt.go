package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/infrastructure/auth"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	JWTUserIDKey  = "jwt_user_id"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// JWTService is required for token validation
	JWTService *auth.JWTService
	// Revocations is optional; nil skips the revocation check
	Revocations auth.RevocationList
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health", "/api/v1/health"},
	}
}

// JWTAuthMiddleware creates JWT authentication middleware
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig verifies the bearer token and stores the claims
// and the derived identity.Actor in the gin context
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip {
				c.Next()
				return
			}
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			abortUnauthenticated(c, log, nil, dto.ErrCodeUnauthenticated, "Missing or malformed authorization header")
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			code, message := tokenErrorCode(err)
			abortUnauthenticated(c, log, err, code, message)
			return
		}

		if err := auth.CheckRevoked(c.Request.Context(), cfg.Revocations, claims); err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				abortUnauthenticated(c, log, err, dto.ErrCodeTokenRevoked, "Token has been revoked")
				return
			}
			// The revocation store being down must not lock every caller out
			log.Error("Failed to check token revocation",
				zap.String("jti", claims.ID),
				zap.String("user_id", claims.UserID),
				zap.Error(err),
			)
		}

		actor := claims.Actor()
		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(ActorKey, actor)

		ctx, _ := logger.WithActorID(c.Request.Context(), logger.FromContext(c.Request.Context()), actor.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(AuthHeaderKey)
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

func tokenErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return dto.ErrCodeTokenNotYet, "Token is not yet valid"
	default:
		return dto.ErrCodeTokenInvalid, "Invalid token"
	}
}

func abortUnauthenticated(c *gin.Context, log *zap.Logger, err error, code, message string) {
	log.Warn("JWT authentication failed",
		zap.String("code", code),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID retrieves the user ID from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetActor returns the authenticated actor. Unauthenticated requests get the
// zero Actor, which holds no capability.
func GetActor(c *gin.Context) identity.Actor {
	if v, exists := c.Get(ActorKey); exists {
		if actor, ok := v.(identity.Actor); ok {
			return actor
		}
	}
	return identity.Actor{}
}
