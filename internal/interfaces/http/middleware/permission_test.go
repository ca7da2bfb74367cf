package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func capabilityRouter(actor *identity.Actor, capability identity.Capability) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), func(c *gin.Context) {
		if actor != nil {
			c.Set(ActorKey, *actor)
		}
		c.Next()
	})
	router.POST("/test", RequireCapability(capability), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestRequireCapability(t *testing.T) {
	manager := identity.NewActor("u-1", "manager", "stock:manage")
	inspector := identity.NewActor("u-2", "inspector", "qc:inspect")
	admin := identity.NewActor("u-3", "admin", "*")

	tests := []struct {
		name       string
		actor      *identity.Actor
		capability identity.Capability
		wantStatus int
	}{
		{"holder passes", &manager, identity.CapabilityStockManage, http.StatusOK},
		{"wildcard passes", &admin, identity.CapabilityQCRelease, http.StatusOK},
		{"other capability rejected", &inspector, identity.CapabilityStockManage, http.StatusForbidden},
		{"no actor rejected", nil, identity.CapabilityQCInspect, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(capabilityRouter(tt.actor, tt.capability), httptest.NewRequest(http.MethodPost, "/test", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				info := decodeError(t, w)
				assert.Equal(t, shared.CodeUnauthorized, info.Code)
				assert.Contains(t, info.Message, string(tt.capability))
			}
		})
	}
}

func TestHasCapability(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ActorKey, identity.NewActor("u-1", "qc", "qc:release"))

	assert.True(t, HasCapability(c, identity.CapabilityQCRelease))
	assert.False(t, HasCapability(c, identity.CapabilityQCInspect))
}
