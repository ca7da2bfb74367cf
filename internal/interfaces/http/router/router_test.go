package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	g := NewDomainGroup("stock", "/stock")
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.Register(g)
	r.Setup()

	w := serve(engine, http.MethodGet, "/api/v1/stock/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterUseAppliesToAPIGroupOnly(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "up") })

	r := NewRouter(engine)
	r.Use(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})
	r.Register(NewDomainGroup("stock", "/stock").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") }))
	r.Setup()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/stock/ping").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("stock", "/stock")
		assert.Equal(t, "stock", g.Name())
		assert.Equal(t, "/stock", g.Prefix())
	})

	t.Run("routes and group middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("stock", "/stock")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/a", func(c *gin.Context) { c.String(http.StatusOK, "a") }).
			POST("/b", func(c *gin.Context) { c.String(http.StatusCreated, "b") }).
			PUT("/c/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/stock/a")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))

		assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/stock/b").Code)

		w = serve(engine, http.MethodPut, "/api/v1/stock/c/42")
		assert.Equal(t, "42", w.Body.String())
	})

	t.Run("subgroups with empty relative paths", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("stock", "/stock")
		g.Group("batches", "/batches").
			POST("", func(c *gin.Context) { c.String(http.StatusCreated, "received") }).
			POST("/:batch_id/release", func(c *gin.Context) { c.String(http.StatusOK, c.Param("batch_id")) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/stock/batches").Code)
		w := serve(engine, http.MethodPost, "/api/v1/stock/batches/b-1/release")
		assert.Equal(t, "b-1", w.Body.String())
	})
}
