package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reserveLine struct {
	ItemID   string  `json:"item_id" binding:"required,uuid"`
	Quantity float64 `json:"quantity" binding:"gt=0"`
}

type reservePayload struct {
	OrderID string        `json:"order_id" binding:"required,uuid"`
	Reason  string        `json:"reason" binding:"omitempty,max=10"`
	Status  string        `json:"status" binding:"omitempty,oneof=pass fail"`
	Items   []reserveLine `json:"items" binding:"required,min=1,dive"`
}

func validationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req reservePayload
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(router, req)
}

func detailsByField(info dto.ErrorInfo) map[string]string {
	out := make(map[string]string, len(info.Details))
	for _, d := range info.Details {
		out[d.Field] = d.Message
	}
	return out
}

func TestHandleValidationError_FieldErrors(t *testing.T) {
	w := postJSON(validationRouter(), `{"order_id":"nope","reason":"far too long a reason","status":"maybe","items":[]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeValidation, info.Code)
	assert.NotEmpty(t, info.RequestID)

	fields := detailsByField(info)
	assert.Equal(t, "Invalid UUID format", fields["order_id"])
	assert.Equal(t, "Must be at most 10 characters", fields["reason"])
	assert.Equal(t, "Must be one of: pass fail", fields["status"])
	assert.Equal(t, "Must contain at least 1 entries", fields["items"])
}

func TestHandleValidationError_NestedLines(t *testing.T) {
	w := postJSON(validationRouter(), `{"order_id":"6f1c2d8e-3b4a-4c5d-9e6f-7a8b9c0d1e2f","items":[{"item_id":"","quantity":0}]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := detailsByField(decodeError(t, w))
	assert.Equal(t, "This field is required", fields["item_id"])
	assert.Equal(t, "Must be greater than 0", fields["quantity"])
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	w := postJSON(validationRouter(), `{"order_id":`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeValidation, info.Code)
	assert.Empty(t, info.Details)
}

func TestHandleValidationError_Valid(t *testing.T) {
	w := postJSON(validationRouter(), `{"order_id":"6f1c2d8e-3b4a-4c5d-9e6f-7a8b9c0d1e2f","items":[{"item_id":"6f1c2d8e-3b4a-4c5d-9e6f-7a8b9c0d1e20","quantity":2}]}`)

	assert.Equal(t, http.StatusOK, w.Code)
}
