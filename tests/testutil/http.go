package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/stockengine/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serve runs req through handler and returns the recording
func Serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// DecodeResponse parses the standard response envelope
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to parse response: %s", w.Body.String())
	return resp
}

// DecodeData parses the envelope's data field into T
func DecodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "Failed to parse response: %s", w.Body.String())

	var result T
	require.NoError(t, json.Unmarshal(envelope.Data, &result), "Failed to parse data: %s", envelope.Data)
	return result
}

// AssertSuccessResponse asserts a successful envelope with the given status
func AssertSuccessResponse(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()

	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	assert.True(t, resp.Success, "Expected success to be true")
	assert.Nil(t, resp.Error, "Expected no error")
}

// AssertErrorResponse asserts an error envelope with the given status and code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	assert.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	assert.False(t, resp.Success, "Expected success to be false")
	require.NotNil(t, resp.Error, "Expected error object in response")
	assert.Equal(t, code, resp.Error.Code, "Unexpected error code")
}

// ToJSONReader converts a value to a JSON io.Reader.
func ToJSONReader(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal to JSON")
	return bytes.NewReader(data)
}
