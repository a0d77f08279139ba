package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fixedValidator []string

func (f fixedValidator) Validate() []string { return f }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		cfg    ConfigValidator
		code   int
		status string
	}{
		{"no config", nil, http.StatusOK, "ok"},
		{"valid config", fixedValidator(nil), http.StatusOK, "ok"},
		{"invalid config", fixedValidator{"security.secret must not be empty"}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", HealthHandler(tt.cfg))

			req, _ := http.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			var resp map[string]string
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp["status"])
			assert.NotEmpty(t, resp["version"])
		})
	}
}
