package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]Pinger
		want   int
	}{
		{"all up", map[string]Pinger{"database": up, "redis": up}, http.StatusOK},
		{"redis down", map[string]Pinger{"database": up, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHandler(tt.checks).RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.want, w.Code)

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
