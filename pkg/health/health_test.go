package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus Status
		wantCode   int
	}{
		{
			name:       "no checkers",
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "all healthy",
			checkers: []Checker{
				NewFuncChecker("eventbus", func(context.Context) error { return nil }),
			},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "one failing",
			checkers: []Checker{
				NewFuncChecker("eventbus", func(context.Context) error { return nil }),
				NewFuncChecker("redis", func(context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: StatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewCheckerRegistry("router-service")
			for _, c := range tt.checkers {
				reg.Register(c)
			}

			r := gin.New()
			r.GET("/health", reg.Handler())
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var h Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
			assert.Equal(t, tt.wantStatus, h.Status)
			assert.Equal(t, "router-service", h.Service)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}
