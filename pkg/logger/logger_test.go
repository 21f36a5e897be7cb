package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sitecms-api/pkg/config"
	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
	"github.com/noah-isme/sitecms-api/pkg/middleware/requestid"
	"github.com/noah-isme/sitecms-api/pkg/response"
)

func TestGinMiddlewareLogsActionAndErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	router := gin.New()
	router.Use(requestid.Middleware(), GinMiddleware(zap.New(core)))
	router.GET("/contact", func(c *gin.Context) {
		if c.Query("action") == "stats" {
			response.JSON(c, http.StatusOK, gin.H{"total": 1})
			return
		}
		response.Error(c, appErrors.Storage(errors.New("disk full")))
	})

	req := httptest.NewRequest(http.MethodGet, "/contact?action=view&id=x", nil)
	req.Header.Set(requestid.HeaderKey, "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/contact?action=stats", nil))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	failed := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, failed.Level)
	assert.Equal(t, "http", failed.LoggerName)
	fields := failed.ContextMap()
	assert.Equal(t, "/contact", fields["route"])
	assert.Equal(t, "view", fields["action"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "STORAGE_ERROR", fields["error_code"])
	assert.Contains(t, fields["error"], "disk full")

	ok := entries[1]
	assert.Equal(t, zapcore.InfoLevel, ok.Level)
	assert.Equal(t, "stats", ok.ContextMap()["action"])
	assert.NotContains(t, ok.ContextMap(), "error_code")
}

func TestWithContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContext(requestid.NewContext(context.Background(), "req-9"), base).Info("tagged")
	WithContext(context.Background(), base).Info("plain")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "loud", Format: "console"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))

	l, err = New(&config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Level: "debug"}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
