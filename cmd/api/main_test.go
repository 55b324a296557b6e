package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaufCode/venella-pharmacy/internal/config"
	"github.com/RaufCode/venella-pharmacy/internal/dbtest"
	"github.com/RaufCode/venella-pharmacy/internal/handlers"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
	"github.com/RaufCode/venella-pharmacy/internal/payments"
	"github.com/RaufCode/venella-pharmacy/internal/schema"
)

func TestSetupRouter_HealthAndCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb := dbtest.Open(t, schema.Models()...)
	cfg := config.Config{CORSAllowedOrigins: []string{"https://shop.example.com"}}
	r := setupRouter(cfg, handlers.Config{
		DB:        gdb,
		JWTSecret: "s",
		Sink:      notifications.NewStore(gdb),
		Gateway:   payments.NewPaystack("http://127.0.0.1:1", "sk", 0),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/orders/create/", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuildSinks_DefaultsToDatabase(t *testing.T) {
	gdb := dbtest.Open(t, schema.Models()...)
	hub := notifications.NewHub()

	sinks, cleanup := buildSinks(config.Config{NotifyTransport: "sqs"}, gdb, nil, hub)
	defer cleanup()
	require.Len(t, sinks, 2)
	_, isStore := sinks[1].(*notifications.Store)
	assert.True(t, isStore)

	n := notifications.ForStaff(notifications.TypeSystemAlert, "maintenance tonight")
	require.NoError(t, sinks.Notify(context.Background(), n))
	got, err := notifications.NewStore(gdb).ListStaff(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCORSConfig_Wildcard(t *testing.T) {
	c := corsConfig([]string{"*"})
	assert.True(t, c.AllowAllOrigins)
	assert.Empty(t, c.AllowOrigins)
	assert.False(t, c.AllowCredentials)

	c = corsConfig([]string{"https://a.example.com"})
	assert.False(t, c.AllowAllOrigins)
	assert.True(t, c.AllowCredentials)
}
