package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/api/middleware"
	"github.com/slye-labs/slye-backend/pkg/auth"
	"github.com/slye-labs/slye-backend/pkg/config"
	"github.com/slye-labs/slye-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecret: "secret", Audience: "authenticated", CookieName: "slye-access-token"}
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func withAccessCookie(t *testing.T, req *http.Request, userID uuid.UUID) *http.Request {
	t.Helper()
	cfg := testAuthConfig()
	token, err := auth.MintAccessToken(cfg, time.Now(), userID, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: cfg.CookieName, Value: token})
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
