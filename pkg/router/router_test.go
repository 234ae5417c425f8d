package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func named(name string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(name))
	}
}

func TestRouter_Dispatch(t *testing.T) {
	r := New(nil)
	r.POST("/api/v1/runs", named("create"))
	r.GET("/api/v1/runs", named("list"))
	r.GET("/api/v1/runs/*/errors", named("errors"))
	r.GET("/api/v1/runs/*/progress", named("progress"))
	r.GET("/api/v1/runs/*", named("get"))
	r.DELETE("/api/v1/runs/*", named("delete"))

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{http.MethodPost, "/api/v1/runs", http.StatusOK, "create"},
		{http.MethodGet, "/api/v1/runs", http.StatusOK, "list"},
		{http.MethodGet, "/api/v1/runs/abc/errors", http.StatusOK, "errors"},
		{http.MethodGet, "/api/v1/runs/abc/progress", http.StatusOK, "progress"},
		{http.MethodGet, "/api/v1/runs/abc", http.StatusOK, "get"},
		{http.MethodDelete, "/api/v1/runs/abc", http.StatusOK, "delete"},
		{http.MethodPut, "/api/v1/runs", http.StatusMethodNotAllowed, ""},
		{http.MethodPost, "/api/v1/runs/abc/errors", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/v2/runs", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestMatchWildcardRoute(t *testing.T) {
	assert.True(t, matchWildcardRoute("/a/b/c", "/a/*/c"))
	assert.False(t, matchWildcardRoute("/a/b/d", "/a/*/c"))
	assert.False(t, matchWildcardRoute("/a//c", "/a/*/c"))
	assert.True(t, matchWildcardRoute("/swagger/index.html", "/swagger/*"))
	assert.True(t, matchWildcardRoute("/swagger/a/b.js", "/swagger/*"))
	assert.False(t, matchWildcardRoute("/swagger", "/swagger/*"))
}
