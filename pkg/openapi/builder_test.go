package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Operation{
		Method:    "POST",
		Path:      "/v1/hooks/post-login",
		Summary:   "hook",
		Scopes:    []string{"hooks:post-login"},
		Responses: map[string]any{"200": JSONBody("ok", map[string]any{"type": "object"})},
	})
	doc := reg.Build("svc", "1")

	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	post := paths["/v1/hooks/post-login"].(map[string]any)["post"].(map[string]any)
	assert.Equal(t, []string{"hooks:post-login"}, post["x-required-scopes"])
	assert.NotContains(t, post, "requestBody")
}

func TestServeHandler(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Operation{Method: "get", Path: "/healthz", Summary: "health", Responses: map[string]any{}})

	rr := httptest.NewRecorder()
	reg.ServeHandler("svc", "1")(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "svc", doc["info"].(map[string]any)["title"])
}
