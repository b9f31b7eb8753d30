package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tenanttags/internal/enrichment"
	"tenanttags/internal/resolver"
	"tenanttags/internal/shaper"
	"tenanttags/pkg/config"
	"tenanttags/pkg/middleware"
	"tenanttags/pkg/tenants"
)

func newRouter(t *testing.T, r resolver.Resolver) http.Handler {
	t.Helper()
	s, err := shaper.New(shaper.Options{Pattern: config.DefaultTenantIDPattern, MaxTenants: 2, MaxBytes: 2048})
	require.NoError(t, err)
	router := chi.NewRouter()
	RegisterHTTP(router, enrichment.New(r, s, config.DefaultClaimNamespace), zap.NewNop().Sugar())
	return router
}

func directRouter(t *testing.T) http.Handler {
	t.Helper()
	r, err := resolver.NewDirectClaim([]string{"org", "orgs"}, "", resolver.Policy{})
	require.NoError(t, err)
	return newRouter(t, r)
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, PostLoginPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostLogin_Success(t *testing.T) {
	rec := post(directRouter(t), `{"event_id":"e1","principal":{"id":"auth0|u1","attributes":{"org":"acme-1"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.JSONEq(t, `{
		"event_id": "e1",
		"state": "DONE",
		"claims": {"https://aws.amazon.com/tags": {"principal_tags": {"TenantID": ["acme-1"]}}},
		"tenants": ["acme-1"]
	}`, rec.Body.String())
}

func TestPostLogin_GeneratesEventID(t *testing.T) {
	rec := post(directRouter(t), `{"principal":{"id":"u1","attributes":{"org":"acme-1"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body postLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.EventID)
}

func TestPostLogin_NumericOrgAttribute(t *testing.T) {
	rec := post(directRouter(t), `{"principal":{"id":"u1","attributes":{"org":12345678901234567}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"tenants":["12345678901234567"]`)
}

func TestPostLogin_FractionalOrgAttributeIsDropped(t *testing.T) {
	rec := post(directRouter(t), `{"principal":{"id":"u1","attributes":{"org":1.5,"orgs":[1e3]}}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reason":"no_tenant"`)
}

func TestPostLogin_CommaSeparatedOrgWithSpaces(t *testing.T) {
	rec := post(directRouter(t), `{"principal":{"id":"u1","attributes":{"org":"acme-1, globex"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"tenants":["acme-1","globex"]`)
}

func TestPostLogin_Failures(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"no tenant", `{"principal":{"id":"u1","attributes":{}}}`, http.StatusForbidden, "no_tenant"},
		{"invalid identifier", `{"principal":{"id":"u1","attributes":{"orgs":["acme-1","bad id"]}}}`, http.StatusForbidden, "invalid_identifier"},
		{"too many", `{"principal":{"id":"u1","attributes":{"orgs":["a","b","c"]}}}`, http.StatusForbidden, "too_many_tenants"},
	}
	h := directRouter(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(h, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var p map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tc.reason, p["reason"])
			assert.NotContains(t, p, "claims")
		})
	}
}

func TestPostLogin_SourceUnavailable(t *testing.T) {
	dir := tenants.DirectoryFunc(func(ctx context.Context, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newRouter(t, resolver.NewExternalLookup(dir, 10*time.Millisecond, resolver.Policy{}))

	rec := post(h, `{"principal":{"id":"u1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"source_unavailable"`)
}

func TestPostLogin_MalformedBody(t *testing.T) {
	rec := post(directRouter(t), `{"principal":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostLogin_LogsCallerScopes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r, err := resolver.NewDirectClaim([]string{"org"}, "", resolver.Policy{})
	require.NoError(t, err)
	s, err := shaper.New(shaper.Options{Pattern: config.DefaultTenantIDPattern, MaxTenants: 2, MaxBytes: 2048})
	require.NoError(t, err)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithScopes(req.Context(), []string{"hooks:post-login"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	RegisterHTTP(router, enrichment.New(r, s, config.DefaultClaimNamespace), zap.New(core).Sugar())

	rec := post(router, `{"event_id":"e9","principal":{"id":"u1","attributes":{"org":"acme-1"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := logs.FilterMessage("post-login").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "e9", entries[0].ContextMap()["event_id"])
	assert.Equal(t, []interface{}{"hooks:post-login"}, entries[0].ContextMap()["scopes"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusFor("no_tenant"))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor("canceled"))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("write_failed"))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("something-else"))
}
