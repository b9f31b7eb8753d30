// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tenanttags/pkg/config"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

const callerClockSkew = 30 * time.Second

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

// HookAuth authenticates the identity platform calling the post-login hook. The caller
// presents a bearer JWT signed by a key from HOOK_JWKS_URL carrying the configured scope.
// In dev, requests without Authorization pass through to ease local bring-up.
func HookAuth(cfg config.Config, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	issuer := strings.TrimRight(cfg.Hook.Issuer, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if cfg.Env == "dev" && strings.TrimSpace(authz) == "" {
				next.ServeHTTP(w, r)
				return
			}
			if issuer == "" || cfg.Hook.JWKSURL == "" {
				http.Error(w, "auth not configured", http.StatusInternalServerError)
				return
			}
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.Hook.JWKSURL, jwksTTL)
			if err != nil {
				log.Errorw("jwks fetch", "url", cfg.Hook.JWKSURL, "err", err)
				http.Error(w, "jwks fetch failed", http.StatusInternalServerError)
				return
			}

			parseOpts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithIssuer(issuer), jwt.WithValidate(true), jwt.WithVerify(true), jwt.WithAcceptableSkew(callerClockSkew)}
			if cfg.Hook.Audience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.Hook.Audience))
			}
			jt, perr := jwt.Parse([]byte(raw), parseOpts...)
			if perr != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			scopes := tokenScopes(jt)
			if req := cfg.Hook.RequiredScope; req != "" && !containsScope(scopes, req) {
				http.Error(w, "insufficient_scope", http.StatusForbidden)
				return
			}
			ctx := WithScopes(r.Context(), scopes)
			ctx = context.WithValue(ctx, ctxCallerKey{}, jt.Subject())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxCallerKey struct{}

// CallerFrom returns the subject of the authenticated hook caller, if any.
func CallerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxCallerKey{}).(string); ok {
		return v
	}
	return ""
}

// tokenScopes reads "scope" (space separated) and "scp" (array) claims.
func tokenScopes(jt jwt.Token) []string {
	var scopes []string
	if sc, ok := jt.Get("scope"); ok {
		if s, ok := sc.(string); ok {
			scopes = append(scopes, strings.Fields(s)...)
		}
	}
	if scp, ok := jt.Get("scp"); ok {
		if arr, ok := scp.([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					scopes = append(scopes, s)
				}
			}
		}
	}
	return scopes
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
