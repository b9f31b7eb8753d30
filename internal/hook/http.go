// Package hook exposes the enrichment orchestrator as the post-login webhook the
// identity platform calls before issuing a token.
package hook

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenanttags/internal/enrichment"
	"tenanttags/internal/resolver"
	"tenanttags/internal/shaper"
	"tenanttags/internal/token"
	"tenanttags/pkg/middleware"
	"tenanttags/pkg/problems"
)

const maxBodyBytes = 64 << 10

// PostLoginPath is the route the identity platform is configured to call.
const PostLoginPath = "/v1/hooks/post-login"

type postLoginRequest struct {
	EventID   string             `json:"event_id"`
	Principal resolver.Principal `json:"principal"`
}

type postLoginResponse struct {
	EventID string         `json:"event_id"`
	State   string         `json:"state"`
	Claims  map[string]any `json:"claims"`
	Tenants []string       `json:"tenants"`
}

var titles = map[string]string{
	string(resolver.CodeNoTenant):          "No tenant for principal",
	string(resolver.CodeSourceUnavailable): "Tenant source unavailable",
	string(resolver.CodeInvalidSource):     "Tenant source misconfigured",
	string(shaper.CodeInvalidIdentifier):   "Invalid tenant identifier",
	string(shaper.CodeTooManyTenants):      "Too many tenants",
	string(shaper.CodePayloadTooLarge):     "Tenant claim too large",
	enrichment.ReasonCanceled:              "Login event cancelled",
	enrichment.ReasonWriteFailed:           "Claim write failed",
	enrichment.ReasonInternal:              "Enrichment failed",
}

// StatusFor maps a failure reason to the HTTP status returned to the identity platform.
// Principal-specific failures are 403 so the platform denies the login; transient ones are
// 503 so it may retry the whole event.
func StatusFor(reason string) int {
	switch reason {
	case string(resolver.CodeNoTenant), string(shaper.CodeInvalidIdentifier),
		string(shaper.CodeTooManyTenants), string(shaper.CodePayloadTooLarge):
		return http.StatusForbidden
	case string(resolver.CodeSourceUnavailable), enrichment.ReasonCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RegisterHTTP mounts the post-login hook.
// POST /v1/hooks/post-login  body: { event_id?, principal: { id, attributes } }
func RegisterHTTP(r chi.Router, o *enrichment.Orchestrator, log *zap.SugaredLogger) {
	r.Post(PostLoginPath, func(w http.ResponseWriter, req *http.Request) {
		var body postLoginRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			log.Warnw("malformed login event", "err", err)
			writeProblem(w, problems.New("bad-request", "Malformed login event", http.StatusBadRequest, err.Error()))
			return
		}
		if strings.TrimSpace(body.EventID) == "" {
			body.EventID = uuid.NewString()
		}

		ctx := req.Context()
		log.Debugw("post-login", "event_id", body.EventID,
			"caller", middleware.CallerFrom(ctx), "scopes", middleware.ScopesFrom(ctx))

		rec := token.NewRecorder()
		res := o.OnLogin(ctx, enrichment.LoginEvent{ID: body.EventID, Principal: body.Principal}, rec)
		if !res.OK() {
			title, ok := titles[res.Reason]
			if !ok {
				title = titles[enrichment.ReasonInternal]
			}
			p := problems.New(res.Reason, title, StatusFor(res.Reason), detail(res))
			p.EventID = res.EventID
			writeProblem(w, p)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(postLoginResponse{
			EventID: res.EventID,
			State:   string(res.State),
			Claims:  rec.Claims(),
			Tenants: res.Payload.TenantIDs(),
		})
	})
}

// detail keeps internal errors out of responses; only the message of typed failures is shown.
func detail(res enrichment.Result) string {
	switch res.Reason {
	case string(shaper.CodeInvalidIdentifier), string(shaper.CodeTooManyTenants), string(shaper.CodePayloadTooLarge):
		if res.Err != nil {
			return res.Err.Error()
		}
	}
	return ""
}

func writeProblem(w http.ResponseWriter, p problems.Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
