package hook

import (
	"net/http"

	"tenanttags/pkg/openapi"
)

// Describe registers the post-login hook on reg. scope is the caller scope HookAuth enforces.
func Describe(reg *openapi.Registry, scope string) {
	principal := map[string]any{
		"type":     "object",
		"required": []string{"id"},
		"properties": map[string]any{
			"id":         map[string]any{"type": "string"},
			"attributes": map[string]any{"type": "object", "additionalProperties": true},
		},
	}
	op := openapi.Operation{
		Method:      http.MethodPost,
		Path:        PostLoginPath,
		Summary:     "Enrich a login with tenant tags",
		Description: "Resolves the principal's tenants and returns the claim set to merge into the identity token.",
		Tags:        []string{"hooks"},
		RequestBody: openapi.JSONBody("Login event", map[string]any{
			"type":       "object",
			"required":   []string{"principal"},
			"properties": map[string]any{"event_id": map[string]any{"type": "string"}, "principal": principal},
		}),
		Responses: map[string]any{
			"200": openapi.JSONBody("Claims to merge", map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_id": map[string]any{"type": "string"},
					"state":    map[string]any{"type": "string"},
					"claims":   map[string]any{"type": "object"},
					"tenants":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			}),
			"400": openapi.ProblemResponse("Malformed login event"),
			"401": openapi.ProblemResponse("Missing or invalid caller token"),
			"403": openapi.ProblemResponse("Login must be denied"),
			"500": openapi.ProblemResponse("Misconfiguration or internal failure"),
			"503": openapi.ProblemResponse("Tenant source unavailable; retry the event"),
		},
	}
	if scope != "" {
		op.Scopes = []string{scope}
	}
	reg.Register(op)
}
