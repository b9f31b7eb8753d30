package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Description string
	Tags        []string
	Scopes      []string
	RequestBody any
	Responses   map[string]any
}

// Registry collects the operations a service exposes.
type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	op.Method = strings.ToLower(op.Method)
	r.Ops = append(r.Ops, op)
}

// Build produces an OpenAPI 3.1 document for the registered operations. Callers
// authenticate with a bearer JWT; the scopes each operation needs are listed under
// x-required-scopes.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	scopes := map[string]string{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"responses": op.Responses,
		}
		if op.Description != "" {
			m["description"] = op.Description
		}
		if len(op.Tags) > 0 {
			m["tags"] = op.Tags
		}
		if len(op.Scopes) > 0 {
			sorted := append([]string(nil), op.Scopes...)
			sort.Strings(sorted)
			m["x-required-scopes"] = sorted
			for _, s := range sorted {
				scopes[s] = op.Summary
			}
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
					"x-scopes":     scopes,
				},
			},
		},
		"security": []map[string]any{{"bearer": []string{}}},
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	doc := r.Build(serviceName, version)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

// JSONBody is a shorthand for an application/json request or response body with an inline
// schema.
func JSONBody(description string, schema map[string]any) map[string]any {
	return map[string]any{
		"description": description,
		"content":     map[string]any{"application/json": map[string]any{"schema": schema}},
	}
}

// ProblemResponse describes an RFC 7807 error response.
func ProblemResponse(description string) map[string]any {
	return map[string]any{
		"description": description,
		"content": map[string]any{"application/problem+json": map[string]any{"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":     map[string]any{"type": "string"},
				"title":    map[string]any{"type": "string"},
				"status":   map[string]any{"type": "integer"},
				"detail":   map[string]any{"type": "string"},
				"reason":   map[string]any{"type": "string"},
				"event_id": map[string]any{"type": "string"},
			},
		}}},
	}
}
