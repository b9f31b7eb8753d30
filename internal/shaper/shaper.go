// Package shaper turns a tenant assignment into the claim payload consumed by the
// downstream credential exchange:
//
//	{"principal_tags": {"TenantID": ["acme-1", "globex"]}}
//
// Both keys are fixed. An assignment is accepted whole or rejected whole; identifiers are
// never filtered or truncated.
package shaper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"tenanttags/internal/resolver"
)

const (
	PrincipalTagsKey = "principal_tags"
	TenantIDKey      = "TenantID"
)

// ClaimPayload is an immutable, validated tenant tag set.
type ClaimPayload struct {
	tenantIDs []string
}

// TenantIDs returns a copy of the validated, sorted identifiers.
func (p ClaimPayload) TenantIDs() []string {
	return append([]string{}, p.tenantIDs...)
}

// Empty reports whether the payload carries no tenants.
func (p ClaimPayload) Empty() bool { return len(p.tenantIDs) == 0 }

// Value returns the claim value handed to the token mutation capability. Each call
// returns fresh maps so callers cannot alias the payload.
func (p ClaimPayload) Value() map[string]any {
	return map[string]any{
		PrincipalTagsKey: map[string]any{
			TenantIDKey: p.TenantIDs(),
		},
	}
}

// MarshalJSON encodes Value. Map keys are sorted by encoding/json, so equal payloads
// always encode to identical bytes.
func (p ClaimPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value())
}

type Options struct {
	Pattern    string // matched against the whole identifier
	MaxTenants int
	MaxBytes   int // bound on the encoded payload
}

type Shaper struct {
	pattern    *regexp.Regexp
	maxTenants int
	maxBytes   int
}

func New(opts Options) (*Shaper, error) {
	re, err := regexp.Compile(`^(?:` + opts.Pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("tenant id pattern: %w", err)
	}
	if opts.MaxTenants <= 0 {
		return nil, fmt.Errorf("max tenants must be positive, got %d", opts.MaxTenants)
	}
	if opts.MaxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be positive, got %d", opts.MaxBytes)
	}
	return &Shaper{pattern: re, maxTenants: opts.MaxTenants, maxBytes: opts.MaxBytes}, nil
}

// Shape validates a and builds its payload. It has no side effects.
func (s *Shaper) Shape(a resolver.Assignment) (ClaimPayload, error) {
	ids := make([]string, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	var invalid []string
	for _, id := range a {
		if !s.pattern.MatchString(id) {
			invalid = append(invalid, id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(invalid) > 0 {
		return ClaimPayload{}, newError(CodeInvalidIdentifier, fmt.Errorf("%d identifier(s) rejected: %q", len(invalid), invalid))
	}
	if len(ids) > s.maxTenants {
		return ClaimPayload{}, newError(CodeTooManyTenants, fmt.Errorf("%d tenants, limit %d", len(ids), s.maxTenants))
	}
	sort.Strings(ids)

	p := ClaimPayload{tenantIDs: ids}
	raw, err := p.MarshalJSON()
	if err != nil {
		return ClaimPayload{}, err
	}
	if len(raw) > s.maxBytes {
		return ClaimPayload{}, newError(CodePayloadTooLarge, fmt.Errorf("%d bytes, limit %d", len(raw), s.maxBytes))
	}
	return p, nil
}
