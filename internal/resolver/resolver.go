// Package resolver derives the tenant identifiers a principal may act as.
//
// Each strategy extracts raw candidates from its source; all of them share the same
// normalization (drop blank and non-scalar values, deduplicate, sort ascending) so the
// resulting Assignment is deterministic for a given principal.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"tenanttags/pkg/config"
	"tenanttags/pkg/tenants"
)

// Principal is the authenticated entity of one login event. It is read-only to resolvers.
type Principal struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Assignment is the ordered, duplicate-free tenant list for one principal and event.
type Assignment []string

// Resolver produces the tenant assignment for a principal.
type Resolver interface {
	Resolve(ctx context.Context, p Principal) (Assignment, error)
}

// Policy carries the options every strategy applies after extraction.
type Policy struct {
	AllowTenantless bool
}

// New builds the resolver selected by cfg.TenantSourceStrategy. dir is only consulted by
// the external-lookup strategy and may be nil otherwise.
func New(ctx context.Context, cfg config.Enrichment, dir tenants.Directory) (Resolver, error) {
	pol := Policy{AllowTenantless: cfg.AllowTenantless}
	switch cfg.TenantSourceStrategy {
	case config.StrategyDirectClaim:
		return NewDirectClaim(cfg.SourceAttributes, cfg.SourceExpression, pol)
	case config.StrategyExternalLookup:
		if dir == nil {
			return nil, fmt.Errorf("external-lookup strategy needs a principal directory")
		}
		return NewExternalLookup(dir, cfg.LookupTimeout(), pol), nil
	case config.StrategyRego:
		module, err := os.ReadFile(cfg.RegoFile)
		if err != nil {
			return nil, fmt.Errorf("read rego module: %w", err)
		}
		return NewRego(ctx, cfg.RegoFile, string(module), pol)
	default:
		return nil, fmt.Errorf("unknown tenant source strategy %q", cfg.TenantSourceStrategy)
	}
}

// finish normalizes candidates and applies the tenantless policy.
func (p Policy) finish(cands []string) (Assignment, error) {
	a := Normalize(cands)
	if len(a) == 0 && !p.AllowTenantless {
		return nil, newError(CodeNoTenant, nil)
	}
	return a, nil
}

// Normalize drops blank entries, removes duplicates and sorts ascending. Values are
// otherwise left untouched; pattern validation happens when the claim is shaped.
func Normalize(cands []string) Assignment {
	seen := make(map[string]struct{}, len(cands))
	out := make(Assignment, 0, len(cands))
	for _, c := range cands {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// candidates flattens a source value into string candidates. Strings and integral
// numbers are accepted; maps, booleans, nulls and fractional numbers are malformed and
// dropped. Arrays are flattened one level.
func candidates(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		var out []string
		for _, it := range t {
			if s, ok := scalar(it); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalar(v); ok {
			return []string{s}
		}
		return nil
	}
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		if t != float64(int64(t)) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(i, 10), true
	default:
		return "", false
	}
}
