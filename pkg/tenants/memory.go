// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

type memDirectory struct {
	byPrincipal map[string][]string
}

// NewMemoryDirectory returns a read-only directory over a copy of m.
func NewMemoryDirectory(m map[string][]string) Directory {
	d := &memDirectory{byPrincipal: make(map[string][]string, len(m))}
	for k, v := range m {
		d.byPrincipal[k] = append([]string(nil), v...)
	}
	return d
}

// ParseSeed decodes a PRINCIPAL_TENANTS_JSON document:
//
//	{"auth0|abc": ["acme-1"], "auth0|def": ["acme-1", "globex"]}
func ParseSeed(seed string) (map[string][]string, error) {
	m := map[string][]string{}
	if seed == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(seed), &m); err != nil {
		return nil, fmt.Errorf("principal seed: %w", err)
	}
	return m, nil
}

// NewMemoryDirectoryFromSeed builds a dev directory from PRINCIPAL_TENANTS_JSON. A malformed
// seed is logged and yields an empty directory.
func NewMemoryDirectoryFromSeed(seed string, log *zap.SugaredLogger) Directory {
	m, err := ParseSeed(seed)
	if err != nil {
		log.Warnw("ignoring principal seed", "err", err)
		m = map[string][]string{}
	}
	log.Infow("memory principal directory", "principals", len(m))
	return NewMemoryDirectory(m)
}

func (d *memDirectory) TenantsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts, ok := d.byPrincipal[principalID]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return append([]string(nil), ts...), nil
}
