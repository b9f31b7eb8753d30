// Package token implements the token-mutation capability the enrichment pipeline writes
// through: an in-memory recorder for hook responses and a jwx-backed token for hosts
// that assemble identity tokens in-process.
package token

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"tenanttags/pkg/config"
)

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("custom claim key is empty")
	}
	if config.IsReservedClaim(key) {
		return fmt.Errorf("custom claim key %q is a registered claim", key)
	}
	return nil
}

// Recorder collects custom claims in memory. Setting a key again replaces its value.
type Recorder struct {
	mu     sync.Mutex
	claims map[string]any
	writes int
}

func NewRecorder() *Recorder {
	return &Recorder{claims: map[string]any{}}
}

func (r *Recorder) SetCustomClaim(key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims[key] = value
	r.writes++
	return nil
}

// Claims returns a shallow copy of the recorded claims.
func (r *Recorder) Claims() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.claims))
	for k, v := range r.claims {
		out[k] = v
	}
	return out
}

// Writes counts SetCustomClaim calls that were accepted.
func (r *Recorder) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// JWT writes custom claims onto an unsigned jwx token.
type JWT struct {
	tok jwt.Token
}

func NewJWT(tok jwt.Token) *JWT { return &JWT{tok: tok} }

func (j *JWT) SetCustomClaim(key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := j.tok.Set(key, value); err != nil {
		return fmt.Errorf("set claim %q: %w", key, err)
	}
	return nil
}

// Token returns the underlying token for signing by the host.
func (j *JWT) Token() jwt.Token { return j.tok }
