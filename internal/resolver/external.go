package resolver

import (
	"context"
	"errors"
	"time"

	"tenanttags/pkg/tenants"
)

// ExternalLookup resolves tenants through a principal directory. The lookup is bounded
// by timeout and by the caller's context; whichever ends first cancels the directory call.
type ExternalLookup struct {
	dir     tenants.Directory
	timeout time.Duration
	policy  Policy
}

func NewExternalLookup(dir tenants.Directory, timeout time.Duration, pol Policy) *ExternalLookup {
	return &ExternalLookup{dir: dir, timeout: timeout, policy: pol}
}

type lookupResult struct {
	tenants []string
	err     error
}

func (e *ExternalLookup) Resolve(ctx context.Context, p Principal) (Assignment, error) {
	if p.ID == "" {
		return e.policy.finish(nil)
	}
	lctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// The directory runs on its own goroutine so a backend that ignores ctx still cannot
	// hold the login event past the deadline. The buffered channel lets it exit later.
	done := make(chan lookupResult, 1)
	go func() {
		ts, err := e.dir.TenantsForPrincipal(lctx, p.ID)
		done <- lookupResult{tenants: ts, err: err}
	}()

	select {
	case <-lctx.Done():
		return nil, newError(CodeSourceUnavailable, lctx.Err())
	case r := <-done:
		switch {
		case errors.Is(r.err, tenants.ErrPrincipalNotFound):
			return e.policy.finish(nil)
		case r.err != nil:
			return nil, newError(CodeSourceUnavailable, r.err)
		}
		return e.policy.finish(r.tenants)
	}
}
