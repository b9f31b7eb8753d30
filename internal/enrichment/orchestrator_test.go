package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenanttags/internal/resolver"
	"tenanttags/internal/shaper"
	"tenanttags/internal/token"
	"tenanttags/pkg/config"
	"tenanttags/pkg/tenants"
)

const ns = config.DefaultClaimNamespace

func newShaper(t *testing.T, maxTenants int) *shaper.Shaper {
	t.Helper()
	s, err := shaper.New(shaper.Options{Pattern: config.DefaultTenantIDPattern, MaxTenants: maxTenants, MaxBytes: 2048})
	require.NoError(t, err)
	return s
}

func directOrchestrator(t *testing.T, pol resolver.Policy, opts ...Option) *Orchestrator {
	t.Helper()
	r, err := resolver.NewDirectClaim([]string{"org", "orgs"}, "", pol)
	require.NoError(t, err)
	return New(r, newShaper(t, 3), ns, opts...)
}

func event(attrs map[string]any) LoginEvent {
	return LoginEvent{ID: "evt-1", Principal: resolver.Principal{ID: "auth0|u1", Attributes: attrs}}
}

type failingMutator struct{ calls int }

func (f *failingMutator) SetCustomClaim(string, any) error {
	f.calls++
	return errors.New("token sealed")
}

func TestOnLogin_DirectClaimScenario(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(map[string]any{"org": "acme-1"}), rec)
	require.True(t, res.OK(), "reason=%s err=%v", res.Reason, res.Err)
	assert.True(t, res.Written)
	assert.Equal(t, []State{StateIdle, StateResolving, StateShaping, StateWriting, StateDone}, res.Transitions)

	raw, err := json.Marshal(rec.Claims()[ns])
	require.NoError(t, err)
	assert.JSONEq(t, `{"principal_tags": {"TenantID": ["acme-1"]}}`, string(raw))
	assert.Equal(t, 1, rec.Writes())
}

func TestOnLogin_Idempotent(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	ev := event(map[string]any{"orgs": []any{"globex", "acme-1", "globex"}})

	rec := token.NewRecorder()
	first := o.OnLogin(context.Background(), ev, rec)
	second := o.OnLogin(context.Background(), ev, rec)
	require.True(t, first.OK())
	require.True(t, second.OK())

	a, err := first.Payload.MarshalJSON()
	require.NoError(t, err)
	b, err := second.Payload.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	claims := rec.Claims()
	assert.Len(t, claims, 1)
	assert.Equal(t, first.Payload.Value(), claims[ns])
}

func TestOnLogin_NoTenant(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{AllowTenantless: false})
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(map[string]any{"email": "a@b.c"}), rec)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, string(resolver.CodeNoTenant), res.Reason)
	assert.Zero(t, rec.Writes())
	assert.Equal(t, []State{StateIdle, StateResolving, StateFailed}, res.Transitions)
}

func TestOnLogin_TenantlessAllowed(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{AllowTenantless: true})
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(nil), rec)
	assert.True(t, res.OK())
	assert.False(t, res.Written)
	assert.Zero(t, rec.Writes())
}

func TestOnLogin_TooManyTenantsWritesNothing(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(map[string]any{"orgs": []any{"a", "b", "c", "d"}}), rec)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, string(shaper.CodeTooManyTenants), res.Reason)
	assert.True(t, res.Payload.Empty())
	assert.Zero(t, rec.Writes())
}

func TestOnLogin_InvalidIdentifierRejectsAll(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(map[string]any{"orgs": []any{"acme-1", "bad id"}}), rec)
	assert.Equal(t, string(shaper.CodeInvalidIdentifier), res.Reason)
	assert.Equal(t, []State{StateIdle, StateResolving, StateShaping, StateFailed}, res.Transitions)
	assert.Zero(t, rec.Writes())
}

func TestOnLogin_LookupTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	dir := tenants.DirectoryFunc(func(ctx context.Context, _ string) ([]string, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	o := New(resolver.NewExternalLookup(dir, 25*time.Millisecond, resolver.Policy{}), newShaper(t, 3), ns)
	rec := token.NewRecorder()

	res := o.OnLogin(context.Background(), event(nil), rec)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, string(resolver.CodeSourceUnavailable), res.Reason)
	assert.Zero(t, rec.Writes())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight lookup was not cancelled")
	}
}

func TestOnLogin_CancelledByHostBeforeWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := tenants.DirectoryFunc(func(context.Context, string) ([]string, error) {
		cancel() // host aborts while the lookup is returning
		return []string{"acme-1"}, nil
	})
	o := New(resolver.NewExternalLookup(dir, time.Second, resolver.Policy{}), newShaper(t, 3), ns)
	rec := token.NewRecorder()

	res := o.OnLogin(ctx, event(nil), rec)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonCanceled, res.Reason)
	assert.Zero(t, rec.Writes())
}

func TestOnLogin_WriteFailure(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	mut := &failingMutator{}

	res := o.OnLogin(context.Background(), event(map[string]any{"org": "acme-1"}), mut)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonWriteFailed, res.Reason)
	assert.Equal(t, 1, mut.calls)

	res = o.OnLogin(context.Background(), event(map[string]any{"org": "acme-1"}), nil)
	assert.Equal(t, ReasonWriteFailed, res.Reason)
}

func TestOnLogin_ConcurrentEventsAreIsolated(t *testing.T) {
	o := directOrchestrator(t, resolver.Policy{})
	const n = 32
	results := make(chan []string, n)
	for i := 0; i < n; i++ {
		org := "acme-1"
		if i%2 == 1 {
			org = "globex"
		}
		go func(org string) {
			rec := token.NewRecorder()
			res := o.OnLogin(context.Background(), event(map[string]any{"org": org}), rec)
			results <- res.Payload.TenantIDs()
		}(org)
	}
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		ids := <-results
		require.Len(t, ids, 1)
		counts[ids[0]]++
	}
	assert.Equal(t, map[string]int{"acme-1": n / 2, "globex": n / 2}, counts)
}

func TestOnLogin_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	o := directOrchestrator(t, resolver.Policy{}, WithMetrics(m))

	o.OnLogin(context.Background(), event(map[string]any{"org": "acme-1"}), token.NewRecorder())
	o.OnLogin(context.Background(), event(nil), token.NewRecorder())
	o.OnLogin(context.Background(), event(nil), token.NewRecorder())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(StateDone), "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(string(StateFailed), string(resolver.CodeNoTenant))))
}
