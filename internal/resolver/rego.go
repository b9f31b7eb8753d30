package resolver

import (
	"context"

	"github.com/open-policy-agent/opa/rego"
)

// RegoQuery is the rule a tenant module must define. It evaluates to a set or array of
// tenant ids given input {"principal_id": ..., "attributes": {...}}; an undefined rule
// means no tenants.
const RegoQuery = "data.tenants.assign"

// Rego derives tenants by evaluating an operator-supplied OPA module.
type Rego struct {
	query  rego.PreparedEvalQuery
	policy Policy
}

// NewRego compiles module once; evaluation per login reuses the prepared query.
func NewRego(ctx context.Context, name, module string, pol Policy) (*Rego, error) {
	pq, err := rego.New(
		rego.Query(RegoQuery),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, newError(CodeInvalidSource, err)
	}
	return &Rego{query: pq, policy: pol}, nil
}

func (r *Rego) Resolve(ctx context.Context, p Principal) (Assignment, error) {
	input := map[string]any{"principal_id": p.ID, "attributes": p.Attributes}
	rs, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(CodeSourceUnavailable, ctx.Err())
		}
		return nil, newError(CodeInvalidSource, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return r.policy.finish(nil)
	}
	return r.policy.finish(candidates(rs[0].Expressions[0].Value))
}
