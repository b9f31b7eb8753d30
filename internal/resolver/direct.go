package resolver

import (
	"context"
	"strings"

	jmes "github.com/jmespath/go-jmespath"
)

// DirectClaim reads tenants straight from the principal's profile attributes, either
// from a list of attribute names or through a JMESPath expression over the attribute map.
type DirectClaim struct {
	attributes []string
	expr       *jmes.JMESPath
	policy     Policy
}

// NewDirectClaim compiles expression when set; it then takes precedence over attributes.
func NewDirectClaim(attributes []string, expression string, pol Policy) (*DirectClaim, error) {
	d := &DirectClaim{attributes: append([]string(nil), attributes...), policy: pol}
	if expr := strings.TrimSpace(expression); expr != "" {
		compiled, err := jmes.Compile(expr)
		if err != nil {
			return nil, newError(CodeInvalidSource, err)
		}
		d.expr = compiled
	}
	return d, nil
}

func (d *DirectClaim) Resolve(ctx context.Context, p Principal) (Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(CodeSourceUnavailable, err)
	}
	var cands []string
	if d.expr != nil {
		doc := p.Attributes
		if doc == nil {
			doc = map[string]any{}
		}
		val, err := d.expr.Search(doc)
		if err != nil {
			return nil, newError(CodeInvalidSource, err)
		}
		cands = candidates(val)
	} else {
		for _, name := range d.attributes {
			for _, c := range candidates(p.Attributes[name]) {
				// comma separated lists are common in flat IdP profile fields
				for _, part := range strings.Split(c, ",") {
					cands = append(cands, strings.TrimSpace(part))
				}
			}
		}
	}
	return d.policy.finish(cands)
}
