package vectorstore

import (
	"github.com/fyrsmithlabs/ragstore/internal/tenant"
)

// Filter is a conjunction of match conditions.
type Filter struct {
	Must []Condition
}

// Condition matches one payload field. Exactly one of Match or MatchAny is
// set: Match is keyword equality, MatchAny matches any of the given values.
type Condition struct {
	Field    string
	Match    interface{}
	MatchAny []string
}

// TenantFilter builds a conjunctive filter whose first condition is always
// the tenant match. Extra conditions are appended in the given order.
func TenantFilter(tenantID string, extra ...Condition) (*Filter, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	must := make([]Condition, 0, 1+len(extra))
	must = append(must, Condition{Field: KeyTenantID, Match: tenantID})
	must = append(must, extra...)
	return &Filter{Must: must}, nil
}

// EntityFilter scopes a filter to a single entity within a tenant.
func EntityFilter(tenantID string, entity Entity) (*Filter, error) {
	return TenantFilter(tenantID,
		Condition{Field: KeyNodeType, Match: string(entity.Type)},
		Condition{Field: entity.IDField(), Match: entity.ID},
	)
}

// Validate checks that the filter leads with a tenant condition. Stores call
// this before every read or write - a filter without tenant scope is a
// programming error, not a query with fewer results.
func (f *Filter) Validate() error {
	if f == nil || len(f.Must) == 0 {
		return ErrMissingTenantFilter
	}
	first := f.Must[0]
	if first.Field != KeyTenantID {
		return ErrMissingTenantFilter
	}
	id, ok := first.Match.(string)
	if !ok || id == "" {
		return ErrMissingTenantFilter
	}
	return nil
}
