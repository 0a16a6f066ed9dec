package auth

import "strings"

// Policy decides whether an actual role satisfies a required one.
type Policy interface {
	Satisfies(actual, required Role) bool
	String() string
}

type exactMatch struct{}

// ExactMatch grants access only when the roles are identical.
func ExactMatch() Policy { return exactMatch{} }

func (exactMatch) Satisfies(actual, required Role) bool { return actual == required }
func (exactMatch) String() string                       { return "exact" }

type ordered struct {
	roles []Role
	rank  map[Role]int
}

// Ordered builds a hierarchy from roles listed lowest first: Ordered(RoleUser,
// RoleAdmin) lets admin satisfy a user requirement. Roles missing from the
// table only satisfy themselves.
func Ordered(roles ...Role) Policy {
	p := ordered{roles: roles, rank: make(map[Role]int, len(roles))}
	for i, r := range roles {
		p.rank[r] = i
	}
	return p
}

func (o ordered) Satisfies(actual, required Role) bool {
	if actual == required {
		return true
	}
	a, okA := o.rank[actual]
	r, okR := o.rank[required]
	return okA && okR && a >= r
}

func (o ordered) String() string {
	names := make([]string, len(o.roles))
	for i, r := range o.roles {
		names[i] = string(r)
	}
	return "ordered(" + strings.Join(names, "<") + ")"
}

// Guard evaluates a Principal against a required role under one policy.
// It is stateless and performs no I/O.
type Guard struct {
	policy Policy
}

func NewGuard(p Policy) *Guard {
	return &Guard{policy: p}
}

func (g *Guard) Policy() Policy { return g.policy }

// Authorize returns nil when p may proceed, otherwise an *Error with
// CodeInsufficientRole naming both roles.
func (g *Guard) Authorize(p Principal, required Role) error {
	if g.policy.Satisfies(p.Role, required) {
		return nil
	}
	return &Error{Code: CodeInsufficientRole, Required: required, Actual: p.Role}
}
