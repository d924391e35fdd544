// Package permissions gates mutating operations behind typed capabilities.
package permissions

import (
	"context"
	"fmt"

	"github.com/Dan9191/cuotificador/internal/models"
)

// Capability is a closed set of permissions checked before mutations
type Capability int

const (
	ConfigureRates Capability = iota + 1
	ManageBanks
	ManageCards
	SyncExternal
)

var capabilityNames = map[Capability]string{
	ConfigureRates: "cuotificador.configurar_tasas",
	ManageBanks:    "cuotificador.gestionar_bancos",
	ManageCards:    "cuotificador.gestionar_tarjetas",
	SyncExternal:   "cuotificador.sincronizar",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// ParseCapability maps a permission string to its capability
func ParseCapability(s string) (Capability, bool) {
	for c, name := range capabilityNames {
		if name == s {
			return c, true
		}
	}
	return 0, false
}

// Principal is the operator on whose behalf a request runs
type Principal struct {
	Subject      string
	Role         string
	Capabilities []Capability // Granted on top of the role
}

type principalKey struct{}

// WithPrincipal returns a context carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Policy decides whether a principal holds a capability
type Policy interface {
	Allows(p Principal, c Capability) bool
}

// RolePolicy grants capabilities per role, plus any granted to the principal directly
type RolePolicy struct {
	Roles map[string][]Capability
}

// DefaultRolePolicy is the stock role layout
func DefaultRolePolicy() RolePolicy {
	return RolePolicy{Roles: map[string][]Capability{
		"admin":      {ConfigureRates, ManageBanks, ManageCards, SyncExternal},
		"supervisor": {ConfigureRates, SyncExternal},
		"cashier":    nil,
	}}
}

func (p RolePolicy) Allows(pr Principal, c Capability) bool {
	for _, granted := range pr.Capabilities {
		if granted == c {
			return true
		}
	}
	for _, granted := range p.Roles[pr.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// Gate checks the principal in a context against a policy. Anything not
// explicitly allowed is denied.
type Gate struct {
	policy Policy
}

// NewGate creates a gate over policy
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Check returns ErrUnauthorized unless the context's principal holds c
func (g *Gate) Check(ctx context.Context, c Capability) error {
	p, ok := PrincipalFrom(ctx)
	if !ok || g.policy == nil || !g.policy.Allows(p, c) {
		return fmt.Errorf("%w: %s required", models.ErrUnauthorized, c)
	}
	return nil
}

// System is the principal used by scheduled jobs
func System(caps ...Capability) Principal {
	return Principal{Subject: "system", Role: "system", Capabilities: caps}
}
