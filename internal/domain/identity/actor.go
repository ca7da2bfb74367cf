// Package identity carries the authorization decisions the stock engine consumes.
// Users, roles and sessions are owned by an external identity service; the engine
// only sees an Actor and the capabilities granted to it.
package identity

import (
	"strings"

	"github.com/erp/stockengine/internal/domain/shared"
)

// Capability is a named permission checked by stock operations
type Capability string

const (
	// CapabilityStockManage allows receipts, adjustments, wastage and transfers
	CapabilityStockManage Capability = "stock.manage"
	// CapabilityQCInspect allows recording QC inspection results
	CapabilityQCInspect Capability = "qc.inspect"
	// CapabilityQCRelease allows releasing inspected batches for sale
	CapabilityQCRelease Capability = "qc.release"
	// CapabilityAll grants every capability
	CapabilityAll Capability = "*"
)

// ParseCapability normalizes a permission code. Both "stock.manage" and the
// resource:action form "stock:manage" are accepted.
func ParseCapability(code string) Capability {
	code = strings.ToLower(strings.TrimSpace(code))
	return Capability(strings.Replace(code, ":", ".", 1))
}

// Actor is the caller on whose behalf an operation runs
type Actor struct {
	ID           string
	Username     string
	capabilities map[Capability]struct{}
}

// NewActor creates an actor with the given permission codes
func NewActor(id, username string, permissions ...string) Actor {
	caps := make(map[Capability]struct{}, len(permissions))
	for _, p := range permissions {
		if p == "" {
			continue
		}
		caps[ParseCapability(p)] = struct{}{}
	}
	return Actor{ID: id, Username: username, capabilities: caps}
}

// SystemActor is used by internal jobs such as the reservation sweeper
func SystemActor(name string) Actor {
	return NewActor("system:"+name, name, string(CapabilityAll))
}

// Can reports whether the actor holds the capability
func (a Actor) Can(c Capability) bool {
	if _, ok := a.capabilities[CapabilityAll]; ok {
		return true
	}
	_, ok := a.capabilities[c]
	return ok
}

// Capabilities returns the granted capabilities
func (a Actor) Capabilities() []Capability {
	out := make([]Capability, 0, len(a.capabilities))
	for c := range a.capabilities {
		out = append(out, c)
	}
	return out
}

// Label identifies the actor in audit records
func (a Actor) Label() string {
	if a.Username != "" {
		return a.Username
	}
	if a.ID != "" {
		return a.ID
	}
	return "anonymous"
}

// Require returns UNAUTHORIZED unless the actor holds the capability
func (a Actor) Require(c Capability) error {
	if a.Can(c) {
		return nil
	}
	return shared.NewDomainError(shared.CodeUnauthorized, "Actor lacks the "+string(c)+" capability").
		WithDetail("capability", string(c))
}
