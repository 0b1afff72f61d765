package lifecycle

import (
	"fmt"
	"sort"
	"strings"
)

type Capability uint8

const (
	// CapabilitySubmit allows creating reports and relaying votes.
	CapabilitySubmit Capability = iota
	// CapabilityAuthority allows markAsSolved and rejectIssue.
	CapabilityAuthority
	// CapabilityAdmin allows granting and revoking capabilities.
	CapabilityAdmin
)

var capabilityNames = [...]string{
	CapabilitySubmit:    "Submit",
	CapabilityAuthority: "Authority",
	CapabilityAdmin:     "Admin",
}

func (c Capability) Valid() bool { return int(c) < len(capabilityNames) }

func (c Capability) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Capability(%d)", uint8(c))
	}
	return capabilityNames[c]
}

func ParseCapability(s string) (Capability, error) {
	for i, name := range capabilityNames {
		if strings.EqualFold(name, s) {
			return Capability(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCapability, s)
}

func (c Capability) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapability, uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Capability) UnmarshalText(b []byte) error {
	parsed, err := ParseCapability(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Grant is one explicit capability membership.
type Grant struct {
	Principal  Principal  `json:"principal"`
	Capability Capability `json:"capability"`
}

// RoleRegistry is the explicit membership set per capability. Membership is
// never inferred.
type RoleRegistry struct {
	members map[Grant]struct{}
}

func NewRoleRegistry(genesis ...Grant) *RoleRegistry {
	r := &RoleRegistry{members: make(map[Grant]struct{}, len(genesis))}
	for _, g := range genesis {
		r.grant(g)
	}
	return r
}

func (r *RoleRegistry) HasCapability(p Principal, c Capability) bool {
	_, ok := r.members[Grant{Principal: p, Capability: c}]
	return ok
}

// Grants returns every membership sorted by principal then capability.
func (r *RoleRegistry) Grants() []Grant {
	out := make([]Grant, 0, len(r.members))
	for g := range r.members {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Principal != out[j].Principal {
			return out[i].Principal < out[j].Principal
		}
		return out[i].Capability < out[j].Capability
	})
	return out
}

// grant reports whether the membership was newly added.
func (r *RoleRegistry) grant(g Grant) bool {
	if _, ok := r.members[g]; ok {
		return false
	}
	r.members[g] = struct{}{}
	return true
}

// revoke reports whether the membership existed.
func (r *RoleRegistry) revoke(g Grant) bool {
	if _, ok := r.members[g]; !ok {
		return false
	}
	delete(r.members, g)
	return true
}
